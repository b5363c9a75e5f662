package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"voiceagent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// MaxBodyBytes bounds a single webhook delivery.
const MaxBodyBytes = 1 << 20

type Handler struct {
	pipeline *Pipeline
}

func NewHandler(p *Pipeline) *Handler {
	return &Handler{pipeline: p}
}

// RegisterRoutes mounts the provider webhook on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, mw ...gin.HandlerFunc) {
	rg.POST("/voice", append(mw, h.Receive)...)
}

// Receive hands the raw body to the pipeline. The body is read unparsed so
// the signature covers exactly the bytes the provider sent.
func (h *Handler) Receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		logger.FromGin(c).WarnContext(c.Request.Context(), "read webhook body", "err", err)
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
		return
	}

	resp := h.pipeline.Process(c.Request.Context(), body, c.GetHeader(SignatureHeader))
	if raw, ok := resp.Body.(json.RawMessage); ok {
		c.Data(resp.Status, "application/json; charset=utf-8", raw)
		return
	}
	c.JSON(resp.Status, resp.Body)
}
