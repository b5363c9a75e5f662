package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"voiceagent-platform/internal/alerts"
	"voiceagent-platform/internal/booking"
	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/idempotency"
	"voiceagent-platform/internal/retry"
	"voiceagent-platform/internal/slots"
	"voiceagent-platform/internal/tenant"
	"voiceagent-platform/internal/webhook"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const secret = "whsec_suite"

type toolReply struct {
	Results []struct {
		ToolCallID string         `json:"toolCallId"`
		Result     booking.Result `json:"result"`
	} `json:"results"`
}

var _ = Describe("Voice webhook handler", func() {
	var (
		router   *gin.Engine
		verifier webhook.Verifier
		store    *idempotency.MemoryStore
		callSvc  *calls.Service
		alertLog *alerts.MemoryRepo
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)

		tenants := tenant.NewMemoryRepo()
		tenants.Put(tenant.Tenant{ID: "t1", Name: "Bright Smiles", Status: tenant.StatusActive, Timezone: "America/New_York"})
		tenants.AddAssistant("t1", "asst_1")

		store = idempotency.NewMemoryStore()
		callSvc = calls.NewService(calls.NewMemoryRepo(), "US")
		engine := slots.NewEngine(slots.NewMemoryStore(), "US", 30)
		alertLog = alerts.NewMemoryRepo()
		verifier = webhook.NewVerifier(secret)

		pipeline := webhook.NewPipeline(
			verifier,
			store,
			tenant.NewResolver(tenants, "US"),
			webhook.NewRouter(callSvc, booking.NewService(engine, nil, nil, 3)),
			nil,
			alerts.NewService(alertLog),
			webhook.Options{Retry: retry.Policy{Sleep: func(context.Context, time.Duration) error { return nil }}},
		)

		router = gin.New()
		webhook.NewHandler(pipeline).RegisterRoutes(router.Group("/webhooks"), webhook.InFlight(4, time.Second))
	})

	post := func(body string, sign bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/voice", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		if sign {
			req.Header.Set(webhook.SignatureHeader, verifier.Sign([]byte(body)))
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	decodeTool := func(w *httptest.ResponseRecorder) toolReply {
		var out toolReply
		Expect(json.Unmarshal(w.Body.Bytes(), &out)).To(Succeed())
		Expect(out.Results).To(HaveLen(1))
		return out
	}

	It("acknowledges a redelivered event without running it twice", func() {
		body := `{"id":"evt_123","type":"call-started","timestamp":"2030-03-05T14:00:00Z",
			"call":{"id":"call_1","customer":{"number":"+1 (555) 765-4321"}},"assistant":{"id":"asst_1"}}`

		first := post(body, true)
		Expect(first.Code).To(Equal(http.StatusOK))

		second := post(body, true)
		Expect(second.Code).To(Equal(http.StatusOK))
		Expect(second.Body.String()).To(MatchJSON(`{"status":"duplicate"}`))

		call, err := callSvc.Get(context.Background(), "t1", "call_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(call.Status).To(Equal(calls.CallStatusInProgress))
		Expect(call.From).To(Equal("+15557654321"))

		rec, err := store.Get(context.Background(), "evt_123")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Outcome).To(Equal(idempotency.OutcomeSucceeded))
	})

	It("rejects an unsigned delivery before reading it", func() {
		w := post(`{"id":"evt_1","type":"call-started","call":{"id":"c"}}`, false)
		Expect(w.Code).To(Equal(http.StatusUnauthorized))

		_, err := store.Get(context.Background(), "evt_1")
		Expect(err).To(MatchError(idempotency.ErrNotFound))
	})

	It("acknowledges a malformed envelope so the provider stops retrying", func() {
		w := post(`{"id":"evt_bad","type":"status-update","call":{"id":"c"}}`, true)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(MatchJSON(`{"status":"ignored"}`))
	})

	It("keeps an ended call ended when the start arrives late", func() {
		ended := `{"id":"evt_end","type":"call-ended","timestamp":"2030-03-05T14:10:00Z","call":{"id":"call_7"},
			"assistant":{"id":"asst_1"},"endedReason":"customer-ended-call","durationSeconds":600}`
		started := `{"id":"evt_start","type":"call-started","timestamp":"2030-03-05T14:00:00Z","call":{"id":"call_7"},"assistant":{"id":"asst_1"}}`

		Expect(post(ended, true).Code).To(Equal(http.StatusOK))
		Expect(post(started, true).Code).To(Equal(http.StatusOK))

		call, err := callSvc.Get(context.Background(), "t1", "call_7")
		Expect(err).NotTo(HaveOccurred())
		Expect(call.Status).To(Equal(calls.CallStatusCompleted))
		Expect(call.DurationSeconds).To(Equal(600))
	})

	Describe("booking tool calls", func() {
		book := func(eventID, toolCallID string) string {
			return `{"id":"` + eventID + `","type":"tool-invocation","call":{"id":"call_1","customer":{"number":"+15557654321"}},
				"assistant":{"id":"asst_1"},
				"toolCall":{"id":"` + toolCallID + `","name":"bookAppointment",
				"arguments":{"appointmentDate":"2030-03-05","appointmentTime":"09:00","patientName":"jane doe"}}}`
		}

		It("books the slot and speaks the local time", func() {
			out := decodeTool(post(book("evt_b1", "tc_1"), true))
			Expect(out.Results[0].ToolCallID).To(Equal("tc_1"))
			Expect(out.Results[0].Result.Status).To(Equal(booking.StatusBooked))
			Expect(out.Results[0].Result.ScheduledAt).To(Equal("2030-03-05T14:00:00Z"))
			Expect(out.Results[0].Result.Speech).To(Equal("You're all set for Tuesday, March 5 at 9:00 AM."))
		})

		It("replays the same appointment on redelivery", func() {
			first := decodeTool(post(book("evt_b1", "tc_1"), true))
			again := decodeTool(post(book("evt_b1", "tc_1"), true))
			Expect(again.Results[0].Result.AppointmentID).To(Equal(first.Results[0].Result.AppointmentID))
			Expect(again.Results[0].Result.Status).To(Equal(booking.StatusBooked))
		})

		It("offers alternatives when the slot is taken", func() {
			decodeTool(post(book("evt_b1", "tc_1"), true))
			out := decodeTool(post(book("evt_b2", "tc_2"), true))

			res := out.Results[0].Result
			Expect(res.Status).To(Equal(booking.StatusConflict))
			Expect(res.AppointmentID).To(BeEmpty())
			Expect(res.Alternatives).To(Equal([]string{
				"2030-03-05T14:30:00Z",
				"2030-03-05T15:00:00Z",
				"2030-03-05T15:30:00Z",
			}))
			Expect(res.Speech).To(ContainSubstring("9:30 AM, 10:00 AM or 10:30 AM"))
		})

		It("answers an unknown tool with an error result", func() {
			body := `{"id":"evt_u","type":"tool-invocation","assistant":{"id":"asst_1"},"toolCall":{"id":"tc_u","name":"orderPizza"}}`
			out := decodeTool(post(body, true))
			Expect(out.Results[0].Result.Status).To(Equal(booking.StatusError))
			Expect(alertLog.Alerts()).To(BeEmpty())
		})
	})
})
