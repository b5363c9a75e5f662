package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"voiceagent-platform/internal/apperr"
)

func TestTwilioSMSClient_Send(t *testing.T) {
	var gotPath, gotTo, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		_ = r.ParseForm()
		gotTo = r.PostFormValue("To")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123"}`))
	}))
	defer srv.Close()

	c := NewTwilioSMSClient(srv.URL, srv.Client())
	sid, err := c.Send(context.Background(), SMSAccount{AccountSID: "AC1", AuthToken: "tok", From: "+15550000000"}, SMSMessage{To: "+15552223333", Body: "Booked"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sid != "SM123" || gotPath != "/2010-04-01/Accounts/AC1/Messages.json" || gotTo != "+15552223333" || gotUser != "AC1" {
		t.Fatalf("unexpected request: sid=%s path=%s to=%s user=%s", sid, gotPath, gotTo, gotUser)
	}
}

func TestTwilioSMSClient_ClassifiesFailures(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"code":21211,"message":"invalid To"}`))
	}))
	defer srv.Close()

	c := NewTwilioSMSClient(srv.URL, srv.Client())
	acct := SMSAccount{AccountSID: "AC1", AuthToken: "tok", From: "+15550000000"}
	msg := SMSMessage{To: "+15552223333", Body: "x"}

	if _, err := c.Send(context.Background(), acct, msg); apperr.Classify(err) != apperr.KindTransient {
		t.Fatalf("expected transient for 503, got %v", err)
	}
	status = http.StatusBadRequest
	if _, err := c.Send(context.Background(), acct, msg); apperr.Classify(err) != apperr.KindPermanent {
		t.Fatalf("expected permanent for 400, got %v", err)
	}
	if _, err := c.Send(context.Background(), SMSAccount{}, msg); apperr.Classify(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for empty account, got %v", err)
	}
}
