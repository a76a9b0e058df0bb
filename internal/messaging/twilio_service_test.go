package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/comunidadegraca/atendebot/internal/twiliowhatsapp"
)

func TestTwilioServiceValidateAndCanonicalizeRecipient(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"whatsapp:+5511999990001", "5511999990001", false},
		{"+55 (11) 99999-0001", "5511999990001", false},
		{"5511999990001", "5511999990001", false},
		{"", "", true},
		{"abc", "", true},
		{"123", "", true}, // too short
	}
	for _, c := range cases {
		got, err := svc.ValidateAndCanonicalizeRecipient(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ValidateAndCanonicalizeRecipient(%q) expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTwilioServiceSendMessage(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	defer svc.Stop()

	if err := svc.SendMessage(context.Background(), "whatsapp:+5511999990001", "Olá!"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].To != "5511999990001" {
		t.Errorf("recipient should be canonicalized, got %q", mock.SentMessages[0].To)
	}
	if mock.SentMessages[0].Body != "Olá!" {
		t.Errorf("body wrong: %q", mock.SentMessages[0].Body)
	}

	// A sent receipt is emitted.
	select {
	case r := <-svc.Receipts():
		if r.To != "5511999990001" || string(r.Status) != "sent" {
			t.Errorf("unexpected receipt: %+v", r)
		}
	case <-time.After(time.Second):
		t.Error("expected a sent receipt")
	}
}

func TestTwilioServiceSendAfterStop(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	svc.Stop()
	if err := svc.SendMessage(context.Background(), "5511999990001", "Olá!"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

func postWebhookForm(t *testing.T, svc *TwilioService, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	svc.WebhookHandler(w, req)
	return w
}

func TestTwilioWebhookHandlerEmitsResponse(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	defer svc.Stop()

	form := url.Values{}
	form.Set("From", "whatsapp:+5511999990001")
	form.Set("Body", "oi")
	form.Set("MessageSid", "SM0001")

	w := postWebhookForm(t, svc, form)
	if w.Code != http.StatusOK {
		t.Fatalf("webhook should ack with 200, got %d", w.Code)
	}

	select {
	case resp := <-svc.Responses():
		if resp.From != "whatsapp:+5511999990001" {
			t.Errorf("From wrong: %q", resp.From)
		}
		if resp.Body != "oi" {
			t.Errorf("Body wrong: %q", resp.Body)
		}
		if resp.MessageID != "SM0001" {
			t.Errorf("MessageID wrong: %q", resp.MessageID)
		}
	case <-time.After(time.Second):
		t.Error("expected an inbound response on the channel")
	}
}

func TestTwilioWebhookHandlerMissingFields(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	defer svc.Stop()

	form := url.Values{}
	form.Set("From", "whatsapp:+5511999990001")
	// Body missing.
	w := postWebhookForm(t, svc, form)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing body should be rejected with 400, got %d", w.Code)
	}

	form = url.Values{}
	form.Set("Body", "oi")
	// From missing.
	w = postWebhookForm(t, svc, form)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing sender should be rejected with 400, got %d", w.Code)
	}
}

func TestTwilioWebhookHandlerDropsWhenStopped(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	svc.Stop()

	form := url.Values{}
	form.Set("From", "whatsapp:+5511999990001")
	form.Set("Body", "oi")

	// Still acks 200 so Twilio does not retry forever, but nothing is emitted.
	w := postWebhookForm(t, svc, form)
	if w.Code != http.StatusOK {
		t.Errorf("stopped service should still ack, got %d", w.Code)
	}
	select {
	case r := <-svc.Responses():
		t.Errorf("response emitted after Stop: %+v", r)
	default:
	}
}
