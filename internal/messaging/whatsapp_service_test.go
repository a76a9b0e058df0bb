package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/comunidadegraca/atendebot/internal/whatsapp"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

func TestWhatsAppServiceWithMockClient(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := svc.SendMessage(context.Background(), "whatsapp:+5511999990001", "Olá!"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	// A sent receipt is emitted even through the mock.
	select {
	case r := <-svc.Receipts():
		if r.To != "5511999990001" || string(r.Status) != "sent" {
			t.Errorf("unexpected receipt: %+v", r)
		}
	case <-time.After(time.Second):
		t.Error("expected a sent receipt")
	}

	if err := svc.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	// Stop is idempotent.
	if err := svc.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestWhatsAppServiceEventAfterStopIsDropped(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// An event handler still in flight after Stop must bail out on the
	// done signal rather than send into a closed channel.
	text := "oi"
	evt := &events.Message{
		Message: &waE2E.Message{Conversation: &text},
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Sender: types.NewJID("5511999990001", "s.whatsapp.net"),
			},
			ID:        "MSG1",
			Timestamp: time.Now(),
		},
	}
	svc.handleIncomingMessage(evt)

	svc.handleMessageReceipt(&events.Receipt{
		MessageSource: types.MessageSource{
			Sender: types.NewJID("5511999990001", "s.whatsapp.net"),
		},
		Type:      events.ReceiptTypeDelivered,
		Timestamp: time.Now(),
	})

	select {
	case r := <-svc.Responses():
		t.Errorf("message emitted after Stop: %+v", r)
	default:
	}
	select {
	case r := <-svc.Receipts():
		t.Errorf("receipt emitted after Stop: %+v", r)
	default:
	}
}

func TestWhatsAppServiceValidatesRecipient(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	defer svc.Stop()

	if err := svc.SendMessage(context.Background(), "abc", "Olá!"); err == nil {
		t.Error("non-numeric recipient should be rejected")
	}
	if _, err := svc.ValidateAndCanonicalizeRecipient("+55 (11) 99999-0001"); err != nil {
		t.Errorf("formatted number should canonicalize: %v", err)
	}
}
