// Package api provides the inbound message dispatcher.
package api

import (
	"context"
	"log/slog"
	"time"
)

// dispatchDelay defers processing slightly so the webhook acknowledgment
// never waits on the engine.
const dispatchDelay = 20 * time.Millisecond

// dispatchResponses consumes the transport's response channel and routes
// each inbound message through the dialogue engine, delivering the reply
// over the same transport. Persistence and delivery failures are logged
// and never fail the loop.
func (s *Server) dispatchResponses(ctx context.Context) {
	slog.Info("Server: inbound dispatcher running")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Server: inbound dispatcher stopping")
			return
		case resp, ok := <-s.msgService.Responses():
			if !ok {
				slog.Info("Server: response channel closed, dispatcher stopping")
				return
			}
			go func() {
				time.Sleep(dispatchDelay)
				s.processInbound(ctx, resp.From, resp.Body, resp.MessageID)
			}()
		}
	}
}

// processInbound runs one inbound message through durable dedup, the
// dialogue engine and outbound delivery.
func (s *Server) processInbound(ctx context.Context, from, body, messageID string) {
	phone, err := s.msgService.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("Server.processInbound: invalid sender, dropping", "error", err, "from", from)
		return
	}

	// Durable dedup by transport message id absorbs webhook retries that
	// outlive the in-memory window.
	if messageID != "" && s.dedupRepo != nil {
		fresh, err := s.dedupRepo.RecordInbound(messageID, phone)
		if err != nil {
			slog.Error("Server.processInbound: dedup check failed, processing anyway", "error", err, "message_id", messageID)
		} else if !fresh {
			slog.Debug("Server.processInbound: duplicate delivery suppressed", "message_id", messageID, "phone", phone)
			return
		}
	}

	result := s.engine.ProcessMessage(ctx, phone, body)

	if result.Message != "" {
		if err := s.msgService.SendMessage(ctx, phone, result.Message); err != nil {
			slog.Error("Server.processInbound: reply delivery failed", "error", err, "phone", phone)
		}
	}

	if messageID != "" && s.dedupRepo != nil {
		if err := s.dedupRepo.MarkProcessed(messageID); err != nil {
			slog.Error("Server.processInbound: mark processed failed", "error", err, "message_id", messageID)
		}
	}
}
