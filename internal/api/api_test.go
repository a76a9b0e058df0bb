package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/comunidadegraca/atendebot/internal/analytics"
	"github.com/comunidadegraca/atendebot/internal/dialog"
	"github.com/comunidadegraca/atendebot/internal/menu"
	"github.com/comunidadegraca/atendebot/internal/messaging"
	"github.com/comunidadegraca/atendebot/internal/models"
	"github.com/comunidadegraca/atendebot/internal/store"
	"github.com/comunidadegraca/atendebot/internal/twiliowhatsapp"
)

// newTestServer wires a server over the in-memory store and a Twilio mock,
// without the scheduler or background goroutines.
func newTestServer(t *testing.T, nodes []models.MenuNode) (*Server, *twiliowhatsapp.MockClient) {
	t.Helper()
	mem := store.NewInMemoryStore()
	for _, n := range nodes {
		if err := mem.SaveMenuNode(n); err != nil {
			t.Fatalf("failed to save node %s: %v", n.ID, err)
		}
	}

	cache := menu.NewCache(mem)
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("cache refresh failed: %v", err)
	}

	states := dialog.NewStates(0)
	t.Cleanup(states.Stop)

	mock := twiliowhatsapp.NewMockClient()
	twilioSvc := messaging.NewTwilioService(mock)
	t.Cleanup(func() { twilioSvc.Stop() })

	s := &Server{
		st:         mem,
		dedupRepo:  mem,
		cache:      cache,
		states:     states,
		engine:     dialog.NewEngine(cache, states),
		tracker:    analytics.NewTracker(mem),
		msgService: twilioSvc,
		twilioSvc:  twilioSvc,
	}
	return s, mock
}

func testNodes() []models.MenuNode {
	return []models.MenuNode{
		{ID: "cultos", Order: 1, Title: "Horários de Culto", Kind: models.NodeKindSubmenu, IsActive: true},
		{ID: "culto-domingo", ParentID: "cultos", Order: 1, Title: "Culto de Domingo", Content: "Domingo às 10h.", Kind: models.NodeKindContent, IsActive: true},
		{ID: "endereco", Order: 2, Title: "Endereço", Content: "Rua das Flores, 123.", Kind: models.NodeKindContent, IsActive: true},
	}
}

func decodeAPIResponse(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v (body %q)", err, w.Body.String())
	}
	return resp
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t, testNodes())

	w := httptest.NewRecorder()
	s.healthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var health map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", health["status"])
	}
	if health["menu_loaded"] != true {
		t.Errorf("expected menu_loaded true, got %v", health["menu_loaded"])
	}
}

func TestHealthHandlerDegradedWithoutMenu(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.healthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for empty menu, got %d", w.Code)
	}
	var health map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if health["status"] != "degraded" {
		t.Errorf("expected degraded status, got %v", health["status"])
	}
}

func TestMenuHandlerReturnsTree(t *testing.T) {
	s, _ := newTestServer(t, testNodes())

	w := httptest.NewRecorder()
	s.menuHandler(w, httptest.NewRequest(http.MethodGet, "/menu", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Horários de Culto") || !strings.Contains(body, "Culto de Domingo") {
		t.Errorf("menu tree incomplete: %s", body)
	}

	w = httptest.NewRecorder()
	s.menuHandler(w, httptest.NewRequest(http.MethodPost, "/menu", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /menu should be 405, got %d", w.Code)
	}
}

func TestMenuRefreshHandler(t *testing.T) {
	s, _ := newTestServer(t, testNodes())

	// A node saved after the initial refresh only appears after POST /menu/refresh.
	newNode := models.MenuNode{ID: "ofertas", Order: 3, Title: "Ofertas e Dízimos", Content: "PIX: graca@example.com", Kind: models.NodeKindContent, IsActive: true}
	if err := s.st.SaveMenuNode(newNode); err != nil {
		t.Fatalf("failed to save node: %v", err)
	}
	if s.cache.Size() != 3 {
		t.Fatalf("cache should still hold the old snapshot, size %d", s.cache.Size())
	}

	w := httptest.NewRecorder()
	s.menuRefreshHandler(w, httptest.NewRequest(http.MethodPost, "/menu/refresh", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if s.cache.Size() != 4 {
		t.Errorf("cache should hold the new snapshot, size %d", s.cache.Size())
	}

	w = httptest.NewRecorder()
	s.menuRefreshHandler(w, httptest.NewRequest(http.MethodGet, "/menu/refresh", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /menu/refresh should be 405, got %d", w.Code)
	}
}

func TestMenuRefreshHandlerStoreFailure(t *testing.T) {
	s, _ := newTestServer(t, testNodes())
	s.st.(*store.InMemoryStore).FailListNodes = true

	w := httptest.NewRecorder()
	s.menuRefreshHandler(w, httptest.NewRequest(http.MethodPost, "/menu/refresh", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on store failure, got %d", w.Code)
	}
	if s.cache.Size() != 3 {
		t.Errorf("failed refresh must retain the snapshot, size %d", s.cache.Size())
	}
}

func TestCreateMenuNodeHandler(t *testing.T) {
	s, _ := newTestServer(t, nil)

	payload := `{"id":"avisos","order":1,"title":"Avisos da Semana","content":"Ensaio do coral sábado às 16h.","kind":"content"}`
	req := httptest.NewRequest(http.MethodPost, "/menu/nodes", strings.NewReader(payload))
	w := httptest.NewRecorder()
	s.menuNodesHandler(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	saved, err := s.st.GetMenuNode("avisos")
	if err != nil || saved == nil {
		t.Fatalf("node not persisted: %v", err)
	}
	if !saved.IsActive {
		t.Error("created node should be active")
	}
	if saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Error("timestamps should be stamped on create")
	}
}

func TestCreateMenuNodeHandlerRejectsInvalid(t *testing.T) {
	s, _ := newTestServer(t, nil)

	cases := []string{
		`{not json`,
		`{"order":1,"title":"Sem ID"}`,
		`{"id":"x","order":-2,"title":"Ordem negativa"}`,
		`{"id":"x","order":1}`,
	}
	for _, payload := range cases {
		req := httptest.NewRequest(http.MethodPost, "/menu/nodes", strings.NewReader(payload))
		w := httptest.NewRecorder()
		s.menuNodesHandler(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("payload %q should be rejected with 400, got %d", payload, w.Code)
		}
	}
}

func TestUpdateMenuNodeHandler(t *testing.T) {
	s, _ := newTestServer(t, testNodes())

	payload := `{"order":2,"title":"Endereço e Como Chegar","content":"Rua das Flores, 123 - Centro.","kind":"content"}`
	req := httptest.NewRequest(http.MethodPut, "/menu/nodes/endereco", strings.NewReader(payload))
	w := httptest.NewRecorder()
	s.menuNodesHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	saved, _ := s.st.GetMenuNode("endereco")
	if saved == nil || saved.Title != "Endereço e Como Chegar" {
		t.Errorf("update not applied: %+v", saved)
	}

	// Unknown id.
	req = httptest.NewRequest(http.MethodPut, "/menu/nodes/nope", strings.NewReader(payload))
	w = httptest.NewRecorder()
	s.menuNodesHandler(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id should be 404, got %d", w.Code)
	}
}

func TestDeactivateMenuNodeHandler(t *testing.T) {
	s, _ := newTestServer(t, testNodes())

	req := httptest.NewRequest(http.MethodDelete, "/menu/nodes/endereco", nil)
	w := httptest.NewRecorder()
	s.menuNodesHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	saved, _ := s.st.GetMenuNode("endereco")
	if saved == nil || saved.IsActive {
		t.Errorf("node should be deactivated: %+v", saved)
	}

	req = httptest.NewRequest(http.MethodDelete, "/menu/nodes/nope", nil)
	w = httptest.NewRecorder()
	s.menuNodesHandler(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id should be 404, got %d", w.Code)
	}
}

func TestMenuNodesHandlerMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.menuNodesHandler(w, httptest.NewRequest(http.MethodGet, "/menu/nodes", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /menu/nodes should be 405, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	s.menuNodesHandler(w, httptest.NewRequest(http.MethodPost, "/menu/nodes/endereco", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /menu/nodes/{id} should be 405, got %d", w.Code)
	}
}

func TestSendHandler(t *testing.T) {
	s, mock := newTestServer(t, nil)

	payload, _ := json.Marshal(map[string]string{"to": "whatsapp:+5511999990001", "body": "Aviso: culto antecipado."})
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	s.sendHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(mock.SentMessages) != 1 || mock.SentMessages[0].To != "5511999990001" {
		t.Errorf("message not sent via client: %+v", mock.SentMessages)
	}
}

func TestSendHandlerValidation(t *testing.T) {
	s, _ := newTestServer(t, nil)

	cases := []struct {
		payload string
		code    int
	}{
		{`{not json`, http.StatusBadRequest},
		{`{"to":"5511999990001"}`, http.StatusBadRequest},   // missing body
		{`{"to":"abc","body":"oi"}`, http.StatusBadRequest}, // invalid recipient
		{`{"to":"123","body":"oi"}`, http.StatusBadRequest}, // too short
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(c.payload))
		w := httptest.NewRecorder()
		s.sendHandler(w, req)
		if w.Code != c.code {
			t.Errorf("payload %q: expected %d, got %d", c.payload, c.code, w.Code)
		}
	}

	w := httptest.NewRecorder()
	s.sendHandler(w, httptest.NewRequest(http.MethodGet, "/messages", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /messages should be 405, got %d", w.Code)
	}
}

func TestSessionsHandler(t *testing.T) {
	s, _ := newTestServer(t, nil)

	if err := s.st.SaveSession(models.Session{ID: "a", Phone: "5511999990001"}); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}

	w := httptest.NewRecorder()
	s.sessionsHandler(w, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	// Snapshot the body before decoding: the decoder drains the buffer.
	body := w.Body.String()
	resp := decodeAPIResponse(t, w)
	if resp.Status != "ok" {
		t.Errorf("expected ok status, got %+v", resp)
	}
	if !strings.Contains(body, "5511999990001") {
		t.Errorf("session missing from listing: %s", body)
	}
}

func TestDailyStatsHandler(t *testing.T) {
	s, _ := newTestServer(t, nil)

	stats := models.DailyStats{Date: "2026-08-30", MessageCount: 12, SessionCount: 4}
	if err := s.st.SaveDailyStats(stats); err != nil {
		t.Fatalf("failed to save stats: %v", err)
	}

	w := httptest.NewRecorder()
	s.dailyStatsHandler(w, httptest.NewRequest(http.MethodGet, "/stats/daily?date=2026-08-30", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"message_count":12`) {
		t.Errorf("stats missing from response: %s", w.Body.String())
	}

	// Unknown date answers with zeroed stats rather than an error.
	w = httptest.NewRecorder()
	s.dailyStatsHandler(w, httptest.NewRequest(http.MethodGet, "/stats/daily?date=2026-01-01", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("unknown date should still be 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"message_count":0`) {
		t.Errorf("expected zeroed stats: %s", w.Body.String())
	}

	// Malformed date.
	w = httptest.NewRecorder()
	s.dailyStatsHandler(w, httptest.NewRequest(http.MethodGet, "/stats/daily?date=30-08-2026", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed date should be 400, got %d", w.Code)
	}
}

func TestWebhookHandlerDelegatesToTwilio(t *testing.T) {
	s, _ := newTestServer(t, testNodes())

	form := "From=whatsapp%3A%2B5511999990001&Body=oi&MessageSid=SM0001"
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.webhookHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("webhook should ack with 200, got %d", w.Code)
	}

	// The inbound message is queued for the dispatcher.
	select {
	case resp := <-s.msgService.Responses():
		if resp.Body != "oi" || resp.MessageID != "SM0001" {
			t.Errorf("unexpected queued response: %+v", resp)
		}
	default:
		t.Error("expected the inbound message on the response channel")
	}
}

func TestWebhookHandlerWithoutTwilioTransport(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.twilioSvc = nil

	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", nil)
	w := httptest.NewRecorder()
	s.webhookHandler(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("webhook without Twilio transport should be 404, got %d", w.Code)
	}
}

func TestProcessInboundRepliesAndDedups(t *testing.T) {
	s, mock := newTestServer(t, testNodes())
	ctx := context.Background()

	s.processInbound(ctx, "whatsapp:+5511999990001", "oi", "SM0001")
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(mock.SentMessages))
	}
	if !strings.Contains(mock.SentMessages[0].Body, "Menu principal") {
		t.Errorf("greeting reply should include the main menu: %q", mock.SentMessages[0].Body)
	}

	// Redelivery of the same transport message id is absorbed.
	s.processInbound(ctx, "whatsapp:+5511999990001", "oi", "SM0001")
	if len(mock.SentMessages) != 1 {
		t.Errorf("duplicate delivery should not produce a second reply, got %d", len(mock.SentMessages))
	}

	// A new message id is processed normally.
	s.processInbound(ctx, "whatsapp:+5511999990001", "1", "SM0002")
	if len(mock.SentMessages) != 2 {
		t.Errorf("expected 2 replies after new message, got %d", len(mock.SentMessages))
	}
}

func TestProcessInboundDropsInvalidSender(t *testing.T) {
	s, mock := newTestServer(t, testNodes())

	s.processInbound(context.Background(), "not-a-phone", "oi", "SM0003")
	if len(mock.SentMessages) != 0 {
		t.Errorf("invalid sender must be dropped, got %d replies", len(mock.SentMessages))
	}
}

func TestBuildStoreSelectsBackend(t *testing.T) {
	st, dedup, err := buildStore(nil)
	if err != nil {
		t.Fatalf("buildStore with no options: %v", err)
	}
	if _, ok := st.(*store.InMemoryStore); !ok {
		t.Errorf("expected in-memory store, got %T", st)
	}
	if dedup == nil {
		t.Error("dedup repo missing")
	}
}
