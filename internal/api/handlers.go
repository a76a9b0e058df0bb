// Package api provides HTTP handlers for AtendeBot endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/comunidadegraca/atendebot/internal/models"
)

// webhookHandler receives inbound Twilio form posts (POST /webhook/twilio).
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.twilioSvc == nil {
		slog.Warn("Server.webhookHandler: webhook called but Twilio transport not active")
		writeJSONResponse(w, http.StatusNotFound, models.Error("Twilio transport not active"))
		return
	}
	s.twilioSvc.WebhookHandler(w, r)
}

// sendRequest is the payload for manual outbound sends.
type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// sendHandler sends a message directly (POST /messages), for admin and testing use.
func (s *Server) sendHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sendHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Body == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: body"))
		return
	}

	canonicalTo, err := s.msgService.ValidateAndCanonicalizeRecipient(req.To)
	if err != nil {
		slog.Warn("Server.sendHandler: recipient validation failed", "error", err, "original_to", req.To)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.msgService.SendMessage(context.Background(), canonicalTo, req.Body); err != nil {
		slog.Error("Server.sendHandler: failed to send message", "error", err, "to", canonicalTo)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send message"))
		return
	}

	slog.Info("Server.sendHandler: message sent successfully", "to", canonicalTo)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Message sent successfully", nil))
}

// menuHandler returns the cached menu tree (GET /menu).
func (s *Server) menuHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	roots := s.cache.RootNodes()
	type nodeView struct {
		models.MenuNode
		Children []models.MenuNode `json:"children,omitempty"`
	}
	tree := make([]nodeView, 0, len(roots))
	for _, root := range roots {
		tree = append(tree, nodeView{MenuNode: root, Children: s.cache.Children(root.ID)})
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"loaded":       s.cache.Loaded(),
		"size":         s.cache.Size(),
		"refreshed_at": s.cache.RefreshedAt(),
		"tree":         tree,
	}))
}

// menuRefreshHandler forces a cache refresh (POST /menu/refresh).
func (s *Server) menuRefreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := s.cache.Refresh(r.Context()); err != nil {
		slog.Error("Server.menuRefreshHandler: refresh failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Menu refresh failed, previous snapshot retained"))
		return
	}

	slog.Info("Server.menuRefreshHandler: menu cache refreshed", "size", s.cache.Size())
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Menu cache refreshed", map[string]int{"size": s.cache.Size()}))
}

// menuNodesHandler routes menu node administration requests:
// POST /menu/nodes, PUT /menu/nodes/{id}, DELETE /menu/nodes/{id}.
func (s *Server) menuNodesHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/menu/nodes")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodPost:
			s.createMenuNodeHandler(w, r)
		default:
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	nodeID := path
	switch r.Method {
	case http.MethodPut:
		s.updateMenuNodeHandler(w, r, nodeID)
	case http.MethodDelete:
		s.deactivateMenuNodeHandler(w, r, nodeID)
	default:
		w.Header().Set("Allow", "PUT, DELETE")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// createMenuNodeHandler handles POST /menu/nodes.
func (s *Server) createMenuNodeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var n models.MenuNode
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	now := time.Now()
	n.IsActive = true
	n.CreatedAt = now
	n.UpdatedAt = now
	if n.Kind == "" {
		n.Kind = models.NodeKindContent
	}
	if err := n.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.SaveMenuNode(n); err != nil {
		slog.Error("Server.createMenuNodeHandler: save failed", "error", err, "id", n.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save menu node"))
		return
	}
	slog.Info("Server.createMenuNodeHandler: menu node created", "id", n.ID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Menu node created; refresh the cache to publish", n))
}

// updateMenuNodeHandler handles PUT /menu/nodes/{id}.
func (s *Server) updateMenuNodeHandler(w http.ResponseWriter, r *http.Request, nodeID string) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	existing, err := s.st.GetMenuNode(nodeID)
	if err != nil {
		slog.Error("Server.updateMenuNodeHandler: lookup failed", "error", err, "id", nodeID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load menu node"))
		return
	}
	if existing == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Menu node not found"))
		return
	}

	var n models.MenuNode
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	n.ID = nodeID
	n.CreatedAt = existing.CreatedAt
	n.UpdatedAt = time.Now()
	if n.Kind == "" {
		n.Kind = existing.Kind
	}
	n.IsActive = existing.IsActive
	if err := n.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.SaveMenuNode(n); err != nil {
		slog.Error("Server.updateMenuNodeHandler: save failed", "error", err, "id", nodeID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save menu node"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Menu node updated; refresh the cache to publish", n))
}

// deactivateMenuNodeHandler handles DELETE /menu/nodes/{id} (soft delete).
func (s *Server) deactivateMenuNodeHandler(w http.ResponseWriter, r *http.Request, nodeID string) {
	existing, err := s.st.GetMenuNode(nodeID)
	if err != nil {
		slog.Error("Server.deactivateMenuNodeHandler: lookup failed", "error", err, "id", nodeID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load menu node"))
		return
	}
	if existing == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Menu node not found"))
		return
	}
	if err := s.st.DeactivateMenuNode(nodeID); err != nil {
		slog.Error("Server.deactivateMenuNodeHandler: deactivate failed", "error", err, "id", nodeID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to deactivate menu node"))
		return
	}
	slog.Info("Server.deactivateMenuNodeHandler: menu node deactivated", "id", nodeID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Menu node deactivated; refresh the cache to publish", nil))
}

// sessionsHandler returns recent sessions (GET /sessions).
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessions, err := s.st.ListRecentSessions(50)
	if err != nil {
		slog.Error("Server.sessionsHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch sessions"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	}))
}

// dailyStatsHandler returns daily aggregates (GET /stats/daily?date=YYYY-MM-DD).
func (s *Server) dailyStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("date must be in YYYY-MM-DD format"))
		return
	}

	stats, err := s.st.GetDailyStats(date)
	if err != nil {
		slog.Error("Server.dailyStatsHandler: lookup failed", "error", err, "date", date)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch daily stats"))
		return
	}
	if stats == nil {
		stats = &models.DailyStats{Date: date}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

// healthHandler provides a health check endpoint for monitoring (GET /health).
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	_, storeErr := s.st.ListRecentSessions(1)

	healthData := map[string]interface{}{
		"status":               "healthy",
		"timestamp":            time.Now().UTC().Format(time.RFC3339),
		"menu_loaded":          s.cache.Loaded(),
		"menu_size":            s.cache.Size(),
		"active_conversations": s.states.Len(),
		"store_ok":             storeErr == nil,
	}

	statusCode := http.StatusOK
	if !s.cache.Loaded() {
		healthData["status"] = "degraded"
		healthData["detail"] = "menu cache has never loaded"
		statusCode = http.StatusServiceUnavailable
	}
	if storeErr != nil {
		slog.Error("Server.healthHandler: store unreachable", "error", storeErr)
		healthData["status"] = "degraded"
		healthData["detail"] = "store unreachable"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}
