package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"habsync/internal/engine"
	"habsync/internal/store"
)

// actionRequest is the body of POST /api/sync. Which fields matter depends
// on the action.
type actionRequest struct {
	Action      string `json:"action"`
	ConfigID    string `json:"configId"`
	EndpointURL string `json:"endpointUrl"`
	AuthToken   string `json:"authToken"`
}

type syncResponse struct {
	Success bool     `json:"success"`
	Synced  int      `json:"synced"`
	Total   int      `json:"total"`
	Errors  []string `json:"errors,omitempty"`
}

type probeResponse struct {
	Success   bool   `json:"success"`
	ItemCount *int   `json:"itemCount,omitempty"`
	Message   string `json:"message"`
}

type candidateJSON struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Label    string `json:"label"`
	State    string `json:"state,omitempty"`
	Category string `json:"category,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	// auto-sync is the scheduler's path; everything else is an operator.
	required := s.apiToken
	if req.Action == "auto-sync" {
		required = s.cronToken
	}
	if !authorized(r, required) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing or invalid bearer token"})
		return
	}

	switch req.Action {
	case "test-connection":
		s.handleTestConnection(w, r, req)
	case "fetch-items":
		s.handleFetchItems(w, r, req)
	case "sync-data":
		s.handleSync(w, r, req, store.TriggerManual)
	case "auto-sync":
		s.handleSync(w, r, req, store.TriggerAutomatic)
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown action " + strconv.Quote(req.Action)})
	}
}

// handleTestConnection runs the connection prober against operator-entered
// draft values. Probe failures are a soft success=false payload, never an
// error status: this path exists for interactive feedback.
func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request, req actionRequest) {
	if req.EndpointURL == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "endpointUrl is required"})
		return
	}

	res := s.probe(r.Context(), req.EndpointURL, req.AuthToken)
	resp := probeResponse{Success: res.OK, Message: res.Message}
	if res.OK {
		count := res.ItemCount
		resp.ItemCount = &count
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFetchItems(w http.ResponseWriter, r *http.Request, req actionRequest) {
	if req.ConfigID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "configId is required"})
		return
	}

	candidates, err := s.discoverer.Discover(r.Context(), req.ConfigID)
	if err != nil {
		s.writeFailure(w, "item discovery", err)
		return
	}

	items := make([]candidateJSON, 0, len(candidates))
	for _, c := range candidates {
		items = append(items, candidateJSON{
			Name:     c.Name,
			Type:     c.Type,
			Label:    c.Label,
			State:    c.State,
			Category: c.Category,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request, req actionRequest, trigger store.TriggerKind) {
	if req.ConfigID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "configId is required"})
		return
	}

	res, err := s.runner.Run(r.Context(), req.ConfigID, trigger)
	if err != nil {
		s.writeFailure(w, "sync run", err)
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		Success: true,
		Synced:  res.Synced,
		Total:   res.Total,
		Errors:  res.Errors,
	})
}

type logEntryJSON struct {
	ID           string `json:"id"`
	ConfigID     string `json:"configId"`
	Trigger      string `json:"trigger"`
	Outcome      string `json:"outcome"`
	ItemsSynced  int    `json:"itemsSynced"`
	ErrorSummary string `json:"errorSummary,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !authorized(r, s.apiToken) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing or invalid bearer token"})
		return
	}

	configID := r.URL.Query().Get("configId")
	if configID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "configId is required"})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "limit must be an integer between 1 and 500"})
			return
		}
		limit = n
	}

	entries, err := s.audit.ListLogEntries(r.Context(), configID, limit)
	if err != nil {
		s.writeFailure(w, "sync history", err)
		return
	}

	out := make([]logEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, logEntryJSON{
			ID:           e.ID,
			ConfigID:     e.ConfigID,
			Trigger:      string(e.Trigger),
			Outcome:      string(e.Outcome),
			ItemsSynced:  e.ItemsSynced,
			ErrorSummary: e.ErrorSummary,
			CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// writeFailure flattens an internal error to a readable message. Typed
// errors never cross this boundary.
func (s *Server) writeFailure(w http.ResponseWriter, op string, err error) {
	status := http.StatusBadGateway
	if engine.IsPrecondition(err) {
		status = http.StatusConflict
	} else {
		s.log.Error(op+" failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// authorized checks the request's bearer token. An empty required token
// disables the check.
func authorized(r *http.Request, required string) bool {
	if required == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	return ok && token == required
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
