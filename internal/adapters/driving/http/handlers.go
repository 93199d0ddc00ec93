package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/custodia-labs/storesync/internal/core/domain"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListResponse is the state of a paginated list
type ListResponse struct {
	List         domain.ListName   `json:"list"`
	SiteID       int64             `json:"site_id"`
	Status       domain.SyncStatus `json:"status"`
	Rows         []*domain.Record  `json:"rows"`
	HasMoreItems bool              `json:"has_more_items"`
	Syncing      bool              `json:"syncing"`
	Error        string            `json:"error,omitempty"`
}

func newListResponse(e domain.ListEvent) ListResponse {
	rows := e.Rows
	if rows == nil {
		rows = []*domain.Record{}
	}
	return ListResponse{
		List:         e.List,
		SiteID:       e.SiteID,
		Status:       e.Status,
		Rows:         rows,
		HasMoreItems: e.HasMoreItems,
		Syncing:      e.Syncing,
		Error:        e.Error,
	}
}

// VisibleRequest reports the last row index shown by the UI
type VisibleRequest struct {
	LastVisibleIndex *int `json:"last_visible_index"`
}

// SetSettingRequest sets one setting
type SetSettingRequest struct {
	Value string `json:"value"`
}

// SettingResponse is one setting in string form
type SettingResponse struct {
	Key   domain.SettingKey `json:"key"`
	Value string            `json:"value"`
}

// Health endpoints

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for name, check := range s.checks {
		if check == nil {
			continue
		}
		if err := check.Ping(r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// List endpoints

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	siteID, name := siteFromPath(r), domain.ListName(r.PathValue("list"))

	event, err := s.listService.State(r.Context(), siteID, name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(event))
}

func (s *Server) handleSyncList(w http.ResponseWriter, r *http.Request) {
	siteID, name := siteFromPath(r), domain.ListName(r.PathValue("list"))

	event, err := s.listService.SyncFirstPage(r.Context(), siteID, name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newListResponse(event))
}

func (s *Server) handleVisible(w http.ResponseWriter, r *http.Request) {
	siteID, name := siteFromPath(r), domain.ListName(r.PathValue("list"))

	var req VisibleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LastVisibleIndex == nil {
		writeError(w, http.StatusBadRequest, "last_visible_index is required")
		return
	}

	event, err := s.listService.EnsureVisible(r.Context(), siteID, name, *req.LastVisibleIndex)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(event))
}

// Settings endpoints

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settingsService.Get(r.Context(), siteFromPath(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	siteID := siteFromPath(r)

	var values map[domain.SettingKey]string
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings, err := s.settingsService.Update(r.Context(), siteID, values)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.listService.Invalidate(siteID)
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	siteID := siteFromPath(r)

	if err := s.settingsService.Reset(r.Context(), siteID); err != nil {
		writeServiceError(w, err)
		return
	}
	s.listService.Invalidate(siteID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := domain.SettingKey(r.PathValue("key"))

	value, err := s.settingsService.GetValue(r.Context(), siteFromPath(r), key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SettingResponse{Key: key, Value: value})
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	siteID, key := siteFromPath(r), domain.SettingKey(r.PathValue("key"))

	var req SetSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings, err := s.settingsService.Set(r.Context(), siteID, key, req.Value)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.listService.Invalidate(siteID)
	writeJSON(w, http.StatusOK, settings)
}

// siteFromPath reads {site}; RequireSiteAccess has already validated it.
func siteFromPath(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.PathValue("site"), 10, 64)
	return id
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidPredicate),
		errors.Is(err, domain.ErrUnknownSetting):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrListNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
