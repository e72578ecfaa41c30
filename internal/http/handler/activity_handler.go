package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/domain"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/http/middleware"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/http/response"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/service"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = service.DefaultActivityCapacity
)

type ActivityHandler struct {
	recorder  service.ActivityRecorder
	reader    service.ActivityReader
	validator *requestValidator
}

func NewActivityHandler(recorder service.ActivityRecorder, reader service.ActivityReader) *ActivityHandler {
	return &ActivityHandler{recorder: recorder, reader: reader, validator: NewValidator()}
}

type logActivityRequest struct {
	UserID   string         `json:"userId" validate:"omitempty,max=64"`
	Action   string         `json:"action" validate:"required,max=200"`
	Type     string         `json:"type" validate:"required"`
	Metadata map[string]any `json:"metadata"`
}

// Log appends an event. The user id defaults to the caller; only admins may
// record events on behalf of another user.
func (h *ActivityHandler) Log(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	var req logActivityRequest
	if !bindJSON(w, r, h.validator, &req) {
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = claims.Subject
	}
	if userID != claims.Subject && claims.Role != domain.RoleAdmin {
		response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "cannot record activity for another user", nil)
		return
	}

	ev, err := h.recorder.Append(userID, req.Action, domain.ParseActivityType(req.Type), req.Metadata)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, ev)
}

func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit", defaultActivityLimit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if limit > maxActivityLimit {
		writeServiceError(w, r, domain.NewValidationError("limit", "must be at most "+strconv.Itoa(maxActivityLimit)))
		return
	}
	offset, err := intParam(q.Get("offset"), "offset", 0)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var filter domain.ActivityType
	if raw := strings.TrimSpace(q.Get("type")); raw != "" {
		filter = domain.ParseActivityType(raw)
	}

	events, total, err := h.reader.Query(limit, offset, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.List(w, r, events, total, limit, offset)
}

func (h *ActivityHandler) Summary(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.reader.Summary())
}

func intParam(raw, field string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(field, "must be an integer")
	}
	return n, nil
}
