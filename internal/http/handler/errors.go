package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/domain"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/http/middleware"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/http/response"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/security"
)

// writeServiceError maps service errors onto HTTP statuses. Token failures of
// every kind collapse into one 401 so callers cannot tell the causes apart.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", ve.Message, map[string]string{"field": ve.Field})
	case security.IsAuthError(err):
		slog.DebugContext(r.Context(), "token rejected", "error", err)
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", middleware.InvalidTokenMessage, nil)
	case errors.Is(err, domain.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password", nil)
	case errors.Is(err, domain.ErrUserExists):
		response.Error(w, r, http.StatusConflict, "USER_EXISTS", "an account with this email already exists", nil)
	case errors.Is(err, domain.ErrUserNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(w, r, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large", nil)
			return false
		}
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", msg, nil)
		return false
	}
	return true
}

func bindJSON(w http.ResponseWriter, r *http.Request, v *requestValidator, dst any) bool {
	if !decodeJSON(w, r, dst) {
		return false
	}
	if err := v.Validate(dst); err != nil {
		writeServiceError(w, r, err)
		return false
	}
	return true
}
