package handler

import (
	"errors"
	"net/http"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/domain"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/http/middleware"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/http/response"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/observability"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/security"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/service"
)

const forgotPasswordMessage = "if the email is registered, password reset instructions have been sent"

type AuthHandler struct {
	auth             service.AuthServiceInterface
	validator        *requestValidator
	exposeResetToken bool
}

func NewAuthHandler(auth service.AuthServiceInterface, exposeResetToken bool) *AuthHandler {
	return &AuthHandler{auth: auth, validator: NewValidator(), exposeResetToken: exposeResetToken}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type forgotPasswordResponse struct {
	Message    string `json:"message"`
	ResetToken string `json:"resetToken,omitempty"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.bind(w, r, &req) {
		return
	}
	res, err := h.auth.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.register", "user_id", res.User.ID)
	response.JSON(w, r, http.StatusCreated, res)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.bind(w, r, &req) {
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		observability.Audit(r, "auth.login", "outcome", "failure")
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.login", "outcome", "success", "user_id", res.User.ID)
	response.JSON(w, r, http.StatusOK, res)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.bind(w, r, &req) {
		return
	}
	res, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		// A refresh token whose subject no longer exists is just another
		// unusable token.
		if errors.Is(err, domain.ErrUserNotFound) {
			err = &security.AuthError{Kind: security.InvalidSignature, Err: err}
		}
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.bind(w, r, &req) {
		return
	}
	token, err := h.auth.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := forgotPasswordResponse{Message: forgotPasswordMessage}
	if h.exposeResetToken {
		resp.ResetToken = token
	}
	observability.Audit(r, "auth.password_forgot")
	response.JSON(w, r, http.StatusOK, resp)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			err = &security.AuthError{Kind: security.InvalidSignature, Err: err}
		}
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.password_reset")
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "password updated"})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	if err := h.auth.Logout(r.Context(), claims.Subject); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.logout", "user_id", claims.Subject)
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	user, err := h.auth.Me(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *AuthHandler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	return bindJSON(w, r, h.validator, dst)
}
