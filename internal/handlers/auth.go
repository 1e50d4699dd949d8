package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/saffron-market/api/internal/platform/httpx"
	"github.com/saffron-market/api/internal/platform/requestctx"
	"github.com/saffron-market/api/internal/services"
)

const maxAuthRequestBody = 8 * 1024

// AuthHandlers exposes account registration and login endpoints.
type AuthHandlers struct {
	users services.UserService
}

// NewAuthHandlers constructs the auth endpoints over the user service.
func NewAuthHandlers(users services.UserService) *AuthHandlers {
	return &AuthHandlers{users: users}
}

// Routes registers the auth endpoints under the provided router.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/register", h.register)
	r.Post("/login", h.login)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	EmailOrUsername string `json:"emailOrUsername"`
	Password        string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  any    `json:"user"`
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_unavailable", "account service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req registerRequest
	if !decodeRequest(w, r, &req, maxAuthRequestBody) {
		return
	}

	summary, err := h.users.Register(ctx, services.RegisterCommand{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserExists):
			httpx.WriteError(ctx, w, httpx.NewError("user_exists", "username or email is already registered", http.StatusBadRequest))
		case errors.Is(err, services.ErrUserInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			requestctx.Logger(ctx).Error("register failed", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("internal_error", "registration failed", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{"user": summary})
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_unavailable", "account service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req loginRequest
	if !decodeRequest(w, r, &req, maxAuthRequestBody) {
		return
	}

	result, err := h.users.Login(ctx, services.LoginCommand{
		EmailOrUsername: req.EmailOrUsername,
		Password:        req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "no account matches the given identifier", http.StatusNotFound))
		case errors.Is(err, services.ErrBadCredentials):
			httpx.WriteError(ctx, w, httpx.NewError("bad_credentials", "password does not match", http.StatusBadRequest))
		case errors.Is(err, services.ErrUserInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			requestctx.Logger(ctx).Error("login failed", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("internal_error", "login failed", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, loginResponse{Token: result.Token, User: result.User})
}

