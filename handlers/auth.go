package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"leaveflow/apperr"
	"leaveflow/middleware"
	"leaveflow/models"
)

const minPasswordLength = 8

type Credentials interface {
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	SetPassword(ctx context.Context, userID uint, hash string) error
}

// SessionCache drops cached authorization decisions for an actor.
type SessionCache interface {
	Invalidate(actorID uint)
}

type AuthHandler struct {
	auth  *middleware.Auth
	users Credentials
	cache SessionCache
	log   zerolog.Logger
}

func NewAuthHandler(auth *middleware.Auth, users Credentials, cache SessionCache, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:  auth,
		users: users,
		cache: cache,
		log:   log,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token              string       `json:"token"`
	User               *models.User `json:"user"`
	MustChangePassword bool         `json:"must_change_password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}

	user, err := h.users.UserByUsername(r.Context(), body.Username)
	if apperr.Is(err, apperr.KindNotFound) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials"})
		return
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials"})
		return
	}

	token, err := h.auth.GenerateToken(user)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.auth.Expiration().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	h.log.Info().Uint("actor_id", user.ID).Msg("login")
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user, MustChangePassword: user.MustChangePassword})
}

// Logout clears the session cookie and the actor's cached permissions.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if user := middleware.GetUserFromContext(r.Context()); user != nil {
		h.cache.Invalidate(user.ID)
	}
	middleware.ClearTokenCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var body changePasswordRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.CurrentPassword)); err != nil {
		writeError(w, h.log, apperr.Validation("current_password", "is incorrect"))
		return
	}
	if len(body.NewPassword) < minPasswordLength {
		writeError(w, h.log, apperr.Validation("new_password", "must be at least 8 characters"))
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(body.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.users.SetPassword(r.Context(), user.ID, string(hashedPassword)); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
