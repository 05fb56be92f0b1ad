package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"leaveflow/middleware"
	"leaveflow/models"
)

type UserAdmin interface {
	SetRole(ctx context.Context, userID uint, role models.Role) error
	SetSupervisor(ctx context.Context, userID uint, supervisorID *uint) error
	AssignTeamSupervisor(ctx context.Context, teamID, supervisorID uint) error
	RemoveTeamSupervisor(ctx context.Context, assignmentID uint) error
}

type Entitlements interface {
	SetEntitlement(ctx context.Context, ownerID uint, category string, total float64) (*models.Balance, error)
}

// PermissionCache is the part of the authorization gate admins can flush.
type PermissionCache interface {
	Invalidate(actorID uint)
	Clear()
}

type AdminHandler struct {
	users        UserAdmin
	entitlements Entitlements
	cache        PermissionCache
	log          zerolog.Logger
}

func NewAdminHandler(users UserAdmin, entitlements Entitlements, cache PermissionCache, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		users:        users,
		entitlements: entitlements,
		cache:        cache,
		log:          log,
	}
}

type roleRequest struct {
	Role models.Role `json:"role"`
}

// SetRole changes a user's role. The user's cached permissions are dropped
// so the change applies to the next decision.
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var body roleRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.users.SetRole(r.Context(), id, body.Role); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.cache.Invalidate(id)
	h.log.Info().
		Uint("actor_id", actorID(r)).
		Uint("user_id", id).
		Str("role", string(body.Role)).
		Msg("role changed")
	w.WriteHeader(http.StatusNoContent)
}

type supervisorRequest struct {
	SupervisorID *uint `json:"supervisor_id"`
}

func (h *AdminHandler) SetSupervisor(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var body supervisorRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.users.SetSupervisor(r.Context(), id, body.SupervisorID); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type teamSupervisorRequest struct {
	UserID uint `json:"user_id"`
}

func (h *AdminHandler) AssignTeamSupervisor(w http.ResponseWriter, r *http.Request) {
	teamID, err := uintParam(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var body teamSupervisorRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.users.AssignTeamSupervisor(r.Context(), teamID, body.UserID); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *AdminHandler) RemoveTeamSupervisor(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.users.RemoveTeamSupervisor(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type entitlementRequest struct {
	Total float64 `json:"total"`
}

func (h *AdminHandler) SetEntitlement(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uintParam(r, "userID")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var body entitlementRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}
	balance, err := h.entitlements.SetEntitlement(r.Context(), ownerID, chi.URLParam(r, "category"), body.Total)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// FlushPermissions drops every cached authorization decision.
func (h *AdminHandler) FlushPermissions(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear()
	h.log.Info().Uint("actor_id", actorID(r)).Msg("authorization cache flushed")
	w.WriteHeader(http.StatusNoContent)
}

func actorID(r *http.Request) uint {
	if user := middleware.GetUserFromContext(r.Context()); user != nil {
		return user.ID
	}
	return 0
}
