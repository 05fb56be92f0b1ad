package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"leaveflow/authz"
	"leaveflow/middleware"
)

type Router struct {
	Auth     *middleware.Auth
	Gate     middleware.Authorizer
	Session  *AuthHandler
	Requests *RequestHandler
	Admin    *AdminHandler
}

func (rt *Router) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Post("/login", rt.Session.Login)

	router.Group(func(r chi.Router) {
		r.Use(rt.Auth.Middleware)

		r.Post("/logout", rt.Session.Logout)
		r.Put("/password", rt.Session.ChangePassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePasswordChange("/password", "/logout"))

			r.Post("/requests", rt.Requests.Submit)
			r.Get("/requests/mine", rt.Requests.Mine)
			r.Get("/requests/{id}", rt.Requests.Get)
			r.Post("/requests/{id}/approve", rt.Requests.Approve)
			r.Post("/requests/{id}/reject", rt.Requests.Reject)
			r.Post("/requests/{id}/cancel", rt.Requests.Cancel)
			r.Get("/approvals/pending", rt.Requests.PendingApprovals)
			r.Get("/balances/me", rt.Requests.MyBalances)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(rt.Gate, authz.PermManageUsers))
				r.Put("/users/{id}/role", rt.Admin.SetRole)
				r.Put("/users/{id}/supervisor", rt.Admin.SetSupervisor)
				r.Post("/teams/{id}/supervisors", rt.Admin.AssignTeamSupervisor)
				r.Delete("/team-supervisors/{id}", rt.Admin.RemoveTeamSupervisor)
				r.Put("/balances/{userID}/{category}", rt.Admin.SetEntitlement)
				r.Post("/admin/authz/flush", rt.Admin.FlushPermissions)
			})
		})
	})

	return router
}
