package handlers

import (
	"github.com/gorilla/mux"

	"ms-reminders/internal/auth"
	"ms-reminders/internal/models"
)

const apiPrefix = "/api/reminders/v1"

// Router bundles the handlers mounted by RegisterRoutes
type Router struct {
	Auth         *auth.Authenticator
	Sessions     *SessionHandler
	Plans        *PlanHandler
	Appointments *AppointmentHandler
	Health       *HealthHandler
}

// RegisterRoutes mounts the reminder API and the probe endpoints on router
func (rt Router) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix(apiPrefix).Subrouter()

	// Public session endpoints
	api.HandleFunc("/session/login", rt.Sessions.Login).Methods("POST")
	api.HandleFunc("/session/register", rt.Sessions.Register).Methods("POST")

	authed := api.NewRoute().Subrouter()
	authed.Use(rt.Auth.AuthMiddleware)

	authed.HandleFunc("/session/logout", rt.Sessions.Logout).Methods("POST")
	authed.HandleFunc("/session/me", rt.Sessions.Me).Methods("GET")

	authed.HandleFunc("/plans/default", rt.Plans.DefaultPlan).Methods("GET")
	authed.HandleFunc("/plans/preview", rt.Plans.Preview).Methods("POST")

	authed.HandleFunc("/appointments", rt.Appointments.List).Methods("GET")
	authed.HandleFunc("/appointments/{id}", rt.Appointments.Get).Methods("GET")

	// Authoring endpoints for doctors and admins
	editors := authed.NewRoute().Subrouter()
	editors.Use(auth.RequireRoles(models.RoleAdmin, models.RoleDoctor))

	editors.HandleFunc("/appointments", rt.Appointments.Create).Methods("POST")
	editors.HandleFunc("/appointments/{id}/cancel", rt.Appointments.Cancel).Methods("POST")
	editors.HandleFunc("/appointments/{id}/plan", rt.Plans.ReplacePlan).Methods("PUT")
	editors.HandleFunc("/appointments/{id}/plan/channels", rt.Plans.ToggleChannel).Methods("POST")
	editors.HandleFunc("/appointments/{id}/plan/offsets", rt.Plans.AddOffset).Methods("POST")
	editors.HandleFunc("/appointments/{id}/plan/offsets/{index}", rt.Plans.RemoveOffset).Methods("DELETE")

	// Healthcheck endpoints (no authentication required)
	router.HandleFunc("/api/reminders/health", rt.Health.HandleHealth).Methods("GET")

	// K8s probe endpoints
	router.HandleFunc("/healthz", rt.Health.HandleHealth).Methods("GET")
	router.HandleFunc("/readyz", rt.Health.HandleReadiness).Methods("GET")
	router.HandleFunc("/livez", rt.Health.HandleLiveness).Methods("GET")
}
