package handlers

import (
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-rental/internal/auth"
	"github.com/ukydev/fleet-rental/internal/consignment"
	"github.com/ukydev/fleet-rental/internal/db"
	"github.com/ukydev/fleet-rental/internal/httpx"
	"github.com/ukydev/fleet-rental/internal/middleware"
	"github.com/ukydev/fleet-rental/internal/policy"
	"github.com/ukydev/fleet-rental/internal/users"
)

// RouterConfig carries everything the HTTP surface depends on.
type RouterConfig struct {
	Auth         *auth.Service
	Resolver     *auth.Resolver
	Consignments *consignment.Service
	UserAdmin    *users.Service
	Users        db.UserCollection
	Vehicles     db.VehicleCollection
	Log          *logrus.Entry

	Production  bool
	SubmitLimit int
	// SubmitWindow is the rate limit window of public submissions.
	SubmitWindow time.Duration
	// HealthCheck reports store reachability; nil means always healthy.
	HealthCheck func(r *http.Request) error
}

// NewRouter builds the API and admin page routes.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.SubmitWindow <= 0 {
		cfg.SubmitWindow = time.Minute
	}

	guard := middleware.NewGuard(cfg.Resolver, log)
	authHandler := NewAuthHandler(cfg.Auth, cfg.Users, log)
	consignmentHandler := NewConsignmentHandler(cfg.Consignments)
	vehicleHandler := NewVehicleHandler(cfg.Vehicles, log)
	userAdminHandler := NewUserAdminHandler(cfg.UserAdmin)
	submitLimiter := middleware.RateLimitByIP(cfg.SubmitLimit, cfg.SubmitWindow)
	credentialLimiter := middleware.RateLimitByIP(cfg.SubmitLimit, cfg.SubmitWindow)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecureHeaders(cfg.Production, log))
	r.Use(guard.Authenticate)

	r.Get("/health", healthHandler(cfg.HealthCheck))
	r.With(guard.RequirePage(policy.KindConsignment, policy.ActionReview)).Get("/admin", adminPage)

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(ar chi.Router) {
			ar.With(credentialLimiter).Post("/login", authHandler.Login)
			ar.With(credentialLimiter).Post("/register", authHandler.Register)
			ar.Post("/logout", authHandler.Logout)
			ar.Get("/me", authHandler.GetProfile)
		})

		api.Route("/consignments", func(cr chi.Router) {
			cr.With(submitLimiter).Post("/", consignmentHandler.Submit)
			cr.Get("/", consignmentHandler.List)
			cr.Get("/{id}", consignmentHandler.Get)
			cr.With(guard.RequireAccess(policy.KindConsignment, policy.ActionReview, nil)).
				Patch("/{id}", consignmentHandler.Update)
		})

		api.Route("/vehicles", func(vr chi.Router) {
			vr.With(guard.RequireAccess(policy.KindConsignment, policy.ActionPromote, nil)).
				Post("/create-from-consignment", consignmentHandler.Promote)
			vr.With(guard.RequireAccess(policy.KindFleetVehicle, policy.ActionCreate, nil)).
				Post("/", vehicleHandler.Create)
			vr.Get("/{id}", vehicleHandler.Get)
			vr.With(guard.RequireAccess(policy.KindFleetVehicle, policy.ActionDelete, nil)).
				Delete("/{id}", vehicleHandler.Delete)
		})

		api.Patch("/admin/users", userAdminHandler.Apply)
	})

	return r
}

func healthHandler(check func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r); err != nil {
				httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

var adminTemplate = template.Must(template.New("admin").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Fleet administration</title></head>
<body>
<main>
<h1>Fleet administration</h1>
<p>Signed in as {{.Email}} ({{.Role}}).</p>
<ul>
<li><a href="/api/consignments?status=pending">Pending consignments</a></li>
<li><a href="/api/consignments?status=approved">Approved consignments</a></li>
</ul>
<form method="post" action="/api/auth/logout"><button type="submit">Sign out</button></form>
</main>
</body>
</html>
`))

func adminPage(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = adminTemplate.Execute(w, p)
}
