package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/helloclass/helloclass-lms/internal/auth/middleware"
	"github.com/helloclass/helloclass-lms/internal/exam"
	"github.com/helloclass/helloclass-lms/internal/inventory"
	"github.com/helloclass/helloclass-lms/internal/metrics"
	"github.com/helloclass/helloclass-lms/internal/rbac"
	"github.com/helloclass/helloclass-lms/internal/storage"
)

type Deps struct {
	DB        *sql.DB
	Auth      *authmw.AuthService
	Sessions  *exam.Service
	Store     exam.Store
	Inventory *inventory.SQLInventory
	History   HistoryLister
	Explainer Explainer     // optional
	Events    EventAppender // optional
	Blobs     storage.BlobStore

	EnableLocalAuth    bool
	AllowClaimFallback bool // trust token roles for users missing from the DB
}

// Mount registers every API route on r. Global middleware (logging, CORS,
// timeouts) is the caller's business.
func Mount(r chi.Router, d Deps) {
	if d.EnableLocalAuth {
		r.Post("/auth/login", authmw.LoginHandler(d.Auth, d.DB))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metrics.Handler())

	g := rbac.NewGuard(nil, authmw.RoleFromContext)

	// Protected API (JWT → role from DB → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth))
		pr.Use(authmw.AttachRoleFromDB(d.DB, d.AllowClaimFallback))

		pr.Route("/sessions", func(sr chi.Router) {
			sr.Use(g.Require("session:play"))
			sr.With(g.Require("session:start")).Post("/ai", StartAISessionHandler(d.Sessions))
			sr.With(g.Require("session:start")).Post("/market", StartMarketSessionHandler(d.Sessions))
			sr.Get("/{id}", GetSessionHandler(d.Sessions))
			sr.Delete("/{id}", AbandonHandler(d.Sessions))
			sr.Post("/{id}/answers", SelectAnswerHandler(d.Sessions))
			sr.Post("/{id}/jokers/fifty", FiftyFiftyHandler(d.Sessions))
			sr.Post("/{id}/jokers/skip", SkipHandler(d.Sessions))
			sr.Post("/{id}/advance", AdvanceHandler(d.Sessions))
			sr.Post("/{id}/finish", FinishHandler(d.Sessions))
			sr.Post("/{id}/explain", ExplainHandler(d.Sessions, d.Explainer))
		})

		pr.With(g.Require("exam:view")).Get("/exams", ListExamsHandler(d.Store))
		pr.With(g.Require("exam:create")).Post("/exams", CreateExamHandler(d.Store))
		pr.With(g.RequireAny("exam:import", "exam:create")).Get("/exams/import/template", ImportTemplateHandler())
		pr.With(g.Require("exam:view")).Get("/exams/{examID}", GetExamHandler(d.Store))
		pr.With(g.Require("exam:import")).Post("/exams/{examID}/import", ImportQuestionsHandler(d.Store, d.Events))
		pr.With(g.Require("exam:purchase")).Post("/exams/{examID}/purchase", PurchaseExamHandler(d.Store, d.Events))
		pr.With(g.Require("exam:moderate")).Put("/exams/{examID}/status", SetExamStatusHandler(d.Store))
		pr.With(g.RequireOwned("exam:delete", examOwner(d.Store))).
			Delete("/exams/{examID}", DeleteExamHandler(d.Store))

		pr.With(g.Require("shop:view")).Get("/shop", ListShopHandler())
		pr.With(g.Require("shop:buy")).Post("/shop/{itemID}/buy", BuyItemHandler(d.Inventory, d.Events))

		pr.With(g.Require("profile:view-own")).Get("/me/inventory", InventoryHandler(d.Inventory))
		pr.With(g.Require("profile:view-own")).Get("/me/history", HistoryHandler(d.History))
		pr.With(g.Require("leaderboard:view")).Get("/leaderboard", LeaderboardHandler(d.DB))

		pr.With(g.Require("users:bulk_upsert")).Post("/users/bulk", BulkUpsertUsersHandler(d.DB))
		pr.With(g.Require("users:list")).Get("/users", ListUsersHandler(d.DB))
		pr.With(g.Require("user:change_password")).Post("/users/change-password", ChangePasswordHandler(d.DB))
		pr.With(g.Require("users:manage")).Patch("/users/{userID}", AdminUpdateUserHandler(d.DB))

		if d.Blobs != nil {
			pr.Route("/assets", func(ar chi.Router) {
				MountAssets(ar, d.Blobs, g)
			})
		}
	})
}
