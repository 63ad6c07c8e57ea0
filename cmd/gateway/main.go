package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/helloclass/helloclass-lms/internal/api/http"
	auth "github.com/helloclass/helloclass-lms/internal/auth/middleware"
	"github.com/helloclass/helloclass-lms/internal/config"
	"github.com/helloclass/helloclass-lms/internal/db"
	"github.com/helloclass/helloclass-lms/internal/exam"
	"github.com/helloclass/helloclass-lms/internal/generator"
	"github.com/helloclass/helloclass-lms/internal/inventory"
	"github.com/helloclass/helloclass-lms/internal/quota"
	"github.com/helloclass/helloclass-lms/internal/results"
	storage "github.com/helloclass/helloclass-lms/internal/storage"
	syncx "github.com/helloclass/helloclass-lms/internal/sync"
)

func main() {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()

	store := exam.NewSQLStore(dbh, cfg.DBDriver)
	inv := inventory.NewSQLInventory(dbh)
	events := syncx.NewEventRepo(dbh)

	pub, err := syncx.NewAMQPPublisher(cfg.RabbitMQURI, cfg.RabbitMQExchange)
	if err != nil {
		log.Fatalf("event publisher: %v", err)
	}
	defer pub.Close()
	sink := results.NewSink(dbh, events, pub)

	// --- AI generation (optional) ---
	var (
		gen       exam.Generator
		explainer api.Explainer
	)
	if cfg.GeminiAPIKey != "" {
		g, err := generator.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatalf("gemini client: %v", err)
		}
		gen, explainer = g, g
	} else {
		log.Println("GEMINI_API_KEY not set, AI exams are disabled")
	}

	sessions := exam.NewService(gen, quota.NewDaily(dbh, cfg.DailyFreeLimit), store, inv, sink, exam.ServiceConfig{
		MinDuration:           cfg.MinDurationMinutes,
		DefaultMarketDuration: cfg.DefaultMarketDuration,
		Retention:             cfg.SessionRetention,
	})
	defer sessions.Close()
	go sessions.RunSweeper(ctx, time.Minute)

	bs, err := storage.NewFSStore(cfg.BlobBasePath, cfg.PublicURL)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	// AI generation can take a while
	r.Use(middleware.Timeout(90 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	api.Mount(r, api.Deps{
		DB:                 dbh,
		Auth:               auth.NewAuthService(cfg.HMACSecret),
		Sessions:           sessions,
		Store:              store,
		Inventory:          inv,
		History:            sink,
		Explainer:          explainer,
		Events:             events,
		Blobs:              bs,
		EnableLocalAuth:    cfg.EnableLocalAuth,
		AllowClaimFallback: cfg.Mode == config.ModeOffline,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s (mode=%s, db=%s, events=%v)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver, pub.Enabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http: %v", err)
	}
}
