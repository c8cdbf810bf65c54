// Package main is the entry point of the Aduan Desa portal server.
//
// The portal serves the resident and administrator web app and sits between
// the browser and the village PHP API. It keeps each browser's session,
// remembered logins and complaint draft in server-side storage keyed by a
// client cookie, guards the app's pages, and relays API calls with the
// stored bearer token.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aduan-desa/portal-server/internal/backend"
	"github.com/aduan-desa/portal-server/internal/complaint"
	"github.com/aduan-desa/portal-server/internal/config"
	"github.com/aduan-desa/portal-server/internal/database"
	"github.com/aduan-desa/portal-server/internal/draft"
	"github.com/aduan-desa/portal-server/internal/handlers"
	"github.com/aduan-desa/portal-server/internal/middleware"
	"github.com/aduan-desa/portal-server/internal/notifications"
	"github.com/aduan-desa/portal-server/internal/services"
	"github.com/aduan-desa/portal-server/internal/session"
	"github.com/aduan-desa/portal-server/internal/storage"
	"github.com/aduan-desa/portal-server/internal/validation"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	janitorInterval = 5 * time.Minute
	sessionMaxIdle  = 30 * time.Minute
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	sugar := logger.Sugar()

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("Failed to load config: %v", err)
	}

	sugar.Infow("Starting Aduan Desa portal server",
		"port", cfg.Port,
		"env", cfg.Environment,
		"backend_url", cfg.BackendURL,
		"storage", cfg.StorageDriver,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// PostgreSQL is optional unless it holds browser storage; when present
	// it also keeps the session audit trail.
	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = database.NewPool(cfg.DatabaseURL)
		if err != nil {
			sugar.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			sugar.Fatalf("Failed to migrate database: %v", err)
		}
	}

	store, storePing, closeStore, err := openStorage(cfg, db)
	if err != nil {
		sugar.Fatalf("Failed to open storage: %v", err)
	}
	defer closeStore()

	api, err := backend.New(backend.Config{
		BaseURL:       cfg.BackendURL,
		BypassHeader:  cfg.BackendBypassHeader,
		Timeout:       cfg.BackendTimeout,
		UploadTimeout: cfg.UploadTimeout,
	}, sugar)
	if err != nil {
		sugar.Fatalf("Failed to create backend client: %v", err)
	}

	var recorder session.EventRecorder = session.LogRecorder{Logger: sugar}
	var events handlers.EventQuerier
	if db != nil {
		eventLog := services.NewSessionEventLog(db, sugar)
		recorder, events = eventLog, eventLog
	}

	// Sessions
	users := session.NewProvider(session.UserPolicy, store, session.Options{
		Logger:      sugar,
		Permissions: session.StoredDeviceToken{},
		DeviceSaver: api.UserDeviceSaver(),
		Events:      recorder,
		NotifyDelay: cfg.NotifyDelay,
	})
	admins := session.NewProvider(session.AdminPolicy, store, session.Options{
		Logger:      sugar,
		Permissions: session.StoredDeviceToken{},
		DeviceSaver: api.AdminDeviceSaver(),
		Events:      recorder,
		NotifyDelay: cfg.NotifyDelay,
	})
	go users.RunJanitor(ctx, janitorInterval, sessionMaxIdle)
	go admins.RunJanitor(ctx, janitorInterval, sessionMaxIdle)

	// Initialize services
	validate := validation.New()
	hub := notifications.NewHub(api, cfg.NotifyPollInterval, sugar)
	defer hub.CloseAll()
	drafts := draft.NewRegistry(sugar)
	go drafts.RunJanitor(ctx, janitorInterval, sessionMaxIdle)
	flow := complaint.NewFlow(api, validate, sugar)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(users, api, validate, hub, drafts, sugar)
	adminAuthHandler := handlers.NewAdminAuthHandler(admins, api, validate, sugar)
	adminHandler := handlers.NewAdminHandler(admins, api, validate, sugar)
	complaintHandler := handlers.NewComplaintHandler(api, flow, drafts, validate, sugar)
	notificationHandler := handlers.NewNotificationHandler(hub, users, api.UserDeviceSaver(), validate, sugar)
	activityHandler := handlers.NewActivityHandler(events, sugar)
	healthHandler := handlers.NewHealthHandler(cfg.StorageDriver, storePing, api, sugar)
	pageHandler := handlers.NewPageHandler(cfg.StaticDir)

	// Build router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.ClientID(cfg.ClientCookie, cfg.CookieSecure))

	// API Routes
	r.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", healthHandler.Check)
		r.Get("/health/ready", healthHandler.Ready)

		// Resident authentication
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(cfg.RateLimitRPM))
				r.Post("/login/request-otp", authHandler.RequestOTP)
				r.Post("/login/verify-otp", authHandler.VerifyOTP)
				r.Post("/register", authHandler.Register)
			})
			r.Post("/logout", authHandler.Logout)
			r.Get("/session", authHandler.Session)
			r.Get("/remembered", authHandler.Remembered)
		})

		// Resident endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUserAPI(users))

			r.Get("/profile", authHandler.Profile)
			r.Put("/profile", authHandler.UpdateProfile)
			r.Get("/categories", complaintHandler.Categories)

			r.Route("/complaints", func(r chi.Router) {
				r.Get("/", complaintHandler.List)
				r.Post("/", complaintHandler.Create)
				r.Get("/public", complaintHandler.Public)
				r.Post("/prepare", complaintHandler.Prepare)
				r.Get("/draft", complaintHandler.LoadDraft)
				r.Put("/draft", complaintHandler.SaveDraft)
				r.Delete("/draft", complaintHandler.ClearDraft)
				r.Get("/{id}", complaintHandler.Detail)
				r.Put("/{id}", complaintHandler.Update)
				r.Delete("/{id}", complaintHandler.Delete)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.List)
				r.Post("/read", notificationHandler.MarkRead)
				r.Post("/read-all", notificationHandler.MarkAllRead)
				r.Delete("/read", notificationHandler.DeleteRead)
				r.Delete("/{id}", notificationHandler.Delete)
				r.Post("/device-token", notificationHandler.SaveDeviceToken)
			})
		})

		// Administrator endpoints
		r.Route("/admin", func(r chi.Router) {
			r.With(middleware.RateLimit(cfg.RateLimitRPM)).Post("/login", adminAuthHandler.Login)
			r.Post("/logout", adminAuthHandler.Logout)
			r.Get("/session", adminAuthHandler.Session)
			r.Get("/remembered", adminAuthHandler.Remembered)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdminAPI(store))

				r.Post("/change-password", adminAuthHandler.ChangePassword)
				r.Get("/dashboard", adminHandler.Dashboard)
				r.Get("/complaints", adminHandler.Complaints)
				r.Post("/complaints/status", adminHandler.UpdateStatus)
				r.Post("/complaints/response", adminHandler.AddResponse)
				r.Post("/complaints/public", adminHandler.TogglePublic)
				r.Get("/categories", adminHandler.Categories)
				r.Post("/categories", adminHandler.CreateCategory)
				r.Put("/categories/{id}", adminHandler.UpdateCategory)
				r.Delete("/categories/{id}", adminHandler.DeleteCategory)
				r.Get("/users", adminHandler.Residents)
				r.Post("/users", adminHandler.CreateResident)
				r.Put("/users/{id}", adminHandler.UpdateResident)
				r.Delete("/users/{id}", adminHandler.DeleteResident)
				r.Get("/session-events", activityHandler.Recent)
				r.Get("/session-events/client/{clientHash}", activityHandler.ByClient)
			})
		})
	})

	// Pages
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicOnly(users))
		r.Get("/login", pageHandler.Index)
		r.Get("/register", pageHandler.Index)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser(users))
		for _, p := range []string{"/dashboard", "/complaints", "/complaints/*", "/public-complaints", "/notifications", "/profile"} {
			r.Get(p, pageHandler.Index)
		}
	})
	r.Get("/admin/login", pageHandler.Index)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(store))
		r.Get("/admin", pageHandler.Index)
		r.Get("/admin/*", pageHandler.Index)
	})

	// Serve static files (frontend build)
	r.Get("/*", pageHandler.Static)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sugar.Infof("Server listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	sugar.Info("Shutting down gracefully...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Fatalf("Forced shutdown: %v", err)
	}

	sugar.Info("Server stopped")
}

// openStorage returns the browser storage backend selected by
// STORAGE_DRIVER, a readiness pinger for it (nil for memory) and a closer.
func openStorage(cfg *config.Config, db *pgxpool.Pool) (storage.Backend, handlers.Pinger, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageRedis:
		client, err := database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		ping := handlers.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
		return storage.NewRedisBackend(client, ""), ping, func() { client.Close() }, nil
	case config.StoragePostgres:
		if db == nil {
			return nil, nil, nil, fmt.Errorf("postgres storage needs DATABASE_URL")
		}
		return storage.NewPostgresBackend(db), db, func() {}, nil
	default:
		return storage.NewMemoryBackend(), nil, func() {}, nil
	}
}
