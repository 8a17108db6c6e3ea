// Package main is the entry point for the API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/mingle/internal/api"
	"github.com/onnwee/mingle/internal/auth"
	"github.com/onnwee/mingle/internal/config"
	"github.com/onnwee/mingle/internal/event"
	"github.com/onnwee/mingle/internal/health"
	"github.com/onnwee/mingle/internal/idempotency"
	"github.com/onnwee/mingle/internal/mail"
	"github.com/onnwee/mingle/internal/middleware"
	"github.com/onnwee/mingle/internal/participation"
	"github.com/onnwee/mingle/internal/search"
	"github.com/onnwee/mingle/internal/tracing"
	"github.com/onnwee/mingle/internal/upload"
	"github.com/onnwee/mingle/internal/user"
)

const serviceName = "mingle-api"

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Mingle API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summary := make([]any, 0, len(cfg.LogSummary())*2)
	for k, v := range cfg.LogSummary() {
		summary = append(summary, k, v)
	}
	logger.Info("configuration loaded", summary...)

	// Tracing is a no-op provider when no OTLP endpoint is configured.
	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.OTLPEndpoint != "",
		Environment:  cfg.Env,
		ExporterType: "otlp-" + cfg.OTLPProtocol,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: 1.0,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("failed to shut down tracing", "error", err)
		}
	}()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	pingCancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	userRepo := user.NewPostgresRepository(db)
	partRepo := participation.NewPostgresRepository(db)
	eventRepo := event.NewPostgresRepository(db)

	var jwtService *auth.JWTService
	if cfg.JWTPreviousSecret != "" {
		jwtService = auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)
	} else {
		jwtService = auth.NewJWTService(cfg.JWTSecret)
	}
	tokenStore := auth.NewTokenStore(redisClient)

	metrics := middleware.NewMetrics()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	// The search index is optional; reads fall back to Postgres keyword
	// matching when it is absent or down.
	var searcher api.EventSearcher
	var searchChecker api.HealthChecker
	if cfg.SearchIndexURL != "" {
		searchMetrics := search.NewMetrics()
		if err := searchMetrics.Register(prometheus.DefaultRegisterer); err != nil {
			logger.Error("failed to register search metrics", "error", err)
			os.Exit(1)
		}
		searchClient, err := search.NewClient(search.DefaultConfig(cfg.SearchIndexURL, cfg.SearchAPIKey), logger, searchMetrics)
		if err != nil {
			logger.Error("failed to create search client", "error", err)
			os.Exit(1)
		}
		searcher = searchClient
		searchChecker = searchClient
	}

	eventHandlers := api.NewEventHandlers(eventRepo, partRepo, userRepo)
	readHandlers := api.NewReadHandlers(eventRepo, searcher)
	// No SMTP provider yet; tokens are delivered through the log-backed
	// sender, which keeps them out of client responses.
	mailer := mail.NewLogSender(logger)
	authHandlers := api.NewAuthHandlers(userRepo, jwtService, tokenStore, mailer)
	userHandlers := api.NewUserHandlers(userRepo, partRepo)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:     health.NewDBChecker(db),
		RedisChecker:  health.NewRedisChecker(redisClient),
		SearchChecker: searchChecker,
	})

	// Limits are enforced in Redis so they hold across replicas.
	rateLimitStore := middleware.NewRedisRateLimitStore(redisClient).WithMetrics(metrics)
	globalLimit := middleware.RateLimiter(rateLimitStore, middleware.DefaultGlobalLimit(), middleware.UserKeyFunc(), metrics)
	authLimit := middleware.RateLimiter(rateLimitStore, middleware.DefaultAuthLimit(), middleware.IPKeyFunc(), metrics)
	searchLimit := middleware.RateLimiter(rateLimitStore, middleware.DefaultSearchLimit(), middleware.UserKeyFunc(), metrics)

	// Event creation is retried by flaky mobile clients; an Idempotency-Key
	// header keeps retries from producing duplicate events.
	idemRepo := idempotency.NewInMemoryRepository()
	idemStop := make(chan struct{})
	defer close(idemStop)
	go idempotency.RunPeriodicCleanup(idemRepo, time.Hour, 24*time.Hour, idemStop)
	idem := middleware.IdempotencyMiddleware(idemRepo, map[string]bool{"/events": true})

	mux := http.NewServeMux()

	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.Handler())

	mux.Handle("/auth/register", authLimit(post(authHandlers.Register)))
	mux.Handle("/auth/login", authLimit(post(authHandlers.Login)))
	mux.Handle("/auth/refresh", authLimit(post(authHandlers.Refresh)))
	mux.Handle("/auth/verify", authLimit(post(authHandlers.Verify)))
	mux.Handle("/auth/forgot-password", authLimit(post(authHandlers.ForgotPassword)))
	mux.Handle("/auth/reset-password", authLimit(post(authHandlers.ResetPassword)))

	mux.Handle("/events", idem(post(eventHandlers.CreateEvent)))
	mux.Handle("/events/read", searchLimit(post(readHandlers.ReadEvents)))
	mux.Handle("/events/search", searchLimit(post(readHandlers.SearchEvents)))
	mux.Handle("/events/", eventRoutes(eventHandlers))

	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			userHandlers.Me(w, r)
		case http.MethodPatch:
			userHandlers.UpdateProfile(w, r)
		default:
			writeMethodNotAllowed(w, r)
		}
	})
	mux.Handle("/users/me/preferences", methodOnly(http.MethodPut, userHandlers.UpdatePreferences))
	mux.Handle("/users/me/coordinates", methodOnly(http.MethodPut, userHandlers.UpdateCoordinates))
	mux.Handle("/users/", methodOnly(http.MethodGet, userHandlers.GetByUsername))

	if cfg.S3Bucket != "" {
		uploadService, err := upload.NewService(upload.ServiceConfig{
			BucketName:      cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			MaxSizeMB:       cfg.S3MaxUploadSizeMB,
		})
		if err != nil {
			logger.Error("failed to create upload service", "error", err)
			os.Exit(1)
		}
		uploadHandlers := api.NewUploadHandlers(uploadService)
		mux.Handle("/uploads/sign", middleware.RequireAuth(jwtService)(post(uploadHandlers.SignUpload)))
		mux.Handle("/uploads/image", middleware.RequireAuth(jwtService)(post(uploadHandlers.UploadImage)))
	}

	// Auth is parsed once here; handlers enforce it where an identity is
	// required.
	var handler http.Handler = mux
	handler = globalLimit(handler)
	handler = middleware.Profiling(middleware.ProfilingConfig{
		Enabled:     cfg.Env == "development",
		Environment: cfg.Env,
	})(handler)
	handler = middleware.OptionalAuth(jwtService)(handler)
	if origins := splitOrigins(cfg.CORSAllowedOrigins); len(origins) > 0 {
		handler = middleware.CORS(middleware.CORSConfig{
			AllowedOrigins:   origins,
			AllowCredentials: true,
			MaxAge:           300,
		})(handler)
	}
	handler = middleware.HTTPMetrics(metrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing(serviceName)(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// eventRoutes dispatches /events/{id} and /events/{id}/{action} requests.
// ID validation happens in the handlers.
func eventRoutes(h *api.EventHandlers) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/events/"), "/")
		switch {
		case len(parts) == 1:
			switch r.Method {
			case http.MethodGet:
				h.GetEvent(w, r)
			case http.MethodPatch:
				h.UpdateEvent(w, r)
			case http.MethodDelete:
				h.DeleteEvent(w, r)
			default:
				writeMethodNotAllowed(w, r)
			}
		case len(parts) == 2 && r.Method == http.MethodPost:
			switch parts[1] {
			case "cancel":
				h.CancelEvent(w, r)
			case "join":
				h.JoinEvent(w, r)
			case "leave":
				h.LeaveEvent(w, r)
			default:
				writeNotFound(w, r)
			}
		default:
			writeNotFound(w, r)
		}
	})
}

// post restricts a handler to the POST method.
func post(h http.HandlerFunc) http.Handler {
	return methodOnly(http.MethodPost, h)
}

func methodOnly(method string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeMethodNotAllowed(w, r)
			return
		}
		h(w, r)
	})
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeBadRequest)
	api.WriteError(w, ctx, http.StatusMethodNotAllowed, api.ErrCodeBadRequest, "Method not allowed")
}

func writeNotFound(w http.ResponseWriter, r *http.Request) {
	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
}

// splitOrigins parses the comma-separated CORS origin list.
func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
