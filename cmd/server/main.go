package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/julienbonastre/fullstock/internal/cache"
	"github.com/julienbonastre/fullstock/internal/config"
	"github.com/julienbonastre/fullstock/internal/database"
	"github.com/julienbonastre/fullstock/internal/handlers"
	"github.com/julienbonastre/fullstock/internal/logger"
	"github.com/julienbonastre/fullstock/internal/mercadolivre"
	"github.com/julienbonastre/fullstock/internal/syncer"
)

func main() {
	// Command line flags
	port := flag.Int("port", 0, "Server port (overrides SERVER_PORT)")
	staticDir := flag.String("static", "", "Directory with the built web app to serve at /")
	flag.Parse()

	cfg := config.MustLoad()
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log, err := logger.Init(cfg.App.LogLevel, cfg.App.IsDevelopment())
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("starting fullstock", zap.String("env", cfg.App.Environment))

	key, err := cfg.Database.Key()
	if err != nil {
		log.Fatal("invalid encryption key", zap.Error(err))
	}
	db, err := database.Open(cfg.Database.Path, key)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	pending, err := newVerifierStore(cfg)
	if err != nil {
		log.Fatal("failed to initialize verifier store", zap.Error(err))
	}
	defer pending.Close()

	client := mercadolivre.NewClient(mercadolivre.Config{
		ClientID:        cfg.Marketplace.ClientID,
		ClientSecret:    cfg.Marketplace.ClientSecret,
		RedirectURI:     cfg.Marketplace.RedirectURI,
		AuthURL:         cfg.Marketplace.AuthURL,
		APIURL:          cfg.Marketplace.APIURL,
		HTTPTimeout:     cfg.Marketplace.HTTPTimeout,
		MultigetBatch:   cfg.Marketplace.MultigetBatch,
		SalesWindowDays: cfg.Marketplace.SalesWindowDays,
	})
	if !client.IsConfigured() {
		log.Warn("ML_CLIENT_ID not set, running in demo mode")
	}

	svc := syncer.NewService(client, client, db, db, syncer.Options{
		SalesWindowDays: cfg.Marketplace.SalesWindowDays,
		UserTimeout:     cfg.Sync.Timeout,
		DemoMode:        !client.IsConfigured(),
	})
	connector := syncer.NewConnector(client, pending, db, cfg.Session.TTL)

	sessionKey := []byte(cfg.Session.Key)
	if len(sessionKey) == 0 {
		log.Warn("SESSION_KEY not set, using an ephemeral key; sessions will not survive restarts")
		sessionKey = securecookie.GenerateRandomKey(32)
	}
	sessionStore := database.NewSessionStore(db, 24*time.Hour, cfg.Session.Secure, sessionKey)

	h := handlers.NewHandler(handlers.Deps{
		Config:    cfg,
		DB:        db,
		Client:    client,
		Syncer:    svc,
		Connector: connector,
		Sessions:  sessionStore,
	})
	r := handlers.NewRouter(handlers.RouterConfig{
		Handler:        h,
		AllowedOrigins: cfg.App.CORSOrigins,
		StaticDir:      *staticDir,
	})

	jobsCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	scheduler, err := startScheduler(jobsCtx, cfg, svc, sessionStore)
	if err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	cancelJobs()
	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// newVerifierStore picks the PKCE verifier backend
func newVerifierStore(cfg *config.Config) (cache.Cache, error) {
	if cfg.Cache.Type != "redis" {
		return cache.NewMemoryCache(), nil
	}
	rc, err := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Cache.RedisAddress(),
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// startScheduler runs the expired session cleanup hourly and, when SYNC_CRON
// is set, the background sync of every connected user
func startScheduler(ctx context.Context, cfg *config.Config, svc *syncer.Service, sessions *database.SessionStore) (*cron.Cron, error) {
	log := logger.L().With(zap.String("component", "scheduler"))
	c := cron.New()

	_, err := c.AddFunc("@hourly", func() {
		n, err := sessions.CleanupExpiredSessions(ctx)
		if err != nil {
			log.Warn("session cleanup failed", zap.Error(err))
			return
		}
		log.Debug("expired sessions removed", zap.Int64("count", n))
	})
	if err != nil {
		return nil, err
	}

	if cfg.Sync.Schedule != "" {
		_, err := c.AddFunc(cfg.Sync.Schedule, func() {
			started := time.Now()
			if err := svc.SyncAll(ctx); err != nil {
				log.Error("background sync failed", zap.Error(err))
				return
			}
			log.Info("background sync finished", zap.Duration("duration", time.Since(started)))
		})
		if err != nil {
			return nil, err
		}
		log.Info("background sync scheduled", zap.String("schedule", cfg.Sync.Schedule))
	}

	c.Start()
	return c, nil
}
