package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-diary-sync/internal/config"
	"github.com/tbourn/go-diary-sync/internal/imgcache"
	"github.com/tbourn/go-diary-sync/internal/remote"
	"github.com/tbourn/go-diary-sync/internal/repo"
	"github.com/tbourn/go-diary-sync/internal/store"
	"github.com/tbourn/go-diary-sync/internal/sysutil"
)

// BuildEngine assembles the full sync engine from configuration: SQLite
// persistent tier (migrated), remote API client, two-tier image cache, and
// the stores on top of them.
func BuildEngine(cfg config.Config) (*store.Engine, error) {
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token)
	images, err := imgcache.New(cfg.ImageCache.Dir, client, imgcache.Options{
		MaxMemoryEntries: cfg.ImageCache.MaxMemoryItems,
		MaxMemoryBytes:   cfg.ImageCache.MaxMemoryBytes,
		DiskTTL:          cfg.ImageCache.DiskTTL,
		PrefetchWorkers:  int64(cfg.ImageCache.PrefetchWorkers),
		Logger:           log.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init image cache: %w", err)
	}

	eng := store.NewEngine(db, client, images, store.EngineOptions{
		OwnerID: cfg.OwnerID,
		Details: store.DetailCacheOptions{
			MaxEntries:   cfg.Detail.MaxItems,
			MaxBytes:     cfg.Detail.MaxBytes,
			PollInterval: cfg.Detail.PollInterval,
			PollAttempts: cfg.Detail.PollAttempts,
		},
	}, log.Logger)
	return eng, nil
}

// NewServer builds the loopback HTTP server hosting the sync API: it applies
// global logging settings, configures the Gin engine, registers all routes,
// and returns an http.Server tuned from cfg. The caller owns the listen
// lifecycle.
func NewServer(eng *store.Engine, cfg config.Config) *http.Server {
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	r := gin.New()
	RegisterRoutes(r, eng, cfg)

	return &http.Server{
		Addr:              net.JoinHostPort("127.0.0.1", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}
