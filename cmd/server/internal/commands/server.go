package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/wolfeidau/roundtable/internal/discussion"
	"github.com/wolfeidau/roundtable/internal/genai/ollama"
	"github.com/wolfeidau/roundtable/internal/logger"
	"github.com/wolfeidau/roundtable/internal/personas"
	"github.com/wolfeidau/roundtable/internal/server"
	"github.com/wolfeidau/roundtable/internal/store"
	memorystore "github.com/wolfeidau/roundtable/internal/store/memory"
	postgresstore "github.com/wolfeidau/roundtable/internal/store/postgres"
	"github.com/wolfeidau/roundtable/internal/telemetry"
)

type ServerCmd struct {
	// Server configuration
	Listen      string   `help:"HTTP server listen address" default:"0.0.0.0:8000" env:"ROUNDTABLE_LISTEN"`
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"*" env:"ROUNDTABLE_CORS_ORIGINS"`

	// Generation backend configuration
	OllamaURL   string  `help:"Ollama base URL" default:"http://localhost:11434" env:"ROUNDTABLE_OLLAMA_URL"`
	Model       string  `help:"Ollama model name" default:"llama3" env:"ROUNDTABLE_MODEL"`
	MaxTokens   int     `help:"max tokens per generated response" default:"300" env:"ROUNDTABLE_MAX_TOKENS"`
	Temperature float64 `help:"sampling temperature" default:"0.7" env:"ROUNDTABLE_TEMPERATURE"`

	// Discussion configuration
	PersonasFile       string        `help:"YAML file with the AI persona set (built-in set when empty)" default:"" env:"ROUNDTABLE_PERSONAS_FILE"`
	MaxSessionDuration time.Duration `help:"maximum duration a session may be started with" default:"1h" env:"ROUNDTABLE_MAX_SESSION_DURATION"`
	EndGracePeriod     time.Duration `help:"how long end waits for an in-flight stream to flush" default:"8s" env:"ROUNDTABLE_END_GRACE_PERIOD"`

	// Development and operational modes
	Tracing bool `help:"enable tracing" default:"false" env:"ROUNDTABLE_TRACING"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"ROUNDTABLE_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"10"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"900"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"ROUNDTABLE_POSTGRES_AUTO_MIGRATE"`
}

func (c *ServerCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "roundtable-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	// Create the session store based on store type
	var sessionStore store.SessionStore

	switch c.StoreType {
	case "postgres":
		if c.PostgresStore.ConnString == "" {
			return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
		}

		poolCfg := &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		}
		pool, err := postgresstore.NewPool(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		sessionStore = postgresstore.NewSessionStore(pool)
		log.Info().Msg("Using PostgreSQL session store")

	default:
		sessionStore = memorystore.NewSessionStore()
		log.Info().Msg("Using in-memory session store")
	}

	// Load the persona set
	set := personas.Default()
	if c.PersonasFile != "" {
		var err error
		set, err = personas.Load(c.PersonasFile)
		if err != nil {
			return fmt.Errorf("failed to load personas: %w", err)
		}
		log.Info().Str("file", c.PersonasFile).Int("personas", len(set.Personas)).Msg("Loaded persona set")
	}

	gen := ollama.New(c.OllamaURL, c.Model)

	svc := discussion.New(sessionStore, gen, set, discussion.Config{
		MaxSessionDuration: c.MaxSessionDuration,
		EndGracePeriod:     c.EndGracePeriod,
		MaxTokens:          c.MaxTokens,
		Temperature:        c.Temperature,
	})

	srv := server.NewServer(svc)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: c.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"*"},
	})

	httpServer := configureHTTPServer(c.Listen, corsMiddleware.Handler(srv.Handler(log)))

	// Graceful shutdown on SIGINT/SIGTERM
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", c.Listen).Msg("Listening for connections")
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
	}

	return nil
}
