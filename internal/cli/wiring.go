package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedesk/tunedesk/internal/config"
	"github.com/tunedesk/tunedesk/internal/logger"
	"github.com/tunedesk/tunedesk/internal/store"
	"github.com/tunedesk/tunedesk/internal/tracing"
	"github.com/tunedesk/tunedesk/pkg/agent"
	"github.com/tunedesk/tunedesk/pkg/identity"
	"github.com/tunedesk/tunedesk/pkg/preferences"
	"github.com/tunedesk/tunedesk/pkg/session"
	"github.com/tunedesk/tunedesk/pkg/supervisor"
	"github.com/tunedesk/tunedesk/pkg/tooldispatch"
	"github.com/tunedesk/tunedesk/pkg/tools"
)

// runtime bundles everything a command needs to serve turns.
type runtime struct {
	cfg    *config.Config
	log    *logger.Logger
	store  *store.Store
	engine *supervisor.Engine
}

// newRuntime loads config and wires the full engine. The caller must
// call close when done.
func newRuntime() (*runtime, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: true,
		Pretty:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zl := log.GetZerolog()

	if err := tracing.Init("tunedesk"); err != nil {
		zl.Warn().Err(err).Msg("Tracing init failed, continuing without traces")
	}

	db, err := store.Open(store.Config{
		Path:       cfg.Store.Path,
		SchemaFile: cfg.Store.SchemaFile,
		Logger:     zl,
	})
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	dispatcher := tooldispatch.New(tooldispatch.Config{
		Timeout: time.Duration(cfg.Engine.ToolTimeout) * time.Second,
		Logger:  zl,
	})
	if err := tools.RegisterAll(dispatcher, db); err != nil {
		db.Close()
		log.Close()
		return nil, err
	}

	provider, err := agent.NewProvider(cfg.Model.Provider, cfg.Model.APIKey)
	if err != nil {
		db.Close()
		log.Close()
		return nil, err
	}

	sessions, err := newSessionStore(cfg, zl)
	if err != nil {
		db.Close()
		log.Close()
		return nil, err
	}

	engine, err := supervisor.New(supervisor.Config{
		Provider:    provider,
		Dispatcher:  dispatcher,
		Resolver:    identity.New(identity.Config{Lookup: db, Logger: zl}),
		Prefs:       preferences.New(preferences.Config{Logger: zl}),
		Sessions:    sessions,
		Model:       cfg.Model.Name,
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxTokens,
		StepBudget:  cfg.Engine.StepBudget,
		MaxRetries:  cfg.Model.MaxRetries,
		CallTimeout: time.Duration(cfg.Model.CallTimeout) * time.Second,
		Logger:      zl,
	})
	if err != nil {
		db.Close()
		log.Close()
		return nil, err
	}

	return &runtime{
		cfg:    cfg,
		log:    log,
		store:  db,
		engine: engine,
	}, nil
}

func newSessionStore(cfg *config.Config, zl zerolog.Logger) (session.Store, error) {
	switch cfg.Sessions.Backend {
	case "jsonl":
		return session.NewJSONLStore(session.JSONLConfig{
			Dir:    cfg.Sessions.Dir,
			Logger: zl,
		})
	default:
		return session.NewMemoryStore(), nil
	}
}

func (r *runtime) close() {
	r.store.Close()
	r.log.Close()
}
