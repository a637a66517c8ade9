package main

import (
	"fmt"
	"os"

	"github.com/samfeast/RLI-RLIS-v2/app/modules/replays"
	replayservice "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/application"
	"github.com/samfeast/RLI-RLIS-v2/config"
	"github.com/samfeast/RLI-RLIS-v2/internal/db/bundb"
	"github.com/samfeast/RLI-RLIS-v2/internal/db/dbmigrate"
	"github.com/samfeast/RLI-RLIS-v2/internal/observability"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"
)

// cliEnv opens the configuration, database and module on first use so that
// help output needs none of them.
type cliEnv struct {
	cfg    *config.Config
	obs    observability.Observability
	db     *bun.DB
	module *replays.Module
}

func (e *cliEnv) config(c *cli.Context) (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Observability.LogLevel = lvl
	}
	e.cfg = cfg
	return cfg, nil
}

func (e *cliEnv) service(c *cli.Context) (replayservice.Service, error) {
	if e.module != nil {
		return e.module.ReplayService, nil
	}
	cfg, err := e.config(c)
	if err != nil {
		return nil, err
	}

	e.obs = observability.Init(observability.Config{
		ServiceName: "rlis-cli",
		Environment: cfg.Observability.Environment,
		LogLevel:    cfg.Observability.LogLevel,
		LogFormat:   "text",
		Output:      os.Stderr,
	})

	db, err := bundb.Open(c.Context, cfg.Database.Driver, cfg.Database.DSN, e.obs.Logger)
	if err != nil {
		return nil, err
	}
	if err := dbmigrate.Run(c.Context, db, cfg.Database.DSN, e.obs.Logger); err != nil {
		db.Close()
		return nil, err
	}
	module, err := replays.NewReplaysModule(c.Context, cfg, e.obs, db, false)
	if err != nil {
		db.Close()
		return nil, err
	}
	e.db = db
	e.module = module
	return module.ReplayService, nil
}

func (e *cliEnv) league(c *cli.Context) (*config.League, error) {
	cfg, err := e.config(c)
	if err != nil {
		return nil, err
	}
	return config.NewLeague(cfg.League)
}

func (e *cliEnv) close(*cli.Context) error {
	if e.module != nil {
		if err := e.module.Close(); err != nil {
			return err
		}
	}
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}
