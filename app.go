package main

import (
	"context"
	"errors"

	"lectureRAG/config"
	"lectureRAG/initialization"
)

// loadConfig reads the configuration, printing setup help when it is invalid.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		if errors.Is(err, config.ErrInvalidConfig) && c.human {
			config.PrintConfigInstructions(c.stderr)
		}
		return nil, err
	}
	return cfg, nil
}

// openApp loads configuration and wires the application. Logs go to stderr
// so stdout stays machine-readable.
func (c *cli) openApp(ctx context.Context) (*initialization.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger(c.stderr)
	for _, w := range cfg.Check().Warnings {
		logger.Warn("Configuration warning", "detail", w)
	}
	return initialization.New(ctx, cfg, logger)
}

// withApp runs fn against a freshly wired application and closes it afterwards.
func (c *cli) withApp(ctx context.Context, fn func(*initialization.App) error) (err error) {
	app, err := c.openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(app)
}
