package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"vitrine/internal/catalog"
	"vitrine/internal/compose"
	"vitrine/internal/config"
	"vitrine/internal/credentials"
	"vitrine/internal/logging"
	"vitrine/internal/notifications"
	"vitrine/internal/pipeline"
	"vitrine/internal/runlog"
	"vitrine/internal/runner"
	"vitrine/internal/services"
	"vitrine/internal/services/contentapi"
	"vitrine/internal/services/imagehost"
)

type cliContext struct {
	pathFlag *string

	loadOnce sync.Once
	cfg      *config.Config
	loadErr  error
}

func newCLIContext(pathFlag *string) *cliContext {
	return &cliContext{pathFlag: pathFlag}
}

// ensureConfig loads the configuration once per invocation; every command
// sharing the context sees the same instance or the same failure.
func (c *cliContext) ensureConfig() (*config.Config, error) {
	c.loadOnce.Do(func() {
		c.cfg, c.loadErr = c.loadConfig()
	})
	return c.cfg, c.loadErr
}

func (c *cliContext) loadConfig() (*config.Config, error) {
	var path string
	if c.pathFlag != nil {
		path = strings.TrimSpace(*c.pathFlag)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "cli", "config", "load configuration", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "cli", "config", "prepare data directories", err)
	}
	return cfg, nil
}

func (c *cliContext) openStore() (*catalog.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return catalog.Open(cfg)
}

// withStore runs fn against an opened catalog store and closes it afterwards.
func (c *cliContext) withStore(fn func(*config.Config, *catalog.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := catalog.Open(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(cfg, store)
}

// withCredentials runs fn with a credential manager backed by the persistent
// token store and the content API client.
func (c *cliContext) withCredentials(fn func(*config.Config, *credentials.Manager, *contentapi.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	client, err := contentapi.New(cfg)
	if err != nil {
		return err
	}
	tokenStore, err := credentials.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = tokenStore.Close() }()

	manager := credentials.NewManager(cfg, tokenStore, client)
	return fn(cfg, manager, client)
}

// newCoordinator wires the full run stack. The returned cleanup closes every
// opened resource and must be called once the run is finished.
func (c *cliContext) newCoordinator(logger *slog.Logger) (*runner.Coordinator, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}

	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	store, err := catalog.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, store.Close)

	tokenStore, err := credentials.OpenStore(cfg)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	closers = append(closers, tokenStore.Close)

	journal, err := runlog.Open(cfg.Paths.RunLog)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	closers = append(closers, journal.Close)

	client, err := contentapi.New(cfg)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	hoster, err := imagehost.New(cfg)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	composer, err := compose.New(cfg)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	pipe := pipeline.New(cfg, store, composer, hoster, client, logger)
	creds := credentials.NewManager(cfg, tokenStore, client)
	notifier := notifications.NewService(cfg)

	coordinator, err := runner.New(cfg, store, pipe, creds, notifier, journal, logger)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return coordinator, closeAll, nil
}

func (c *cliContext) runLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewFromConfig(cfg)
}

func runsWithoutConfig(cmd *cobra.Command) bool {
	for current := cmd; current != nil; current = current.Parent() {
		if current.Annotations != nil && current.Annotations["noConfigFile"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if !value {
		return "no"
	}
	return "yes"
}
