package main

import (
	"fmt"
	"log/slog"

	"github.com/opsdesk/opsdesk-go/internal/api"
	"github.com/opsdesk/opsdesk-go/internal/config"
	"github.com/opsdesk/opsdesk-go/internal/credentials"
	"github.com/opsdesk/opsdesk-go/internal/helpdesk"
	"github.com/opsdesk/opsdesk-go/internal/querycache"
)

// CLIContext carries the wired application objects for one command run:
// credential store, request pipeline, query cache, and the typed service on
// top. Everything is constructed here and injected — no package-level
// singletons.
type CLIContext struct {
	Config  *config.Config
	Logger  *slog.Logger
	Creds   *credentials.Store
	Client  *api.Client
	Service *helpdesk.Service
	Quiet   bool
}

// newCLIContext wires the full stack from the resolved configuration.
// The returned cleanup closes the credential store.
func newCLIContext() (*CLIContext, func(), error) {
	cfg := resolvedCfg
	logger := buildLogger()

	creds, err := credentials.Open(cfg.CredentialsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening credential store: %w", err)
	}

	// The logout signal: credentials vanish when a refresh is rejected, and
	// the user needs to know why subsequent calls fail.
	creds.OnClear(func() {
		logger.Info("credentials cleared; run 'opsdesk-go login' to authenticate")
	})

	httpClient := defaultHTTPClient()
	refresher := api.NewRefresher(cfg.BaseURL, httpClient, creds, logger, cfg.Auth.RefreshTimeout.Std())
	client := api.NewClient(cfg.BaseURL, httpClient, creds, refresher, logger)

	cache := querycache.New(querycache.Options{
		DefaultStaleTime: cfg.Cache.DefaultStaleTime.Std(),
		DefaultGCTime:    cfg.Cache.DefaultGCTime.Std(),
		RetryAttempts:    cfg.Cache.RetryAttempts,
		Retryable:        api.IsTransient,
		Logger:           logger,
	})

	service := helpdesk.NewService(client, cache, cfg.Cache, logger)

	cc := &CLIContext{
		Config:  cfg,
		Logger:  logger,
		Creds:   creds,
		Client:  client,
		Service: service,
		Quiet:   flagQuiet,
	}

	cleanup := func() {
		if closeErr := creds.Close(); closeErr != nil {
			logger.Warn("closing credential store", slog.String("error", closeErr.Error()))
		}
	}

	return cc, cleanup, nil
}
