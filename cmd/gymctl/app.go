package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/config"
	"github.com/guarzo/gymapi/modules/api"
	"github.com/guarzo/gymapi/modules/fitness"
	"github.com/guarzo/gymapi/modules/session"
)

// app holds the wired client stack for one invocation.
type app struct {
	logger     *zap.Logger
	httpClient common.HttpClient
	client     *api.Client
	session    *session.Manager
	fitness    fitness.FitnessService
	detach     func()
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	creds, err := cfg.Store.Config.CreateStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", cfg.Store.Type, err)
	}

	httpClient := common.NewHttpClient(cfg.UserAgent, nil, cfg.Timeout)
	client := api.NewClient(cfg.BaseURL, httpClient, api.WithLogger(logger))
	manager := session.NewManager(client, creds, logger)

	coordinator := api.NewRefreshCoordinator(
		client,
		api.NewRefresher(cfg.BaseURL, httpClient),
		creds,
		manager,
		api.WithCoordinatorLogger(logger),
		api.WithRefreshTimeout(cfg.Refresh.Timeout),
		api.WithWaitTimeout(cfg.Refresh.WaitTimeout),
	)
	detach := coordinator.Attach()

	if _, err := manager.Restore(ctx); err != nil && !errors.Is(err, common.ErrNoCredentials) {
		detach()
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	return &app{
		logger:     logger,
		httpClient: httpClient,
		client:     client,
		session:    manager,
		fitness:    fitness.NewFitnessService(client, common.NewCacheStore()),
		detach:     detach,
	}, nil
}

func (a *app) requireSession() error {
	if !a.session.SignedIn() {
		return fmt.Errorf("not signed in: run gymctl signin")
	}
	return nil
}

func (a *app) Close() {
	a.detach()
	a.httpClient.CloseIdleConnections()
	_ = a.logger.Sync()
}
