package cli

import (
	"context"
	"fmt"

	"support360/internal/auth"
	"support360/internal/config"
	"support360/internal/store"

	"github.com/sirupsen/logrus"
)

// loadConfig reads the merged configuration and configures the global logger.
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := logrus.StandardLogger()
	if err := config.ConfigureLogger(logger, cfg.Log); err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// openStore opens the configured persister and hydrates the store from it.
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*store.Store, error) {
	persister, err := store.OpenPersister(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	st := store.New(store.Options{
		Persister:       persister,
		Logger:          logger,
		Seed:            cfg.Seed,
		DefaultPassword: cfg.Auth.DefaultPassword,
		BcryptCost:      cfg.Auth.BcryptCost,
	})
	if err := st.Initialize(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	return st, nil
}

func newAuthenticator(cfg *config.Config, st *store.Store, logger *logrus.Logger) *auth.Authenticator {
	if cfg.Auth.JWTSecret == config.GetDefaultConfig().Auth.JWTSecret {
		logger.Warn("auth.jwt_secret is the built-in default; set SUPPORT360_AUTH_JWT_SECRET in production")
	}
	return auth.NewAuthenticator(st, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger)
}
