// Command fleetctl is the terminal client for the device inventory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"bdemetris/devicehub/internal/auth"
	"bdemetris/devicehub/internal/config"
	"bdemetris/devicehub/internal/inventory"
	"bdemetris/devicehub/pkg/apiclient"
	"bdemetris/devicehub/pkg/database"
	"bdemetris/devicehub/pkg/fixture"
	"bdemetris/devicehub/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl:", err)
		os.Exit(2)
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	credentials, closeCreds, err := credentialSource(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl:", err)
		os.Exit(1)
	}
	defer closeCreds()

	storage, closeStorage := sessionStorage(cfg)
	defer closeStorage()

	sessions := auth.NewSessionManager(credentials, storage,
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithLogger(logger),
	)
	if err := sessions.Restore(ctx); err != nil {
		logger.Warn("could not restore session", "error", err)
	}

	c := &cli{
		out:      os.Stdout,
		errOut:   os.Stderr,
		sessions: sessions,
		newInventory: func() *inventory.Inventory {
			remote := apiclient.New(cfg.APIBaseURL, apiclient.WithTimeout(cfg.APITimeout))
			return inventory.New(remote,
				inventory.WithFallbackMode(cfg.FallbackMode),
				inventory.WithLogger(logger),
			)
		},
	}
	if err := c.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl:", err)
		os.Exit(1)
	}
}

// credentialSource checks sign-ins against the configured store, or the
// fixed account list for the in-memory provider.
func credentialSource(ctx context.Context, cfg config.Config) (auth.CredentialSource, func(), error) {
	if cfg.Store.Provider == store.ProviderMemory {
		return auth.FixedCredentials(fixture.Credentials()), func() {}, nil
	}
	st, err := database.Open(ctx, cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s store: %w", cfg.Store.Provider, err)
	}
	return auth.StoreCredentials{Users: st}, func() { _ = st.Close() }, nil
}

func sessionStorage(cfg config.Config) (auth.SessionStorage, func()) {
	if cfg.SessionBackend == config.SessionBackendRedis {
		rdb := cfg.RedisClient()
		return auth.RedisStorage{Client: rdb, TTL: cfg.SessionTTL}, func() { _ = rdb.Close() }
	}
	path := cfg.SessionFile
	if path == "" {
		path = auth.DefaultSessionPath()
	}
	return auth.FileStorage{Path: path}, func() {}
}
