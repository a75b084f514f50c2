package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/callbridge/callbridge/internal/api"
	"github.com/callbridge/callbridge/internal/config"
	"github.com/callbridge/callbridge/internal/deadletter"
	"github.com/callbridge/callbridge/internal/dispatch"
	"github.com/callbridge/callbridge/internal/ingest"
	"github.com/callbridge/callbridge/internal/models"
	"github.com/callbridge/callbridge/internal/storage"
	"github.com/callbridge/callbridge/internal/verify"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "callbridge",
		Short: "CallBridge — webhook boundary layer for call-platform events",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(subscriptionCmd(&configPath))
	rootCmd.AddCommand(deadlettersCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the CallBridge server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("database migrations completed")

			dlStore, err := setupDeadLetterStore(cfg.DeadLetter, log)
			if err != nil {
				return fmt.Errorf("failed to setup dead-letter store: %w", err)
			}
			recorder := deadletter.NewRecorder(dlStore, cfg.DeadLetter.TTL, log)

			sender := dispatch.NewSender(cfg.Delivery.Timeout)
			scheduler := dispatch.NewScheduler(store, sender, recorder, cfg.Delivery.MaxRetries, cfg.Delivery.RetrySchedule, log)
			fanout := dispatch.NewFanout(store, scheduler, cfg.Delivery.FanoutLimit, cfg.Delivery.FanoutWorkers, log)

			registry, err := buildRegistry(cfg.Sources)
			if err != nil {
				return fmt.Errorf("failed to build verifier registry: %w", err)
			}

			dispatcher := ingest.NewDispatcher(log)
			// until business handlers are registered, every authenticated
			// provider event is relayed to matching subscribers
			dispatcher.RegisterFallback(func(ctx context.Context, ev ingest.Event) error {
				data, err := json.Marshal(ev.Data)
				if err != nil {
					return err
				}
				_, err = fanout.Publish(ctx, ev.TenantID, ev.EventType, data)
				return err
			})

			processor := ingest.NewProcessor(store, dispatcher, recorder, ingest.DefaultClaimLease, log)

			server := api.NewServer(cfg.Server, api.Deps{
				Store:      store,
				Registry:   registry,
				Processor:  processor,
				Fanout:     fanout,
				DeadLetter: recorder,
				AdminToken: cfg.Admin.Token,
			}, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Strs("sources", registry.Sources()).
				Str("deadletter_backend", cfg.DeadLetter.Backend).
				Msg("CallBridge is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			if !scheduler.Drain(30 * time.Second) {
				log.Warn().Msg("shutdown before all retry chains settled")
			}

			log.Info().Msg("CallBridge stopped")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func subscriptionCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscription",
		Short: "Manage subscriptions",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			targetURL, _ := cmd.Flags().GetString("url")
			events, _ := cmd.Flags().GetString("events")
			if tenant == "" || targetURL == "" {
				return fmt.Errorf("--tenant and --url are required")
			}

			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			eventTypes := []string{"*"}
			if events != "" {
				eventTypes = strings.Split(events, ",")
			}

			now := time.Now().UTC()
			sub := &models.Subscription{
				ID:         models.NewID("sub"),
				TenantID:   tenant,
				URL:        targetURL,
				Secret:     models.NewSecret(),
				EventTypes: eventTypes,
				Active:     true,
				CreatedAt:  now,
				UpdatedAt:  now,
			}

			if err := store.CreateSubscription(context.Background(), sub); err != nil {
				return fmt.Errorf("failed to create subscription: %w", err)
			}

			out, _ := json.MarshalIndent(sub, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	createCmd.Flags().String("tenant", "", "owning tenant id")
	createCmd.Flags().String("url", "", "subscriber endpoint URL")
	createCmd.Flags().String("events", "", "comma-separated event types (default: all)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List subscriptions for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			if tenant == "" {
				return fmt.Errorf("--tenant is required")
			}

			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			subs, err := store.ListSubscriptions(context.Background(), tenant)
			if err != nil {
				return fmt.Errorf("failed to list subscriptions: %w", err)
			}

			if len(subs) == 0 {
				fmt.Println("No subscriptions found.")
				return nil
			}

			for _, sub := range subs {
				state := "active"
				if !sub.Active {
					state = "inactive"
				}
				fmt.Printf("  %s  %s  %v  (%s)\n", sub.ID, sub.URL, sub.EventTypes, state)
			}
			return nil
		},
	}
	listCmd.Flags().String("tenant", "", "owning tenant id")

	cmd.AddCommand(createCmd, listCmd)
	return cmd
}

func deadlettersCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deadletters",
		Short: "Inspect dead-lettered events",
		RunE: func(cmd *cobra.Command, args []string) error {
			source, _ := cmd.Flags().GetString("source")

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log := setupLogger(cfg.Logging)

			dlStore, err := setupDeadLetterStore(cfg.DeadLetter, log)
			if err != nil {
				return fmt.Errorf("failed to setup dead-letter store: %w", err)
			}
			recorder := deadletter.NewRecorder(dlStore, cfg.DeadLetter.TTL, log)

			entries, err := recorder.List(context.Background(), source)
			if err != nil {
				return fmt.Errorf("failed to list dead letters: %w", err)
			}

			if len(entries) == 0 {
				fmt.Println("No dead letters found.")
				return nil
			}

			out, _ := json.MarshalIndent(entries, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().String("source", "", "filter by source tag")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("CallBridge v%s\n", version)
		},
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func setupDeadLetterStore(cfg config.DeadLetterConfig, log zerolog.Logger) (deadletter.Store, error) {
	switch cfg.Backend {
	case "redis":
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using Redis dead-letter store")
		return deadletter.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	case "memory", "":
		log.Warn().Msg("using in-memory dead-letter store; entries will not survive restarts")
		return deadletter.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported dead-letter backend: %s", cfg.Backend)
	}
}

func buildRegistry(sources map[string]config.SourceConfig) (*verify.Registry, error) {
	registry := verify.NewRegistry()
	for source, sc := range sources {
		switch sc.Scheme {
		case "hmac":
			registry.Register(source, verify.TimestampHMAC{
				Secret:           sc.Secret,
				ToleranceSeconds: sc.ToleranceSeconds,
			})
		case "ed25519":
			key, err := hex.DecodeString(sc.PublicKey)
			if err != nil || len(key) != ed25519.PublicKeySize {
				return nil, fmt.Errorf("source %s: public_key must be a hex-encoded ed25519 key", source)
			}
			registry.Register(source, verify.Ed25519{
				PublicKey:        key,
				ToleranceSeconds: sc.ToleranceSeconds,
			})
		case "bearer":
			registry.Register(source, verify.BearerToken{Token: sc.Secret})
		default:
			return nil, fmt.Errorf("source %s: unsupported scheme %q", source, sc.Scheme)
		}
	}
	return registry, nil
}

func storeFromConfig(configPath string) (storage.Storage, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging)
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, func() { store.Close() }, nil
}
