package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/pixelmuse/pixelmuse/pkg/api"
	"github.com/pixelmuse/pixelmuse/pkg/config"
	"github.com/pixelmuse/pixelmuse/pkg/engine"
	"github.com/pixelmuse/pixelmuse/pkg/nodes"
	"github.com/pixelmuse/pixelmuse/pkg/scheduler"
	"github.com/pixelmuse/pixelmuse/pkg/services"
	"github.com/pixelmuse/pixelmuse/pkg/storage"
)

const appVersion = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "pixelmuse",
	Short:   "Workflow engine for the pixelmuse content generation service",
	Version: appVersion,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		return app.runServer()
	},
}

var processSchedulesCmd = &cobra.Command{
	Use:   "process-schedules",
	Short: "Run one scheduler pass over due workflow schedules and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		summary := app.scheduler.ProcessDue(cmd.Context())
		app.engine.Wait()

		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(processSchedulesCmd)
}

// App wires the service's collaborators together.
type App struct {
	config    *config.Config
	store     storage.Provider
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	server    *api.Server
}

func newApp() (*App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := storage.NewProvider(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage provider: %w", err)
	}
	if err := store.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Printf("Using %s storage provider", storageType(cfg))

	accounts := services.NewAccountService(store.Accounts(), cfg.Auth.JWTSecret, cfg.Auth.TokenExpiration)
	credits := services.NewCreditService(store.Profiles())
	provider := services.NewProviderClient(cfg.Providers)

	assets, err := services.NewAssetService(cfg.Assets)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset service: %w", err)
	}

	registry := nodes.NewRegistry(nodes.Deps{
		Provider: provider,
		Assets:   assets,
		Credits:  credits,
	})

	var heartbeat *engine.Heartbeat
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		heartbeat = engine.NewHeartbeat(client, engine.DefaultHeartbeatTTL)
		log.Printf("Execution heartbeats enabled via redis at %s", cfg.Redis.Addr)
	}

	eng := engine.New(registry, store.Executions(), credits, heartbeat)
	sched := scheduler.New(store.Schedules(), store.Workflows(), credits, eng, cfg.Credits.MinScheduledBalance)
	server := api.NewServer(cfg, store, registry, eng, sched, accounts)

	return &App{
		config:    cfg,
		store:     store,
		engine:    eng,
		scheduler: sched,
		server:    server,
	}, nil
}

// runServer starts the HTTP server and blocks until an interrupt.
func (a *App) runServer() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
		log.Println("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.server.Stop(ctx); err != nil {
			return fmt.Errorf("error during shutdown: %w", err)
		}
		// Let in-flight executions reach a terminal state before exiting.
		a.engine.Wait()
		a.close()
	}
	return nil
}

func (a *App) close() {
	if err := a.store.Close(); err != nil {
		log.Printf("Error closing storage: %v", err)
	}
}

// loadConfig loads the configuration from the specified path or standard
// locations, creating a default one on first run.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config

	if configPath != "" {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		locations := []string{
			"./config.json",
			"./configs/config.json",
			filepath.Join(os.Getenv("HOME"), ".pixelmuse", "config.json"),
			"/etc/pixelmuse/config.json",
		}

		for _, path := range locations {
			if loadedCfg, err := config.LoadConfig(path); err == nil {
				cfg = loadedCfg
				break
			}
		}

		if cfg == nil {
			cfg = config.DefaultConfig()

			defaultPath := filepath.Join(os.Getenv("HOME"), ".pixelmuse", "config.json")
			if err := config.SaveConfig(cfg, defaultPath); err != nil {
				return nil, fmt.Errorf("failed to save default config: %w", err)
			}
			fmt.Printf("Created default configuration at %s\n", defaultPath)
		}
	}

	if cfg.Auth.JWTSecret == "" {
		secret, err := generateRandomKey(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.Auth.JWTSecret = secret
	}

	return cfg, nil
}

func storageType(cfg *config.Config) string {
	if cfg.Storage.Type == "" {
		return "memory"
	}
	return cfg.Storage.Type
}

// generateRandomKey generates a random key of the specified length
func generateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
