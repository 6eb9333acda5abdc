package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"researchtools/internal/auth"
	"researchtools/internal/config"
	"researchtools/internal/embedding"
	"researchtools/internal/events"
	"researchtools/internal/framework"
	"researchtools/internal/inference"
	"researchtools/internal/logging"
	"researchtools/internal/research"
	"researchtools/internal/search"
	"researchtools/internal/server"
	"researchtools/internal/store"
	"researchtools/internal/websocket"
)

// Version is set at compile time
var Version = "dev"

const (
	hashPurgeInterval = time.Hour
	reindexPage       = 500
)

var (
	cfg    *config.Config
	logger *zap.Logger

	portFlag     int
	databaseFlag string
	envFileFlag  string
)

var rootCmd = &cobra.Command{
	Use:     "researchtools",
	Short:   "Structured analytic frameworks and research tooling API",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFileFlag); err != nil && envFileFlag != ".env" {
			return fmt.Errorf("loading %s: %w", envFileFlag, err)
		}

		cfg = config.Load()
		if cmd.Flags().Changed("port") {
			cfg.ServerPort = portFlag
		}
		if cmd.Flags().Changed("db") {
			cfg.DatabasePath = databaseFlag
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		var err error
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(cmd.Context(), cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("database schema is up to date", zap.String("path", cfg.DatabasePath))
		return nil
	},
}

var purgeHashesCmd = &cobra.Command{
	Use:   "purge-hashes",
	Short: "Delete expired and revoked account hashes",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(cmd.Context(), cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()
		n, err := auth.NewAuthService(db, cfg.Auth, logger).PurgeExpiredHashes(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d account hash(es)\n", n)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&databaseFlag, "db", "", "SQLite database path (overrides DATABASE_PATH)")
	serveCmd.Flags().IntVarP(&portFlag, "port", "p", 0, "listen port (overrides SERVER_PORT)")

	rootCmd.AddCommand(serveCmd, migrateCmd, purgeHashesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger.Info("starting researchtools", zap.String("version", Version), zap.Int("port", cfg.ServerPort))

	db, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	// Jobs left running by a previous process can never finish.
	if n, err := db.FailStaleJobs(ctx, time.Now()); err != nil {
		return fmt.Errorf("failing stale jobs: %w", err)
	} else if n > 0 {
		logger.Warn("marked interrupted research jobs as failed", zap.Int64("count", n))
	}

	generator, err := inference.NewGenerator(cfg.AI)
	if err != nil {
		return err
	}
	if generator == nil {
		logger.Warn("no AI API key configured; AI features return placeholders")
	}
	ai := inference.NewService(generator, cfg.AI.Model, logger.Named("inference"))

	producer := events.NewEventProducer(cfg.Events, logger)
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Warn("closing event producer", zap.Error(err))
		}
	}()
	observers := []framework.Observer{producer}

	var index *search.Index
	if cfg.Search.Enable {
		em := embedding.NewEmbeddingManager(embedding.Config{
			Endpoint:   cfg.Search.EmbeddingEndpoint,
			Dimensions: cfg.Search.Dimensions,
		}, logger)
		if index, err = search.NewIndex(cfg.Search.Path, em.ChromemFunc(), logger); err != nil {
			return err
		}
		observers = append(observers, index)
	}

	frameworks := framework.NewService(db, ai, logger, observers...)
	if index != nil {
		if err := reindex(ctx, db, frameworks, index); err != nil {
			logger.Warn("rebuilding search index", zap.Error(err))
		}
	}

	wsm := websocket.NewWebSocketManager(cfg.CORSOrigin, logger)
	tools := research.NewService(db, ai, cfg.Research, logger)
	jobs := research.NewJobManager(tools, db, research.Notifiers{wsm, producer}, cfg.Research.JobItemDelay, logger)
	defer jobs.Stop()

	authService := auth.NewAuthService(db, cfg.Auth, logger)
	srv := server.NewServer(server.Deps{
		Config:     cfg,
		DB:         db,
		Auth:       authService,
		Frameworks: frameworks,
		AI:         ai,
		Research:   tools,
		Jobs:       jobs,
		Search:     index,
		WS:         wsm,
		Logins:     producer,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(hashPurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				n, err := authService.PurgeExpiredHashes(gctx)
				if err != nil {
					logger.Warn("purging account hashes", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Info("purged account hashes", zap.Int64("count", n))
				}
			}
		}
	})
	return g.Wait()
}

// reindex loads every stored session into an in-memory index. A persistent
// index already holds them.
func reindex(ctx context.Context, db *store.DB, frameworks *framework.Service, index *search.Index) error {
	if cfg.Search.Path != "" && index.Count() > 0 {
		return nil
	}
	userIDs, err := db.ListSessionOwners(ctx)
	if err != nil {
		return err
	}
	total := 0
	for _, userID := range userIDs {
		for offset := 0; ; offset += reindexPage {
			sessions, err := frameworks.List(ctx, userID, framework.ListFilter{Limit: reindexPage, Offset: offset})
			if err != nil {
				return err
			}
			for _, s := range sessions {
				if err := index.Upsert(ctx, s); err != nil {
					return err
				}
				total++
			}
			if len(sessions) < reindexPage {
				break
			}
		}
	}
	logger.Info("search index rebuilt", zap.Int("sessions", total))
	return nil
}
