package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dugout-trivia/internal/app"
	"dugout-trivia/internal/config"
	"dugout-trivia/internal/domain"
	"dugout-trivia/internal/infra/memory"
	pginfra "dugout-trivia/internal/infra/postgres"
	redisinfra "dugout-trivia/internal/infra/redis"
	transport "dugout-trivia/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia match server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	stateTTL := config.TTLDuration(cfg.Match.StateTTL, 24*time.Hour)
	packTTL := config.TTLDuration(cfg.Match.PackTTL, 10*time.Minute)

	var pool *pgxpool.Pool
	var bunDB *bun.DB
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bunDB = bun.NewDB(sqldb, pgdialect.New())
	}

	var loader memory.PackLoader = memory.NewStaticPackLoader(samplePacks())
	if pool != nil {
		loader = pginfra.NewPackLoader(pool)
	}

	var packs app.PackProvider
	if redisClient != nil {
		packs = redisinfra.NewPackRepository(redisClient, loader, packTTL)
	} else {
		packs = memory.NewPackRepository(loader, packTTL)
	}

	var states app.StateStore
	var answerCache app.AnswerCache
	if redisClient != nil {
		states = redisinfra.NewStateStore(redisClient, stateTTL)
		answerCache = redisinfra.NewAnswerCache(redisClient, stateTTL)
	} else {
		states = memory.NewStateStore(stateTTL)
		answerCache = memory.NewAnswerCache()
	}

	var ledger app.Ledger = memory.NewLedger()
	if bunDB != nil {
		ledger = pginfra.NewLedger(bunDB)
	}

	hub := transport.NewHub()
	orch := app.New(states, ledger, packs, answerCache, hub)
	if cfg.Match.StretchSec > 0 {
		orch.SetStretchDuration(time.Duration(cfg.Match.StretchSec) * time.Second)
	}

	wsHandler := transport.NewWSHandler(orch, hub)
	matchHandler := transport.NewMatchHandler(orch)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/matches", matchHandler.ServeCreate)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting trivia service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// samplePacks provides a minimal pack for demos without Postgres; real
// content comes from the packs table.
func samplePacks() map[string]domain.Pack {
	return map[string]domain.Pack{
		"pack-1": {
			ID: "pack-1",
			Innings: []domain.Inning{
				{Questions: []domain.Question{
					{
						ID:      "q1",
						Type:    domain.TypeMultipleChoice,
						Prompt:  "How many outs are there in a full inning?",
						Choices: []string{"three", "six", "nine"},
						Answer:  "six",
					},
				}},
				{Questions: []domain.Question{
					{
						ID:     "q2",
						Type:   domain.TypeClosest,
						Prompt: "How many stitches are on a regulation baseball?",
						Target: 108,
					},
				}},
			},
		},
	}
}
