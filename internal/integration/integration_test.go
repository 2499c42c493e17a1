package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"dugout-trivia/internal/app"
	"dugout-trivia/internal/domain"
	pgstore "dugout-trivia/internal/infra/postgres"
	pgmigrations "dugout-trivia/internal/infra/postgres/migrations"
	infraredis "dugout-trivia/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

// nopBus satisfies the broadcaster port; delivery is covered by the
// transport tests.
type nopBus struct{}

func (nopBus) Broadcast(string, string, any) {}
func (nopBus) Send(string, string, any)      {}

func TestMatchEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := migrateAndSeed(t, ctx, pgURL, samplePack())
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	ledger := pgstore.NewLedger(db)
	packs := infraredis.NewPackRepository(redisClient, pgstore.NewPackLoader(pool), 5*time.Minute)
	states := infraredis.NewStateStore(redisClient, time.Hour)
	cache := infraredis.NewAnswerCache(redisClient, time.Hour)
	orch := app.New(states, ledger, packs, cache, nopBus{})

	m, err := orch.CreateMatch(ctx, "pack-1", domain.Settings{TimerSec: 20, GrandSlam: true})
	if err != nil {
		t.Fatalf("create match: %v", err)
	}

	alice, _, err := orch.Join(ctx, app.JoinInput{MatchID: m.ID, Nickname: "Alice", SessionID: "s1"})
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bob, _, err := orch.Join(ctx, app.JoinInput{MatchID: m.ID, Nickname: "Bob", SessionID: "s2"})
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}

	if err := orch.Start(ctx, m.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Alice answers first and claims the grand slam; Bob is correct too but
	// scores a single; Bob's second submission loses at the ledger.
	if _, err := orch.SubmitAnswer(ctx, app.SubmitInput{MatchID: m.ID, PlayerID: alice.ID, QuestionID: "q1", Choice: "9"}); err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	if _, err := orch.SubmitAnswer(ctx, app.SubmitInput{MatchID: m.ID, PlayerID: bob.ID, QuestionID: "q1", Choice: "9"}); err != nil {
		t.Fatalf("bob submit: %v", err)
	}
	_, err = orch.SubmitAnswer(ctx, app.SubmitInput{MatchID: m.ID, PlayerID: bob.ID, QuestionID: "q1", Choice: "8"})
	if !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("duplicate submit = %v, want ErrDuplicateSubmission", err)
	}

	if err := orch.Reveal(ctx, m.ID); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	st, err := orch.State(ctx, m.ID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Phase != domain.PhaseReveal {
		t.Fatalf("phase = %s", st.Phase)
	}
	if st.LineScore[0] == nil || *st.LineScore[0] != 5 {
		t.Fatalf("line score inning 1 = %v, want 5", st.LineScore[0])
	}
	lb := st.Leaderboard.Entries
	if len(lb) != 2 || lb[0].PlayerID != alice.ID || lb[0].Runs != 4 || lb[1].Runs != 1 {
		t.Fatalf("leaderboard = %+v", lb)
	}

	// Finish the second inning and let the match archive itself.
	if err := orch.Advance(ctx, m.ID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := orch.Reveal(ctx, m.ID); err != nil {
		t.Fatalf("reveal inning 2: %v", err)
	}
	if err := orch.Advance(ctx, m.ID); err != nil {
		t.Fatalf("final advance: %v", err)
	}

	record, err := ledger.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	if record.Status != domain.StatusCompleted || record.CompletedAt == nil {
		t.Fatalf("match record = %+v", record)
	}
	if _, err := orch.State(ctx, m.ID); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("state after completion = %v, want ErrMatchNotFound", err)
	}

	// The durable ledger keeps the full answer history.
	answers, err := ledger.ListAnswers(ctx, m.ID)
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("persisted answers = %d, want 2", len(answers))
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateAndSeed(t *testing.T, ctx context.Context, dsn string, pack domain.Pack) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(pack)
	if err != nil {
		t.Fatalf("marshal pack: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO packs (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, pack.ID, string(data)); err != nil {
		t.Fatalf("insert pack: %v", err)
	}
	return db
}

func samplePack() domain.Pack {
	return domain.Pack{
		ID:    "pack-1",
		Title: "Opening Day",
		Innings: []domain.Inning{
			{Questions: []domain.Question{{
				ID:      "q1",
				Type:    domain.TypeMultipleChoice,
				Prompt:  "How many players take the field on defense?",
				Choices: []string{"8", "9", "10"},
				Answer:  "9",
			}}},
			{Questions: []domain.Question{{
				ID:     "q2",
				Type:   domain.TypeTrueFalse,
				Prompt: "A foul ball can be strike three.",
				Answer: "false",
			}}},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
