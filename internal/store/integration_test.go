package store_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mohammad-safakhou/landlord/internal/agent/core"
	"github.com/mohammad-safakhou/landlord/internal/server"
	"github.com/mohammad-safakhou/landlord/internal/store"
)

func startPostgres(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "landlord",
			"POSTGRES_PASSWORD": "landlord",
			"POSTGRES_DB":       "landlord",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		_ = pg.Terminate(ctx)
		t.Fatalf("failed to get mapped port: %v", err)
	}
	host, err := pg.Host(ctx)
	if err != nil {
		_ = pg.Terminate(ctx)
		t.Fatalf("failed to get host: %v", err)
	}
	return pg, fmt.Sprintf("postgres://landlord:landlord@%s:%s/landlord?sslmode=disable", host, port.Port())
}

func findMigrationsDir(t *testing.T) string {
	t.Helper()
	cwd, _ := os.Getwd()
	for i := 0; i < 6; i++ {
		candidate := filepath.Join(cwd, "migrations")
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return "file://" + candidate
		}
		cwd = filepath.Dir(cwd)
	}
	t.Fatalf("could not locate migrations directory from test cwd")
	return ""
}

func TestPostgresInboxRoundTrip(t *testing.T) {
	if os.Getenv("LANDLORD_INTEGRATION") != "1" {
		t.Skip("set LANDLORD_INTEGRATION=1 to run against a postgres container")
	}
	ctx := context.Background()
	pg, dsn := startPostgres(t, ctx)
	defer func() { _ = pg.Terminate(ctx) }()

	migDir := findMigrationsDir(t)
	var migErr error
	for i := 0; i < 6; i++ {
		if migErr = server.Migrate(migDir, dsn, "up", 0); migErr == nil {
			break
		}
		time.Sleep(300 * time.Millisecond)
	}
	if migErr != nil {
		t.Fatalf("migrate up failed after retries: %v", migErr)
	}

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer st.Close()

	msg, err := st.Enqueue(ctx, store.NewMessage{Content: "Heater broken in 2C", Source: "sms", Location: "2C"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	list, err := st.ListUnprocessed(ctx, 10)
	if err != nil || len(list) != 1 || list[0].ID != msg.ID {
		t.Fatalf("list: %+v, %v", list, err)
	}
	if err := st.MarkProcessed(ctx, msg.ID, store.Outcome{Category: "maintenance", Urgency: "high", Handler: "maintenance"}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := st.MarkProcessed(ctx, msg.ID, store.Outcome{}); err != store.ErrNotFound {
		t.Fatalf("second mark: expected ErrNotFound, got %v", err)
	}

	failed, err := st.Enqueue(ctx, store.NewMessage{Content: "Unreadable message"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := st.MarkFailed(ctx, failed.ID, "classify: unexpected fault"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	list, err = st.ListUnprocessed(ctx, 10)
	if err != nil || len(list) != 1 || list[0].Attempts != 1 {
		t.Fatalf("list after failure: %+v, %v", list, err)
	}
	if list, err = st.ListUnprocessed(ctx, 10, failed.ID); err != nil || len(list) != 0 {
		t.Fatalf("excluded list: %+v, %v", list, err)
	}

	if err := st.InsertClassification(ctx, core.ClassificationRecord{MessageContent: msg.Content, Flag: core.CategoryMaintenance, Urgency: core.UrgencyHigh}); err != nil {
		t.Fatalf("classification: %v", err)
	}
	if err := st.SaveWorkerListings(ctx, "heating technician near 2C contact information", []core.WorkerListing{{Name: "Warm Co", Rating: 4.9, Reviews: 10}}); err != nil {
		t.Fatalf("listings: %v", err)
	}
	if _, err := st.SaveTaxReport(ctx, msg.ID, core.TaxationAnalysis{Summary: "none"}); err != nil {
		t.Fatalf("tax report: %v", err)
	}

	if err := server.Migrate(migDir, dsn, "down", 0); err != nil {
		t.Fatalf("migrate down: %v", err)
	}
}
