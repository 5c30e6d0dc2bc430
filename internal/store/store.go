package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mohammad-safakhou/landlord/internal/agent/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Store is the Postgres persistence layer. Every write is a single insert or
// a single-row update; callers treat failures as non-fatal.
type Store struct {
	DB *sql.DB
}

var (
	_ core.ClassificationLog = (*Store)(nil)
	_ core.ListingStore      = (*Store)(nil)
	_ core.ReportStore       = (*Store)(nil)
)

var (
	metricsOnce  sync.Once
	writeCounter otelmetric.Int64Counter
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	writeCounter, _ = meter.Int64Counter("store_writes_total",
		otelmetric.WithDescription("Store writes by table and outcome"))
}

func recordWrite(ctx context.Context, table string, err error) {
	metricsOnce.Do(initStoreMetrics)
	if writeCounter == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	writeCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("table", table),
		attribute.String("outcome", outcome),
	))
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// InsertClassification appends to the classification log.
func (s *Store) InsertClassification(ctx context.Context, rec core.ClassificationRecord) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO categorizer_results (message_content, flag, urgency) VALUES ($1, $2, $3)`,
		rec.MessageContent, string(rec.Flag), string(rec.Urgency))
	recordWrite(ctx, "categorizer_results", err)
	if err != nil {
		return fmt.Errorf("insert classification: %w", err)
	}
	return nil
}

// SaveWorkerListings stores one row per listing in a single transaction.
func (s *Store) SaveWorkerListings(ctx context.Context, query string, listings []core.WorkerListing) (err error) {
	defer func() { recordWrite(ctx, "maintenance_search_results", err) }()
	if len(listings) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO maintenance_search_results
		(search_query, name, type, rating, reviews, address, phone, website)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return fmt.Errorf("prepare listing insert: %w", err)
	}
	defer stmt.Close()
	for _, l := range listings {
		if _, err = stmt.ExecContext(ctx, query, l.Name, l.Type, l.Rating, l.Reviews, l.Address, l.Phone, l.Website); err != nil {
			return fmt.Errorf("insert listing %q: %w", l.Name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit listings: %w", err)
	}
	return nil
}

// SaveTaxReport stores a report and returns its id.
func (s *Store) SaveTaxReport(ctx context.Context, messageID string, report core.TaxationAnalysis) (string, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode tax report: %w", err)
	}
	id := uuid.NewString()
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO tax_reports (id, message_id, summary, report, degraded) VALUES ($1, $2, $3, $4, $5)`,
		id, messageID, report.Summary, payload, report.Degraded)
	recordWrite(ctx, "tax_reports", err)
	if err != nil {
		return "", fmt.Errorf("insert tax report: %w", err)
	}
	return id, nil
}

// Enqueue stores an inbound message for a later refresh.
func (s *Store) Enqueue(ctx context.Context, in NewMessage) (Message, error) {
	if err := in.validate(); err != nil {
		return Message{}, err
	}
	msg := Message{
		ID:       uuid.NewString(),
		Content:  in.Content,
		Source:   in.Source,
		Location: in.Location,
	}
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO inbound_messages (id, content, source, location) VALUES ($1, $2, $3, $4) RETURNING received_at`,
		msg.ID, msg.Content, msg.Source, msg.Location).Scan(&msg.ReceivedAt)
	recordWrite(ctx, "inbound_messages", err)
	if err != nil {
		return Message{}, fmt.Errorf("enqueue message: %w", err)
	}
	return msg, nil
}

// ListUnprocessed returns up to limit unprocessed messages. Messages with
// fewer failed attempts come first, then oldest first. Ids in exclude are
// skipped.
func (s *Store) ListUnprocessed(ctx context.Context, limit int, exclude ...string) ([]Message, error) {
	if exclude == nil {
		exclude = []string{}
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, content, source, location, received_at, attempts
		   FROM inbound_messages
		  WHERE processed_at IS NULL
		    AND id::text <> ALL($2::text[])
		  ORDER BY attempts, received_at, id
		  LIMIT $1`, limit, pq.Array(exclude))
	if err != nil {
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Content, &m.Source, &m.Location, &m.ReceivedAt, &m.Attempts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkFailed records a failed pipeline run for id. The message stays
// unprocessed and sorts behind messages with fewer attempts.
func (s *Store) MarkFailed(ctx context.Context, id string, cause string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE inbound_messages
		    SET attempts = attempts + 1, failed_at = NOW(), last_error = $2
		  WHERE id = $1 AND processed_at IS NULL`,
		id, cause)
	recordWrite(ctx, "inbound_messages", err)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkProcessed records the outcome of a pipeline run for id.
func (s *Store) MarkProcessed(ctx context.Context, id string, o Outcome) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE inbound_messages
		    SET processed_at = NOW(), category = $2, urgency = $3, handler = $4, response = $5
		  WHERE id = $1 AND processed_at IS NULL`,
		id, o.Category, o.Urgency, o.Handler, o.Response)
	recordWrite(ctx, "inbound_messages", err)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ErrNotFound is returned when a message is unknown or already processed.
var ErrNotFound = errors.New("message not found or already processed")

// ErrEmptyMessage rejects blank inbound content.
var ErrEmptyMessage = errors.New("message content is empty")

// NewMessage is an inbound message before it is stored.
type NewMessage struct {
	Content  string `json:"content"`
	Source   string `json:"source"`
	Location string `json:"location"`
}

func (n NewMessage) validate() error {
	if strings.TrimSpace(n.Content) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// Message is a stored inbound message.
type Message struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Source     string    `json:"source,omitempty"`
	Location   string    `json:"location,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	Attempts   int       `json:"attempts,omitempty"`
}

// Outcome is what a refresh records against a processed message.
type Outcome struct {
	Category string
	Urgency  string
	Handler  string
	Response string
}
