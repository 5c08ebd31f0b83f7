package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements simplepublish.ItemStore using PostgreSQL
type Store struct {
	db DBTX
}

// New creates a new PostgreSQL item store
func New(db DBTX) simplepublish.ItemStore {
	return &Store{db: db}
}

// NewWithPool creates a new PostgreSQL item store with connection pool
func NewWithPool(pool *pgxpool.Pool) simplepublish.ItemStore {
	return &Store{db: pool}
}

// schema holds the queue table. Payload and result maps are JSONB; targets
// are a text array so the target filter can use = ANY(targets).
const schema = `
CREATE TABLE IF NOT EXISTS publish_items (
    id              UUID PRIMARY KEY,
    payload         JSONB NOT NULL,
    targets         TEXT[] NOT NULL,
    priority        TEXT NOT NULL,
    status          TEXT NOT NULL,
    scheduled_for   TIMESTAMPTZ,
    test_results    JSONB,
    publish_results JSONB,
    retry_count     INT NOT NULL DEFAULT 0,
    max_retries     INT NOT NULL DEFAULT 3,
    last_error      TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_publish_items_status ON publish_items (status);
CREATE INDEX IF NOT EXISTS idx_publish_items_scheduled_for ON publish_items (scheduled_for);
`

// EnsureSchema creates the publish_items table and its indexes if they do
// not exist yet.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("item already exists")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - run EnsureSchema first")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

const itemColumns = `id, payload, targets, priority, status, scheduled_for,
       test_results, publish_results, retry_count, max_retries, last_error,
       created_at, updated_at`

func (s *Store) Put(ctx context.Context, item *simplepublish.Item) error {
	query := `
		INSERT INTO publish_items (
			id, payload, targets, priority, status, scheduled_for,
			test_results, publish_results, retry_count, max_retries,
			last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.db.Exec(ctx, query,
		item.ID, item.Payload, targetsArg(item.Targets), string(item.Priority),
		string(item.Status), scheduledArg(item.ScheduledFor),
		item.TestResults, item.PublishResults, item.RetryCount, item.MaxRetries,
		item.LastError, item.CreatedAt, item.UpdatedAt)

	if err != nil {
		return handlePostgresError("put item", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*simplepublish.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM publish_items WHERE id = $1`

	item, err := scanItem(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplepublish.ErrItemNotFound
		}
		return nil, handlePostgresError("get item", err)
	}

	return item, nil
}

func (s *Store) Update(ctx context.Context, item *simplepublish.Item) error {
	query := `
		UPDATE publish_items SET
			payload = $2, targets = $3, priority = $4, status = $5,
			scheduled_for = $6, test_results = $7, publish_results = $8,
			retry_count = $9, max_retries = $10, last_error = $11,
			updated_at = $12
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query,
		item.ID, item.Payload, targetsArg(item.Targets), string(item.Priority),
		string(item.Status), scheduledArg(item.ScheduledFor),
		item.TestResults, item.PublishResults, item.RetryCount, item.MaxRetries,
		item.LastError, item.UpdatedAt)

	if err != nil {
		return handlePostgresError("update item", err)
	}
	if tag.RowsAffected() == 0 {
		return simplepublish.ErrItemNotFound
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM publish_items WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("delete item", err)
	}
	if tag.RowsAffected() == 0 {
		return simplepublish.ErrItemNotFound
	}

	return nil
}

func (s *Store) List(ctx context.Context, filter simplepublish.ItemFilter) ([]*simplepublish.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM publish_items`

	var conds []string
	var args []interface{}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.Target != "" {
		args = append(args, filter.Target)
		conds = append(conds, fmt.Sprintf("$%d = ANY(targets)", len(args)))
	}
	if filter.ScheduledBy != nil {
		args = append(args, *filter.ScheduledBy)
		conds = append(conds, fmt.Sprintf("(scheduled_for IS NULL OR scheduled_for <= $%d)", len(args)))
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError("list items", err)
	}
	defer rows.Close()

	var result []*simplepublish.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, handlePostgresError("list items", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list items", err)
	}

	return result, nil
}

// Transition performs the compare-and-set as a single conditional UPDATE, so
// exactly one of any concurrent callers gets the row.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, from, to simplepublish.ItemStatus) (*simplepublish.Item, error) {
	if !simplepublish.ValidTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", simplepublish.ErrInvalidTransition, from, to)
	}

	query := `
		UPDATE publish_items SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING ` + itemColumns

	item, err := scanItem(s.db.QueryRow(ctx, query, id, string(from), string(to), time.Now().UTC()))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, handlePostgresError("transition item", err)
	}

	// No row matched: missing item or a lost race.
	if _, getErr := s.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: item is not %s", simplepublish.ErrTransitionConflict, from)
}

func (s *Store) CountByStatus(ctx context.Context) (map[simplepublish.ItemStatus]int, error) {
	rows, err := s.db.Query(ctx, `SELECT status, COUNT(*) FROM publish_items GROUP BY status`)
	if err != nil {
		return nil, handlePostgresError("count items", err)
	}
	defer rows.Close()

	counts := make(map[simplepublish.ItemStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, handlePostgresError("count items", err)
		}
		counts[simplepublish.ItemStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("count items", err)
	}

	return counts, nil
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*simplepublish.Item, error) {
	var (
		item         simplepublish.Item
		priority     string
		status       string
		scheduledFor *time.Time
	)

	err := row.Scan(
		&item.ID, &item.Payload, &item.Targets, &priority, &status, &scheduledFor,
		&item.TestResults, &item.PublishResults, &item.RetryCount, &item.MaxRetries,
		&item.LastError, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	item.Priority = simplepublish.Priority(priority)
	item.Status = simplepublish.ItemStatus(status)
	if scheduledFor != nil {
		item.ScheduledFor = *scheduledFor
	}

	return &item, nil
}

// scheduledArg maps the zero time onto NULL so "eligible immediately" is
// queryable with IS NULL.
func scheduledArg(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func targetsArg(targets []string) []string {
	if targets == nil {
		return []string{}
	}
	return targets
}
