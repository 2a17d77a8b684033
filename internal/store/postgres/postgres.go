// Package postgres is the Postgres-backed port.CommandStore (spec §6's
// logical schema): sessions and their commands, persisted via
// database/sql with the pgx/v5 stdlib driver, migrated with goose.
package postgres

import (
	"context"
	"crypto/tls"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"fermentctl/internal/domain"
	"fermentctl/internal/observability"
	"fermentctl/internal/port"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a database/sql-backed port.CommandStore.
type Store struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// Options configures the connection pool. Metrics may be nil, in which
// case no query-latency samples are recorded. TLSConfig may be nil, in
// which case the connection uses whatever sslmode the DSN specifies.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Migrate         bool
	Metrics         *observability.Metrics
	TLSConfig       *tls.Config
}

// Open dials Postgres via the pgx stdlib driver, applies pool settings,
// and — if opts.Migrate — runs pending goose migrations before returning.
// If opts.TLSConfig is set, the dial uses it for mutual TLS instead of
// the DSN's own sslmode negotiation (spec's shared tlsutil collaborator).
func Open(dsn string, opts Options) (*Store, error) {
	dataSourceName := dsn
	if opts.TLSConfig != nil {
		connConfig, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres: parse dsn: %w", err)
		}
		connConfig.TLSConfig = opts.TLSConfig
		dataSourceName = stdlib.RegisterConnConfig(connConfig)
	}

	db, err := sql.Open("pgx", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if opts.Migrate {
		if err := Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Store{db: db, metrics: opts.Metrics}, nil
}

// timeQuery records StoreQueryLatency for op, if metrics are wired.
func (s *Store) timeQuery(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.StoreQueryLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// Migrate applies all pending goose migrations using the embedded SQL
// files. Exposed separately so cmd/fermentctl-migrate can run it without
// also opening the service's connection pool.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("postgres: set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("postgres: apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ port.CommandStore = (*Store)(nil)

// Insert creates the session row, if absent, and all command rows for it,
// within a single transaction.
func (s *Store) Insert(ctx context.Context, sessionID uuid.UUID, heating, cooling domain.Hardware, commands []domain.NewCommand) (int, error) {
	defer s.timeQuery("insert", time.Now())

	if len(commands) == 0 {
		return 0, fmt.Errorf("postgres: no commands to insert")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var internalID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO session (uuid, heating_id, cooling_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (uuid) DO UPDATE SET uuid = EXCLUDED.uuid
		 RETURNING id`,
		sessionID, heating.ID, cooling.ID,
	).Scan(&internalID)
	if err != nil {
		return 0, fmt.Errorf("postgres: upsert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO command (uuid, session_id, fermentation_step_id, status, value, value_holding_duration_hours, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())`)
	if err != nil {
		return 0, fmt.Errorf("postgres: prepare insert command: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	for _, c := range commands {
		if _, err := stmt.ExecContext(ctx,
			c.ID, internalID, c.SessionData.StepPosition, c.Status.Kind.String(),
			c.Value, int(c.ValueHoldingDuration.Hours()),
		); err != nil {
			return 0, fmt.Errorf("postgres: insert command %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return len(commands), nil
}

// FetchCommands returns the session's commands filtered by status,
// ordered by updated_at (ties broken by insertion sequence).
func (s *Store) FetchCommands(ctx context.Context, sessionID uuid.UUID, status domain.StatusKind, opts port.FetchOptions) ([]domain.Command, error) {
	defer s.timeQuery("fetch_commands", time.Now())

	order := "ASC"
	if opts.Sorting == port.SortDescending {
		order = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT c.uuid, c.session_id, c.fermentation_step_id, c.status, c.status_date,
		       c.value, c.value_reached_at, c.value_holding_duration_hours, c.updated_at
		FROM command c
		JOIN session sess ON sess.id = c.session_id
		WHERE sess.uuid = $1 AND c.status = $2
		ORDER BY c.updated_at %s, c.seq %s`, order, order)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID, status.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch commands: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Command
	for rows.Next() {
		var (
			cmdUUID        uuid.UUID
			internalSessID int64
			stepPosition   int
			statusStr      string
			statusDate     sql.NullTime
			value          float64
			reachedAt      sql.NullTime
			holdingHours   int
			updatedAt      time.Time
		)
		if err := rows.Scan(&cmdUUID, &internalSessID, &stepPosition, &statusStr, &statusDate,
			&value, &reachedAt, &holdingHours, &updatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan command: %w", err)
		}

		cmdStatus, err := statusFromRow(statusStr, statusDate)
		if err != nil {
			return nil, err
		}

		var reached *time.Time
		if reachedAt.Valid {
			t := reachedAt.Time
			reached = &t
		}

		out = append(out, domain.Command{
			UUID:                cmdUUID,
			FermentationStepID:  int64(stepPosition),
			SessionID:           internalSessID,
			Status:              cmdStatus,
			UpdatedAt:           updatedAt,
			TemperatureData: domain.TemperatureData{
				Value:                value,
				ValueReachedAt:       reached,
				ValueHoldingDuration: time.Duration(holdingHours) * time.Hour,
			},
		})
	}
	return out, rows.Err()
}

func statusFromRow(kind string, date sql.NullTime) (domain.CommandStatus, error) {
	switch kind {
	case domain.StatusPlanned.String():
		return domain.Planned(), nil
	case domain.StatusRunning.String():
		if !date.Valid {
			return domain.CommandStatus{}, errors.New("postgres: running command missing status_date")
		}
		return domain.Running(date.Time), nil
	case domain.StatusExecuted.String():
		if !date.Valid {
			return domain.CommandStatus{}, errors.New("postgres: executed command missing status_date")
		}
		return domain.Executed(date.Time), nil
	default:
		return domain.CommandStatus{}, fmt.Errorf("postgres: unknown status %q", kind)
	}
}

// FetchHardwareID returns the device id bound to the hardware type.
func (s *Store) FetchHardwareID(ctx context.Context, sessionID uuid.UUID, hardware domain.HardwareType) (string, error) {
	defer s.timeQuery("fetch_hardware_id", time.Now())

	column := "cooling_id"
	if hardware == domain.HardwareHeating {
		column = "heating_id"
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM session WHERE uuid = $1`, column), sessionID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("postgres: session %s not found", sessionID)
	}
	if err != nil {
		return "", fmt.Errorf("postgres: fetch hardware id: %w", err)
	}
	return id, nil
}

// FetchActiveHardwareType returns the session's active hardware type, or
// nil if unset or the session is unknown.
func (s *Store) FetchActiveHardwareType(ctx context.Context, sessionID uuid.UUID) (*domain.HardwareType, error) {
	defer s.timeQuery("fetch_active_hardware_type", time.Now())

	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT active_hardware_type FROM session WHERE uuid = $1`, sessionID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch active hardware type: %w", err)
	}
	if !raw.Valid {
		return nil, nil
	}
	h, err := domain.ParseHardwareType(raw.String)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return &h, nil
}

// UpdateStatus writes a new status for the command.
func (s *Store) UpdateStatus(ctx context.Context, commandUUID uuid.UUID, status domain.CommandStatus) error {
	defer s.timeQuery("update_status", time.Now())

	if status.Kind == domain.StatusPlanned {
		return fmt.Errorf("postgres: cannot update status back to planned")
	}

	var statusDate time.Time
	if status.Kind == domain.StatusRunning {
		statusDate = status.Since
	} else {
		statusDate = status.At
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE command SET status = $1, status_date = $2, updated_at = now() WHERE uuid = $3`,
		status.Kind.String(), statusDate, commandUUID)
	if err != nil {
		return fmt.Errorf("postgres: update status: %w", err)
	}
	return checkRowsAffected(res, "update status", commandUUID)
}

// UpdateValueReachedAt sets the field unconditionally.
func (s *Store) UpdateValueReachedAt(ctx context.Context, commandUUID uuid.UUID, at time.Time) error {
	defer s.timeQuery("update_value_reached_at", time.Now())

	res, err := s.db.ExecContext(ctx,
		`UPDATE command SET value_reached_at = $1, updated_at = now() WHERE uuid = $2`,
		at, commandUUID)
	if err != nil {
		return fmt.Errorf("postgres: update value_reached_at: %w", err)
	}
	return checkRowsAffected(res, "update value_reached_at", commandUUID)
}

// UpdateActiveHardwareType sets or clears the session's active hardware type.
func (s *Store) UpdateActiveHardwareType(ctx context.Context, sessionID uuid.UUID, hardware *domain.HardwareType) error {
	defer s.timeQuery("update_active_hardware_type", time.Now())

	var value sql.NullString
	if hardware != nil {
		value = sql.NullString{String: hardware.String(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE session SET active_hardware_type = $1 WHERE uuid = $2`,
		value, sessionID)
	if err != nil {
		return fmt.Errorf("postgres: update active_hardware_type: %w", err)
	}
	return checkRowsAffected(res, "update active_hardware_type", sessionID)
}

func checkRowsAffected(res sql.Result, op string, id fmt.Stringer) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: %s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("postgres: %s: %s not found", op, id)
	}
	return nil
}
