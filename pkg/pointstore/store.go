// Package pointstore keeps raw location points in a local SQLite database,
// so days can be analyzed without a reachable Recorder.
package pointstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/codeGROOVE-dev/tripsense/pkg/track"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a SQLite-backed point archive. It implements track.Source.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database at path and applies pending migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrateUp(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	logger.Debug("point store opened", "path", path)
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Closing m would close the shared *sql.DB.
	m.Log = &migrateLogger{logger: s.logger}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Version returns the applied schema version.
func (s *Store) Version() (uint, error) {
	var v uint
	var dirty bool
	err := s.db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&v, &dirty)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("schema version %d is dirty", v)
	}
	return v, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// InsertPoints stores points for one device. Points already stored for the same
// timestamp are skipped; the first write wins.
func (s *Store) InsertPoints(ctx context.Context, user, device string, points []track.RawPoint) (inserted, skipped int, err error) {
	if user == "" || device == "" {
		return 0, 0, errors.New("user and device are required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO points (user, device, tst, lat, lon, alt, acc) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = stmt.Close() }()

	for _, p := range points {
		result, err := stmt.ExecContext(ctx, user, device, p.Tst, p.Lat, p.Lon, nullable(p.Alt), nullable(p.Acc))
		if err != nil {
			return 0, 0, fmt.Errorf("inserting point at %d: %w", p.Tst, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, 0, err
		}
		if n > 0 {
			inserted++
		} else {
			skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	s.logger.Debug("stored points", "user", user, "device", device, "inserted", inserted, "skipped", skipped)
	return inserted, skipped, nil
}

// FetchPoints implements track.Source. The range is half open: [From, To).
func (s *Store) FetchPoints(ctx context.Context, q track.Query) ([]track.RawPoint, error) {
	const op = "pointstore: fetch points"

	query := `SELECT tst, lat, lon, alt, acc FROM points WHERE 1=1`
	var args []any
	if q.User != "" {
		query += ` AND user = ?`
		args = append(args, q.User)
	}
	if q.Device != "" {
		query += ` AND device = ?`
		args = append(args, q.Device)
	}
	if !q.From.IsZero() {
		query += ` AND tst >= ?`
		args = append(args, q.From.Unix())
	}
	if !q.To.IsZero() {
		query += ` AND tst < ?`
		args = append(args, q.To.Unix())
	}
	query += ` ORDER BY tst`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &track.SourceError{Op: op, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var points []track.RawPoint
	for rows.Next() {
		var p track.RawPoint
		var alt, acc sql.NullFloat64
		if err := rows.Scan(&p.Tst, &p.Lat, &p.Lon, &alt, &acc); err != nil {
			return nil, &track.SourceError{Op: op, Err: err}
		}
		p.Alt = fromNull(alt)
		p.Acc = fromNull(acc)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &track.SourceError{Op: op, Err: err}
	}
	return points, nil
}

// Count returns the number of points stored for a device, or for everything
// when user and device are empty.
func (s *Store) Count(ctx context.Context, user, device string) (int, error) {
	query := `SELECT COUNT(*) FROM points`
	var args []any
	if user != "" || device != "" {
		query += ` WHERE user = ? AND device = ?`
		args = append(args, user, device)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// migrateLogger routes golang-migrate output to slog.
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf("[migrate] "+format, v...))
}

func (*migrateLogger) Verbose() bool { return false }
