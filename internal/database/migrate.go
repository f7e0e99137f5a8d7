package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	applog "github.com/Tomlord1122/takeout/internal/logger"
)

// Migrations are versioned files under migrations/:
//
//	0001_name.up.sql / 0001_name.down.sql
//
// A file whose first line is "-- NO_TX" runs outside a transaction.

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	version  int
	name     string
	upFile   string
	downFile string
}

// MigrationStatus is one row of `tko migrate status`.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt time.Time
}

var migFileRe = regexp.MustCompile(`^([0-9]{4})_(.+)\.(up|down)\.sql$`)

// migrationLockID keys the session advisory lock that serializes Up and
// Down across processes sharing a database.
const migrationLockID int64 = 0x74616b656f7574

// conn is satisfied by both *sql.DB and *sql.Conn.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Migrator applies the embedded migrations to a Postgres database.
type Migrator struct {
	db  *sql.DB
	src fs.FS
	log *zap.Logger
}

func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db, src: migrationsFS, log: applog.Named("migrate")}
}

func (m *Migrator) load() (map[int]migration, error) {
	entries := map[int]migration{}
	list, err := fs.ReadDir(m.src, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	for _, de := range list {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		parts := migFileRe.FindStringSubmatch(name)
		if parts == nil {
			continue
		}
		ver, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		item := entries[ver]
		item.version = ver
		item.name = parts[2]
		p := "migrations/" + name
		if parts[3] == "up" {
			item.upFile = p
		} else {
			item.downFile = p
		}
		entries[ver] = item
	}
	return entries, nil
}

func (m *Migrator) ensureTable(ctx context.Context, c conn) error {
	_, err := c.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version    INTEGER PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`)
	return err
}

func (m *Migrator) applied(ctx context.Context, c conn) (map[int]time.Time, error) {
	if err := m.ensureTable(ctx, c); err != nil {
		return nil, err
	}
	rows, err := c.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	got := map[int]time.Time{}
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		got[v] = at
	}
	return got, rows.Err()
}

// locked runs fn on a dedicated connection holding the migration lock.
// Another process migrating the same database blocks here until it is done.
func (m *Migrator) locked(ctx context.Context, fn func(c *sql.Conn) (int, error)) (n int, err error) {
	c, err := m.db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	if _, err := c.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return 0, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		// The session lock must be released even when ctx is already done.
		if _, uerr := c.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockID); uerr != nil {
			err = errors.Join(err, fmt.Errorf("release migration lock: %w", uerr))
		}
	}()
	return fn(c)
}

// Up applies every pending migration in version order and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	migs, err := m.load()
	if err != nil {
		return 0, err
	}
	return m.locked(ctx, func(c *sql.Conn) (int, error) {
		return m.up(ctx, c, migs)
	})
}

func (m *Migrator) up(ctx context.Context, c conn, migs map[int]migration) (int, error) {
	// Read after taking the lock so a concurrent runner's work is seen.
	done, err := m.applied(ctx, c)
	if err != nil {
		return 0, err
	}
	versions := sortedVersions(migs)
	n := 0
	for _, v := range versions {
		if _, ok := done[v]; ok {
			continue
		}
		mig := migs[v]
		if mig.upFile == "" {
			return n, fmt.Errorf("missing up migration for version %04d", v)
		}
		start := time.Now()
		if err := m.exec(ctx, c, mig.upFile, `INSERT INTO schema_migrations(version) VALUES($1)`, v); err != nil {
			return n, fmt.Errorf("migration %04d_%s failed: %w", v, mig.name, err)
		}
		m.log.Info("applied", zap.Int("version", v), zap.String("name", mig.name), applog.Duration(time.Since(start)))
		n++
	}
	return n, nil
}

// Down reverts the newest steps applied migrations. steps <= 0 means one.
func (m *Migrator) Down(ctx context.Context, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	migs, err := m.load()
	if err != nil {
		return 0, err
	}
	return m.locked(ctx, func(c *sql.Conn) (int, error) {
		return m.down(ctx, c, migs, steps)
	})
}

func (m *Migrator) down(ctx context.Context, c conn, migs map[int]migration, steps int) (int, error) {
	done, err := m.applied(ctx, c)
	if err != nil {
		return 0, err
	}
	versions := make([]int, 0, len(done))
	for v := range done {
		versions = append(versions, v)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))

	n := 0
	for _, v := range versions {
		if n == steps {
			break
		}
		mig, ok := migs[v]
		if !ok || mig.downFile == "" {
			return n, fmt.Errorf("no down migration found for version %d", v)
		}
		if err := m.exec(ctx, c, mig.downFile, `DELETE FROM schema_migrations WHERE version = $1`, v); err != nil {
			return n, fmt.Errorf("rollback %04d_%s failed: %w", v, mig.name, err)
		}
		m.log.Info("reverted", zap.Int("version", v), zap.String("name", mig.name))
		n++
	}
	return n, nil
}

// Status lists every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	migs, err := m.load()
	if err != nil {
		return nil, err
	}
	done, err := m.applied(ctx, m.db)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, 0, len(migs))
	for _, v := range sortedVersions(migs) {
		at, ok := done[v]
		out = append(out, MigrationStatus{Version: v, Name: migs[v].name, Applied: ok, AppliedAt: at})
	}
	return out, nil
}

func (m *Migrator) exec(ctx context.Context, c conn, file, bookkeeping string, version int) error {
	b, err := fs.ReadFile(m.src, file)
	if err != nil {
		return err
	}
	text := string(b)
	if strings.HasPrefix(strings.TrimSpace(text), "-- NO_TX") {
		if _, err := c.ExecContext(ctx, text); err != nil {
			return err
		}
		_, err := c.ExecContext(ctx, bookkeeping, version)
		return err
	}

	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, text); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

func sortedVersions(migs map[int]migration) []int {
	versions := make([]int, 0, len(migs))
	for v := range migs {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions
}
