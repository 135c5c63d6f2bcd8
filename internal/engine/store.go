package engine

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"

	"github.com/opensync/syncd/internal/pathnorm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const busyTimeoutMillis = 5000

// SQLiteSnapshot implements Snapshot on an embedded SQLite database,
// checkpointed after every committed intent (spec.md §6 "Persisted
// state"), grounded directly on the teacher's internal/sync/state.go
// SQLiteStore: same WAL pragma, same goose-via-embed.FS migration runner,
// same "open, migrate, prepare" constructor shape.
type SQLiteSnapshot struct {
	db     *sql.DB
	logger *slog.Logger

	getStmt    *sql.Stmt
	putStmt    *sql.Stmt
	deleteStmt *sql.Stmt
	childrenStmt *sql.Stmt
	allStmt    *sql.Stmt
}

// NewSQLiteSnapshot opens (creating if absent) the database at dbPath,
// applies migrations, and prepares statements. Use ":memory:" for tests.
func NewSQLiteSnapshot(dbPath string, logger *slog.Logger) (*SQLiteSnapshot, error) {
	logger.Info("opening snapshot database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("engine: opening snapshot db: %w", err)
	}

	if err := setPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteSnapshot{db: db, logger: logger}

	if err := s.prepare(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: preparing snapshot statements: %w", err)
	}

	return s, nil
}

func setPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMillis),
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("engine: setting pragma %q: %w", p, err)
		}
	}

	return nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("engine: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("engine: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("engine: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration", slog.String("source", r.Source.Path))
	}

	return nil
}

func (s *SQLiteSnapshot) prepare(ctx context.Context) error {
	var err error

	s.getStmt, err = s.db.PrepareContext(ctx, `SELECT id, path, kind, hash, parent_id, updated_at FROM nodes WHERE path = ?`)
	if err != nil {
		return err
	}

	s.putStmt, err = s.db.PrepareContext(ctx, `
		INSERT INTO nodes (id, path, kind, hash, parent_id, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET id = excluded.id, kind = excluded.kind,
			hash = excluded.hash, parent_id = excluded.parent_id, updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}

	s.deleteStmt, err = s.db.PrepareContext(ctx, `DELETE FROM nodes WHERE path = ?`)
	if err != nil {
		return err
	}

	s.childrenStmt, err = s.db.PrepareContext(ctx, `SELECT id, path, kind, hash, parent_id, updated_at FROM nodes WHERE path LIKE ?`)
	if err != nil {
		return err
	}

	s.allStmt, err = s.db.PrepareContext(ctx, `SELECT id, path, kind, hash, parent_id, updated_at FROM nodes`)

	return err
}

// Close releases the underlying database handle.
func (s *SQLiteSnapshot) Close() error {
	return s.db.Close()
}

func (s *SQLiteSnapshot) All(ctx context.Context) (map[string]Node, error) {
	rows, err := s.allStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: listing nodes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Node)

	for rows.Next() {
		var (
			id, pathStr, kindText, hash, parentID string
			updatedNanos                          int64
		)

		if err := rows.Scan(&id, &pathStr, &kindText, &hash, &parentID, &updatedNanos); err != nil {
			return nil, fmt.Errorf("engine: scanning node: %w", err)
		}

		n := nodeFromRow(id, pathStr, kindText, hash, parentID, updatedNanos)
		out[n.Path.String()] = n
	}

	return out, rows.Err()
}

func (s *SQLiteSnapshot) Get(ctx context.Context, path pathnorm.Path) (Node, bool, error) {
	var (
		id, pathStr, kindText, hash, parentID string
		updatedNanos                          int64
	)

	err := s.getStmt.QueryRowContext(ctx, path.String()).Scan(&id, &pathStr, &kindText, &hash, &parentID, &updatedNanos)
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, false, nil
	}

	if err != nil {
		return Node{}, false, fmt.Errorf("engine: getting node %q: %w", path.String(), err)
	}

	return nodeFromRow(id, pathStr, kindText, hash, parentID, updatedNanos), true, nil
}

func (s *SQLiteSnapshot) Put(ctx context.Context, n Node) error {
	kindText := "file"
	if n.Kind == NodeFolder {
		kindText = "folder"
	}

	updated := n.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err := s.putStmt.ExecContext(ctx, n.ID, n.Path.String(), kindText, n.Hash, n.ParentID, updated.UnixNano())
	if err != nil {
		return fmt.Errorf("engine: putting node %q: %w", n.Path.String(), err)
	}

	return nil
}

func (s *SQLiteSnapshot) Delete(ctx context.Context, path pathnorm.Path) error {
	if _, err := s.deleteStmt.ExecContext(ctx, path.String()); err != nil {
		return fmt.Errorf("engine: deleting node %q: %w", path.String(), err)
	}

	if !path.IsDir() {
		return nil
	}

	rows, err := s.childrenStmt.QueryContext(ctx, path.String()+"/%")
	if err != nil {
		return fmt.Errorf("engine: listing descendants of %q: %w", path.String(), err)
	}
	defer rows.Close()

	var descendants []string

	for rows.Next() {
		var id, pathStr, kindText, hash, parentID string
		var updatedNanos int64

		if err := rows.Scan(&id, &pathStr, &kindText, &hash, &parentID, &updatedNanos); err != nil {
			return fmt.Errorf("engine: scanning descendant: %w", err)
		}

		descendants = append(descendants, pathStr)
	}

	for _, d := range descendants {
		if _, err := s.deleteStmt.ExecContext(ctx, d); err != nil {
			return fmt.Errorf("engine: deleting descendant %q: %w", d, err)
		}
	}

	return nil
}

func (s *SQLiteSnapshot) Move(ctx context.Context, from, to pathnorm.Path) error {
	n, ok, err := s.Get(ctx, from)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("engine: snapshot move: no node at %q", from.String())
	}

	all, err := s.All(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("engine: starting move transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE path = ?`, from.String()); err != nil {
		return fmt.Errorf("engine: move delete: %w", err)
	}

	n.Path = to
	if err := execPut(ctx, tx, n); err != nil {
		return err
	}

	if from.IsDir() {
		for _, c := range all {
			if !c.Path.HasPrefixDir(from) {
				continue
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE path = ?`, c.Path.String()); err != nil {
				return fmt.Errorf("engine: move delete descendant: %w", err)
			}

			c.Path = c.Path.Rebase(from, to)
			if err := execPut(ctx, tx, c); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func execPut(ctx context.Context, tx *sql.Tx, n Node) error {
	kindText := "file"
	if n.Kind == NodeFolder {
		kindText = "folder"
	}

	updated := n.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO nodes (id, path, kind, hash, parent_id, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET id = excluded.id, kind = excluded.kind,
			hash = excluded.hash, parent_id = excluded.parent_id, updated_at = excluded.updated_at`,
		n.ID, n.Path.String(), kindText, n.Hash, n.ParentID, updated.UnixNano())
	if err != nil {
		return fmt.Errorf("engine: putting node %q: %w", n.Path.String(), err)
	}

	return nil
}

func nodeFromRow(id, pathStr, kindText, hash, parentID string, updatedNanos int64) Node {
	kind := NodeFile
	if kindText == "folder" {
		kind = NodeFolder
	}

	return Node{
		ID:        id,
		Path:      pathnorm.New(pathStr, kind == NodeFolder),
		Kind:      kind,
		Hash:      hash,
		ParentID:  parentID,
		UpdatedAt: time.Unix(0, updatedNanos),
	}
}
