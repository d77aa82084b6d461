package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/db"
	"github.com/rubiojr/datacatalog/pkg/log"
	"github.com/rubiojr/datacatalog/pkg/query"
)

// SQLite stores entries as JSON documents in a local database, with an
// FTS5 table over the text fields.
type SQLite struct {
	db  *sql.DB
	log *log.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the catalog schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = memory",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	s := &SQLite{db: conn, log: log.ForService("store")}
	if err := s.CreateIndex(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// MigrationStatus reports the applied and pending schema migrations.
func (s *SQLite) MigrationStatus(ctx context.Context) (*db.Status, error) {
	return db.NewMigrationManager(s.db).Status(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateIndex applies pending schema migrations.
func (s *SQLite) CreateIndex(ctx context.Context) error {
	if err := db.InitializeDatabase(ctx, s.db); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DropIndex deletes every entry. The schema is kept.
func (s *SQLite) DropIndex(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM entries_fts"); err != nil {
			return fmt.Errorf("clearing text index: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM entries"); err != nil {
			return fmt.Errorf("clearing entries: %w", err)
		}
		return nil
	})
}

// Get returns the entry stored under id.
func (s *SQLite) Get(ctx context.Context, id string) (*catalog.Hit, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM entries WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", catalog.ErrEntryNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading entry %s: %v", ErrUnavailable, id, err)
	}
	return decodeHit(id, doc)
}

// Index creates or replaces the entry stored under id.
func (s *SQLite) Index(ctx context.Context, id string, e *catalog.Entry) (bool, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("marshaling entry %s: %w", id, err)
	}

	created := false
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var rowid int64
		err := tx.QueryRowContext(ctx, "SELECT rowid FROM entries WHERE id = ?", id).Scan(&rowid)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			created = true
		case err != nil:
			return fmt.Errorf("looking up entry %s: %w", id, err)
		}
		return s.write(ctx, tx, id, e, data)
	})
	return created, err
}

// Update merges partial into the stored document.
func (s *SQLite) Update(ctx context.Context, id string, partial map[string]any) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var doc string
		err := tx.QueryRowContext(ctx, "SELECT doc FROM entries WHERE id = ?", id).Scan(&doc)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", catalog.ErrEntryNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("reading entry %s: %w", id, err)
		}

		var merged map[string]any
		if err := json.Unmarshal([]byte(doc), &merged); err != nil {
			return fmt.Errorf("decoding entry %s: %w", id, err)
		}
		for k, v := range partial {
			merged[k] = v
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("%w: encoding entry %s: %v", ErrBadRequest, id, err)
		}
		var e catalog.Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("%w: entry %s: %v", ErrBadRequest, id, err)
		}
		return s.write(ctx, tx, id, &e, data)
	})
}

// write upserts the document keeping its rowid stable so the text index
// row can follow it.
func (s *SQLite) write(ctx context.Context, tx *sql.Tx, id string, e *catalog.Entry, doc []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entries (id, doc, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at
	`, id, string(doc))
	if err != nil {
		return fmt.Errorf("writing entry %s: %w", id, err)
	}

	var rowid int64
	if err := tx.QueryRowContext(ctx, "SELECT rowid FROM entries WHERE id = ?", id).Scan(&rowid); err != nil {
		return fmt.Errorf("reading rowid of %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM entries_fts WHERE rowid = ?", rowid); err != nil {
		return fmt.Errorf("clearing text index for %s: %w", id, err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO entries_fts (rowid, title, dataSample, sourceUri) VALUES (?, ?, ?, ?)",
		rowid, e.Title, e.DataSample, e.SourceURI)
	if err != nil {
		return fmt.Errorf("indexing text of %s: %w", id, err)
	}
	return nil
}

// Delete removes the entry stored under id.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var rowid int64
		err := tx.QueryRowContext(ctx, "SELECT rowid FROM entries WHERE id = ?", id).Scan(&rowid)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", catalog.ErrEntryNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("looking up entry %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM entries_fts WHERE rowid = ?", rowid); err != nil {
			return fmt.Errorf("removing %s from text index: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE rowid = ?", rowid); err != nil {
			return fmt.Errorf("removing %s: %w", id, err)
		}
		return nil
	})
}

// Search runs q. Facets are counted over the text query and Filter only;
// PostFilter narrows the hits and the total.
func (s *SQLite) Search(ctx context.Context, q *query.CompiledQuery) (*Result, error) {
	from, size := 0, defaultPageSize
	if q.From != nil {
		from = *q.From
	}
	if q.Size != nil {
		size = *q.Size
	}
	if from < 0 || size < 0 {
		return nil, fmt.Errorf("%w: from and size must not be negative", ErrBadRequest)
	}

	base, baseArgs := textSource(q.Text)
	filter, filterArgs, err := compileExpr(q.Filter)
	if err != nil {
		return nil, err
	}
	post, postArgs, err := compileExpr(q.PostFilter)
	if err != nil {
		return nil, err
	}

	hitsWhere := filter + " AND " + post
	hitsArgs := concatArgs(baseArgs, filterArgs, postArgs)

	res := &Result{Aggregations: make(map[string][]Bucket, len(q.Aggregations))}
	countSQL := "SELECT COUNT(*) FROM " + base + " WHERE " + hitsWhere
	if err := s.db.QueryRowContext(ctx, countSQL, hitsArgs...).Scan(&res.Total); err != nil {
		return nil, s.queryErr("counting hits", err)
	}

	hitsSQL := "SELECT e.id, e.doc FROM " + base + " WHERE " + hitsWhere +
		" ORDER BY score, json_extract(e.doc, '$.creationTime') DESC, e.id LIMIT ? OFFSET ?"
	hits, err := s.queryHits(ctx, hitsSQL, append(hitsArgs, size, from)...)
	if err != nil {
		return nil, err
	}
	res.Hits = hits

	for _, agg := range q.Aggregations {
		buckets, err := s.facet(ctx, agg.Field, base, filter, concatArgs(baseArgs, filterArgs))
		if err != nil {
			return nil, err
		}
		res.Aggregations[agg.Name] = buckets
	}
	return res, nil
}

func (s *SQLite) queryHits(ctx context.Context, stmt string, args ...any) ([]catalog.Hit, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, s.queryErr("querying hits", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Warnf("failed to close rows: %v", err)
		}
	}()

	hits := []catalog.Hit{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hit, err := decodeHit(id, doc)
		if err != nil {
			return nil, err
		}
		hits = append(hits, *hit)
	}
	return hits, rows.Err()
}

func (s *SQLite) facet(ctx context.Context, field, base, where string, args []any) ([]Bucket, error) {
	expr, err := valueExpr(field)
	if err != nil {
		return nil, err
	}
	stmt := "SELECT " + expr + " AS k, COUNT(*) AS c FROM " + base + " WHERE " + where +
		" GROUP BY k HAVING k IS NOT NULL ORDER BY c DESC, k LIMIT ?"
	rows, err := s.db.QueryContext(ctx, stmt, append(args, facetSize)...)
	if err != nil {
		return nil, s.queryErr("computing facet "+field, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Warnf("failed to close rows: %v", err)
		}
	}()

	buckets := []Bucket{}
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, fmt.Errorf("scanning facet %s: %w", field, err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// queryErr classifies a failed search statement. Malformed text queries
// surface from FTS5 as SQL errors and are the caller's fault.
func (s *SQLite) queryErr(what string, err error) error {
	if strings.Contains(err.Error(), "fts5") {
		return fmt.Errorf("%w: %s: %v", ErrBadRequest, what, err)
	}
	s.log.Errorf("%s: %v", what, err)
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, what, err)
}

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", ErrUnavailable, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				s.log.Warnf("failed to rollback transaction: %v", err)
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing: %v", ErrUnavailable, err)
	}
	committed = true
	return nil
}

func decodeHit(id, doc string) (*catalog.Hit, error) {
	hit := &catalog.Hit{ID: id}
	if err := json.Unmarshal([]byte(doc), &hit.Entry); err != nil {
		return nil, fmt.Errorf("decoding entry %s: %w", id, err)
	}
	return hit, nil
}

func concatArgs(groups ...[]any) []any {
	var out []any
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
