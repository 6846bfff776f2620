// Package postgresql implements the document store on PostgreSQL. Every
// index maps to one table of (id, jsonb) rows; archive partitions are plain
// tables created on demand, and alias reads union the live table with its
// partitions, deduplicating by id in favor of the live row.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dukex/flowscope/pkg/store"
	"github.com/dukex/flowscope/pkg/store/sqlbase"
	"github.com/lib/pq"
)

// Store implements store.DocumentStore on top of PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore connects, runs migrations and creates the live index tables.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: database, logger: logger}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	for _, index := range store.LiveIndices() {
		if err := s.EnsureIndex(ctx, index); err != nil {
			return nil, err
		}
	}

	return s, nil
}

var indexNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// tableName maps an index name onto a safe SQL identifier. Index names come
// from package constants plus formatted dates, but the charset is enforced
// anyway because names end up inside DDL.
func tableName(index string) (string, error) {
	if !indexNamePattern.MatchString(index) {
		return "", fmt.Errorf("invalid index name %q", index)
	}

	return "doc_" + strings.ReplaceAll(index, "-", "_"), nil
}

func (s *Store) EnsureIndex(ctx context.Context, index string) error {
	table, err := tableName(index)
	if err != nil {
		return store.NewIndexError("EnsureIndex", index, err)
	}

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		doc JSONB NOT NULL
	)`, table)

	_, err = s.db.ExecContext(ctx, createSQL)
	if err != nil {
		return store.NewIndexError("EnsureIndex", index, err)
	}

	registerSQL := `
		INSERT INTO document_indices (index_name, table_name)
		VALUES ($1, $2)
		ON CONFLICT (index_name) DO NOTHING
	`

	_, err = s.db.ExecContext(ctx, registerSQL, index, table)
	if err != nil {
		return store.NewIndexError("EnsureIndex", index, err)
	}

	return nil
}

func (s *Store) Indices(ctx context.Context, prefix string) ([]string, error) {
	query := `
		SELECT index_name
		FROM document_indices
		WHERE index_name LIKE $1 || '%'
		ORDER BY index_name
	`

	rows, err := s.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list indices: %w", err)
	}

	defer s.closeRows(ctx, rows)

	names := make([]string, 0)

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan index name: %w", err)
		}

		names = append(names, name)
	}

	return names, rows.Err()
}

func (s *Store) BulkUpsert(ctx context.Context, index string, docs []store.Document) error {
	if len(docs) == 0 {
		return nil
	}

	table, err := tableName(index)
	if err != nil {
		return store.NewIndexError("BulkUpsert", index, err)
	}

	transaction, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.NewIndexError("BulkUpsert", index, err)
	}

	upsertSQL := fmt.Sprintf(`
		INSERT INTO %s (id, doc) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc
	`, table)

	for _, doc := range docs {
		_, err := transaction.ExecContext(ctx, upsertSQL, doc.ID, []byte(doc.Source))
		if err != nil {
			_ = transaction.Rollback()

			return store.NewIndexError("BulkUpsert", index, fmt.Errorf("document %s: %w", doc.ID, err))
		}
	}

	if err := transaction.Commit(); err != nil {
		return store.NewIndexError("BulkUpsert", index, err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, target, id string) (*store.Document, error) {
	tables, err := s.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	for _, table := range tables {
		var doc []byte

		query := fmt.Sprintf("SELECT doc FROM %s WHERE id = $1", table)

		err := s.db.QueryRowContext(ctx, query, id).Scan(&doc)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to get document %s from %s: %w", id, table, err)
		}

		return &store.Document{ID: id, Source: doc}, nil
	}

	return nil, store.ErrDocumentNotFound
}

func (s *Store) Search(ctx context.Context, target string, query store.Query) (int64, []store.Document, error) {
	tables, err := s.resolveTarget(ctx, target)
	if err != nil {
		return 0, nil, err
	}

	// Union all partitions, keeping the first occurrence of each id. The
	// live table is ranked first, so a mid-archive duplicate resolves to
	// the live copy.
	selects := make([]string, 0, len(tables))
	for rank, table := range tables {
		selects = append(selects, fmt.Sprintf("SELECT id, doc, %d AS rank FROM %s", rank, table))
	}

	dedup := fmt.Sprintf(`
		SELECT DISTINCT ON (id) id, doc
		FROM (%s) AS unioned
		ORDER BY id, rank
	`, strings.Join(selects, " UNION ALL "))

	where, args := buildConditions(query)

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS d %s", dedup, where)

	var total int64

	err = s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total)
	if err != nil {
		return 0, nil, store.NewIndexError("Search", target, err)
	}

	searchSQL := fmt.Sprintf("SELECT id, doc FROM (%s) AS d %s %s", dedup, where, buildOrderAndPage(query, len(args)))
	if query.Size > 0 {
		args = append(args, query.Size, query.From)
	} else if query.From > 0 {
		args = append(args, query.From)
	}

	rows, err := s.db.QueryContext(ctx, searchSQL, args...)
	if err != nil {
		return 0, nil, store.NewIndexError("Search", target, err)
	}

	defer s.closeRows(ctx, rows)

	docs := make([]store.Document, 0)

	for rows.Next() {
		var (
			id  string
			doc []byte
		)

		if err := rows.Scan(&id, &doc); err != nil {
			return 0, nil, store.NewIndexError("Search", target, err)
		}

		docs = append(docs, store.Document{ID: id, Source: doc})
	}

	return total, docs, rows.Err()
}

func (s *Store) DeleteByIDs(ctx context.Context, index string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	table, err := tableName(index)
	if err != nil {
		return store.NewIndexError("DeleteByIDs", index, err)
	}

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", table)

	_, err = s.db.ExecContext(ctx, deleteSQL, pq.Array(ids))
	if err != nil {
		return store.NewIndexError("DeleteByIDs", index, err)
	}

	return nil
}

func (s *Store) Reindex(ctx context.Context, src, dst string, ids []string) error {
	srcTable, err := tableName(src)
	if err != nil {
		return store.NewIndexError("Reindex", src, err)
	}

	if err := s.EnsureIndex(ctx, dst); err != nil {
		return err
	}

	dstTable, err := tableName(dst)
	if err != nil {
		return store.NewIndexError("Reindex", dst, err)
	}

	copySQL := fmt.Sprintf(`
		INSERT INTO %s (id, doc)
		SELECT id, doc FROM %s WHERE id = ANY($1)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc
	`, dstTable, srcTable)

	_, err = s.db.ExecContext(ctx, copySQL, pq.Array(ids))
	if err != nil {
		return store.NewIndexError("Reindex", src, err)
	}

	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// resolveTarget expands an alias into the live table followed by its archive
// partition tables, using the registry so dropped partitions never 404.
func (s *Store) resolveTarget(ctx context.Context, target string) ([]string, error) {
	base, isAlias := strings.CutSuffix(target, "*")
	if !isAlias {
		table, err := tableName(target)
		if err != nil {
			return nil, store.NewIndexError("Search", target, err)
		}

		return []string{table}, nil
	}

	indices, err := s.Indices(ctx, base)
	if err != nil {
		return nil, err
	}

	tables := make([]string, 0, len(indices))

	// Live table first.
	for _, index := range indices {
		if index == base {
			table, _ := tableName(index)
			tables = append(tables, table)
		}
	}

	for _, index := range indices {
		if index != base {
			table, err := tableName(index)
			if err != nil {
				continue
			}

			tables = append(tables, table)
		}
	}

	if len(tables) == 0 {
		return nil, store.NewIndexError("Search", target, store.ErrIndexNotFound)
	}

	return tables, nil
}

func buildConditions(query store.Query) (string, []any) {
	conditions := make([]string, 0)
	args := make([]any, 0)

	placeholder := func() string {
		return fmt.Sprintf("$%d", len(args))
	}

	for field, want := range query.Terms {
		switch want := want.(type) {
		case []any:
			values := make([]string, 0, len(want))
			for _, v := range want {
				values = append(values, fmt.Sprintf("%v", v))
			}

			args = append(args, pq.Array(values))
			conditions = append(conditions, fmt.Sprintf("d.doc->>'%s' = ANY(%s)", field, placeholder()))
		default:
			args = append(args, fmt.Sprintf("%v", want))
			conditions = append(conditions, fmt.Sprintf("d.doc->>'%s' = %s", field, placeholder()))
		}
	}

	if query.IDs != nil {
		args = append(args, pq.Array(query.IDs))
		conditions = append(conditions, fmt.Sprintf("d.id = ANY(%s)", placeholder()))
	}

	if query.EndDateBefore != nil {
		args = append(args, *query.EndDateBefore)
		conditions = append(conditions, fmt.Sprintf(
			"d.doc->>'end_date' IS NOT NULL AND (d.doc->>'end_date')::timestamptz < %s", placeholder()))
	}

	if len(conditions) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

func buildOrderAndPage(query store.Query, argCount int) string {
	orders := make([]string, 0, len(query.Sorts)+1)

	for _, s := range query.Sorts {
		direction := "ASC"
		if s.Order == store.SortDesc {
			direction = "DESC"
		}

		orders = append(orders, fmt.Sprintf("d.doc->>'%s' %s", s.Field, direction))
	}

	orders = append(orders, "d.id ASC")
	clause := "ORDER BY " + strings.Join(orders, ", ")

	if query.Size > 0 {
		clause += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount+1, argCount+2)
	} else if query.From > 0 {
		clause += fmt.Sprintf(" OFFSET $%d", argCount+1)
	}

	return clause
}

func (s *Store) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
