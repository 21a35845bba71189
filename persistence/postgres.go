package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx database/sql driver
	"go.uber.org/zap"
)

// PostgresAdapter is the durable backend. It owns no state itself; the
// database is authoritative. Setup runs the migration sequence before the
// adapter serves any call.
type PostgresAdapter struct {
	db     *sql.DB
	config Config
	logger *zap.Logger
}

// NewPostgresAdapter opens a connection pool against the configured
// database URL.
func NewPostgresAdapter(config Config, logger *zap.Logger) (*PostgresAdapter, error) {
	db, err := sql.Open("pgx", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrStorage, err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	return newPostgresAdapterWithDB(db, config, logger), nil
}

func newPostgresAdapterWithDB(db *sql.DB, config Config, logger *zap.Logger) *PostgresAdapter {
	return &PostgresAdapter{
		db:     db,
		config: config,
		logger: logger.With(zap.String("component", "postgres_adapter")),
	}
}

// Setup verifies connectivity and applies pending schema migrations. A
// migration failure halts initialization; the adapter must not serve
// against a partially migrated schema.
func (a *PostgresAdapter) Setup(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: pinging database: %v", ErrStorage, err)
	}
	if err := NewMigrationRunner(a.db, a.logger).Apply(ctx); err != nil {
		return err
	}
	a.logger.Info("postgres adapter ready")
	return nil
}

func (a *PostgresAdapter) Start(ctx context.Context) error { return nil }

func (a *PostgresAdapter) Stop(ctx context.Context) error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("%w: closing database: %v", ErrStorage, err)
	}
	return nil
}

// storageErr translates engine failures into the error taxonomy. Unique
// constraint violations become ErrAlreadyExists.
func storageErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, op)
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// checkpointPayload is the on-disk encoding of the opaque checkpoint
// payload plus the channel-version map naming its blob rows.
type checkpointPayload struct {
	Data            json.RawMessage   `json:"data"`
	ChannelVersions map[string]string `json:"channel_versions,omitempty"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func orEmptyJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}

// Checkpoint capability.

func (a *PostgresAdapter) PutCheckpoint(ctx context.Context, tuple CheckpointTuple) error {
	if tuple.ThreadID == "" || tuple.CheckpointID == "" {
		return fmt.Errorf("%w: checkpoint requires thread_id and checkpoint_id", ErrInvalidInput)
	}

	payload, err := json.Marshal(checkpointPayload{
		Data:            orEmptyJSON(tuple.Checkpoint.Checkpoint),
		ChannelVersions: tuple.ChannelVersions,
	})
	if err != nil {
		return fmt.Errorf("%w: encoding checkpoint: %v", ErrStorage, err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("put checkpoint", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id, run_id, type, checkpoint, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (thread_id, checkpoint_ns, checkpoint_id)
		DO UPDATE SET parent_checkpoint_id = EXCLUDED.parent_checkpoint_id,
			run_id = EXCLUDED.run_id,
			type = EXCLUDED.type,
			checkpoint = EXCLUDED.checkpoint,
			metadata = EXCLUDED.metadata`,
		tuple.ThreadID, tuple.CheckpointNS, tuple.CheckpointID,
		nullString(tuple.ParentCheckpointID), nullString(tuple.RunID), nullString(tuple.Type),
		payload, orEmptyJSON(tuple.Metadata),
	)
	if err != nil {
		return storageErr("put checkpoint", err)
	}

	for _, b := range tuple.Blobs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO checkpoint_blobs (thread_id, checkpoint_ns, channel, version, type, blob)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (thread_id, checkpoint_ns, channel, version)
			DO UPDATE SET type = EXCLUDED.type, blob = EXCLUDED.blob`,
			b.ThreadID, b.CheckpointNS, b.Channel, b.Version, b.Type, b.Blob,
		)
		if err != nil {
			return storageErr("put checkpoint blob", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("put checkpoint", err)
	}
	return nil
}

func (a *PostgresAdapter) PutWrites(ctx context.Context, writes []CheckpointWrite) error {
	if len(writes) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("put writes", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, w := range writes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO checkpoint_writes (thread_id, checkpoint_ns, checkpoint_id, task_id, idx, channel, type, blob)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (thread_id, checkpoint_ns, checkpoint_id, task_id, idx)
			DO UPDATE SET channel = EXCLUDED.channel, type = EXCLUDED.type, blob = EXCLUDED.blob`,
			w.ThreadID, w.CheckpointNS, w.CheckpointID, w.TaskID, w.Idx, w.Channel, w.Type, w.Blob,
		)
		if err != nil {
			return storageErr("put writes", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("put writes", err)
	}
	return nil
}

func (a *PostgresAdapter) GetTuple(ctx context.Context, ref CheckpointRef) (*CheckpointTuple, error) {
	query := `
		SELECT thread_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id, run_id, type, checkpoint, metadata
		FROM checkpoints
		WHERE thread_id = $1 AND checkpoint_ns = $2`
	args := []any{ref.ThreadID, ref.CheckpointNS}
	if ref.CheckpointID != "" {
		query += ` AND checkpoint_id = $3`
		args = append(args, ref.CheckpointID)
	} else {
		query += ` ORDER BY checkpoint_id DESC LIMIT 1`
	}

	cp, err := scanCheckpoint(a.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get checkpoint", err)
	}

	tuple := CheckpointTuple{Checkpoint: cp}
	if err := a.attachBlobsAndWrites(ctx, &tuple); err != nil {
		return nil, err
	}
	return &tuple, nil
}

func (a *PostgresAdapter) ListCheckpoints(ctx context.Context, ref CheckpointRef) ([]CheckpointTuple, error) {
	query := `
		SELECT thread_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id, run_id, type, checkpoint, metadata
		FROM checkpoints
		WHERE thread_id = $1 AND checkpoint_ns = $2`
	args := []any{ref.ThreadID, ref.CheckpointNS}
	if ref.Before != "" {
		args = append(args, ref.Before)
		query += fmt.Sprintf(` AND checkpoint_id < $%d`, len(args))
	}
	query += ` ORDER BY checkpoint_id DESC`
	if ref.Limit > 0 {
		args = append(args, ref.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list checkpoints", err)
	}
	defer rows.Close()

	var tuples []CheckpointTuple
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, storageErr("list checkpoints", err)
		}
		tuples = append(tuples, CheckpointTuple{Checkpoint: cp})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list checkpoints", err)
	}

	for i := range tuples {
		if err := a.attachBlobsAndWrites(ctx, &tuples[i]); err != nil {
			return nil, err
		}
	}
	return tuples, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (Checkpoint, error) {
	var cp Checkpoint
	var parent, runID, typ sql.NullString
	var payload, metadata []byte
	if err := row.Scan(&cp.ThreadID, &cp.CheckpointNS, &cp.CheckpointID, &parent, &runID, &typ, &payload, &metadata); err != nil {
		return Checkpoint{}, err
	}
	cp.ParentCheckpointID = parent.String
	cp.RunID = runID.String
	cp.Type = typ.String
	cp.Metadata = metadata

	var decoded checkpointPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Checkpoint{}, fmt.Errorf("decoding checkpoint payload: %w", err)
	}
	cp.Checkpoint = decoded.Data
	cp.ChannelVersions = decoded.ChannelVersions
	return cp, nil
}

func (a *PostgresAdapter) attachBlobsAndWrites(ctx context.Context, tuple *CheckpointTuple) error {
	if len(tuple.ChannelVersions) > 0 {
		rows, err := a.db.QueryContext(ctx, `
			SELECT channel, version, type, blob
			FROM checkpoint_blobs
			WHERE thread_id = $1 AND checkpoint_ns = $2
			ORDER BY channel, version`,
			tuple.ThreadID, tuple.CheckpointNS,
		)
		if err != nil {
			return storageErr("get checkpoint blobs", err)
		}
		defer rows.Close()

		for rows.Next() {
			b := CheckpointBlob{ThreadID: tuple.ThreadID, CheckpointNS: tuple.CheckpointNS}
			if err := rows.Scan(&b.Channel, &b.Version, &b.Type, &b.Blob); err != nil {
				return storageErr("get checkpoint blobs", err)
			}
			if tuple.ChannelVersions[b.Channel] == b.Version {
				tuple.Blobs = append(tuple.Blobs, b)
			}
		}
		if err := rows.Err(); err != nil {
			return storageErr("get checkpoint blobs", err)
		}
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT task_id, idx, channel, type, blob
		FROM checkpoint_writes
		WHERE thread_id = $1 AND checkpoint_ns = $2 AND checkpoint_id = $3
		ORDER BY task_id, idx`,
		tuple.ThreadID, tuple.CheckpointNS, tuple.CheckpointID,
	)
	if err != nil {
		return storageErr("get checkpoint writes", err)
	}
	defer rows.Close()

	for rows.Next() {
		w := CheckpointWrite{
			ThreadID:     tuple.ThreadID,
			CheckpointNS: tuple.CheckpointNS,
			CheckpointID: tuple.CheckpointID,
		}
		var typ sql.NullString
		if err := rows.Scan(&w.TaskID, &w.Idx, &w.Channel, &typ, &w.Blob); err != nil {
			return storageErr("get checkpoint writes", err)
		}
		w.Type = typ.String
		tuple.Writes = append(tuple.Writes, w)
	}
	return rows.Err()
}

func (a *PostgresAdapter) DeleteCheckpoints(ctx context.Context, threadID, runID string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("delete checkpoints", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if runID == "" {
		statements := []string{
			`DELETE FROM checkpoint_writes WHERE thread_id = $1`,
			`DELETE FROM checkpoint_blobs WHERE thread_id = $1`,
			`DELETE FROM checkpoints WHERE thread_id = $1`,
		}
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt, threadID); err != nil {
				return storageErr("delete checkpoints", err)
			}
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM checkpoint_writes
			WHERE thread_id = $1 AND checkpoint_id IN (
				SELECT checkpoint_id FROM checkpoints WHERE thread_id = $1 AND run_id = $2
			)`, threadID, runID)
		if err != nil {
			return storageErr("delete checkpoints", err)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = $1 AND run_id = $2`, threadID, runID)
		if err != nil {
			return storageErr("delete checkpoints", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("delete checkpoints", err)
	}
	return nil
}

func (a *PostgresAdapter) CopyCheckpoints(ctx context.Context, srcThreadID, dstThreadID string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("copy checkpoints", err)
	}
	defer tx.Rollback() //nolint:errcheck

	statements := []string{
		`INSERT INTO checkpoints (thread_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id, run_id, type, checkpoint, metadata)
		SELECT $2, checkpoint_ns, checkpoint_id, parent_checkpoint_id, run_id, type, checkpoint, metadata
		FROM checkpoints WHERE thread_id = $1
		ON CONFLICT DO NOTHING`,
		`INSERT INTO checkpoint_blobs (thread_id, checkpoint_ns, channel, version, type, blob)
		SELECT $2, checkpoint_ns, channel, version, type, blob
		FROM checkpoint_blobs WHERE thread_id = $1
		ON CONFLICT DO NOTHING`,
		`INSERT INTO checkpoint_writes (thread_id, checkpoint_ns, checkpoint_id, task_id, idx, channel, type, blob)
		SELECT $2, checkpoint_ns, checkpoint_id, task_id, idx, channel, type, blob
		FROM checkpoint_writes WHERE thread_id = $1
		ON CONFLICT DO NOTHING`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, srcThreadID, dstThreadID); err != nil {
			return storageErr("copy checkpoints", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("copy checkpoints", err)
	}
	return nil
}

func (a *PostgresAdapter) ClearCheckpoints(ctx context.Context) error {
	for _, stmt := range []string{
		`DELETE FROM checkpoint_writes`,
		`DELETE FROM checkpoint_blobs`,
		`DELETE FROM checkpoints`,
	} {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return storageErr("clear checkpoints", err)
		}
	}
	return nil
}

// Store capability.

func (a *PostgresAdapter) GetItem(ctx context.Context, namespace []string, key string) (*StoreItem, error) {
	return getItemWith(ctx, a.db, namespace, key)
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getItemWith(ctx context.Context, q queryer, namespace []string, key string) (*StoreItem, error) {
	item := StoreItem{Namespace: append([]string(nil), namespace...), Key: key}
	var value, embedding []byte
	err := q.QueryRowContext(ctx, `
		SELECT value, embedding, created_at, updated_at
		FROM store_items WHERE prefix = $1 AND key = $2`,
		joinNamespace(namespace), key,
	).Scan(&value, &embedding, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get item", err)
	}

	item.Value = value
	if len(embedding) > 0 {
		if err := json.Unmarshal(embedding, &item.Embedding); err != nil {
			return nil, fmt.Errorf("%w: decoding embedding: %v", ErrStorage, err)
		}
	}
	return &item, nil
}

func (a *PostgresAdapter) PutItem(ctx context.Context, item StoreItem, opts PutItemOptions) error {
	return putItemWith(ctx, a.db, item, opts)
}

func putItemWith(ctx context.Context, q queryer, item StoreItem, opts PutItemOptions) error {
	if err := validateNamespace(item.Namespace); err != nil {
		return err
	}
	if item.Key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidInput)
	}

	var embedding any
	if len(item.Embedding) > 0 {
		data, err := json.Marshal(item.Embedding)
		if err != nil {
			return fmt.Errorf("%w: encoding embedding: %v", ErrStorage, err)
		}
		embedding = data
	}

	if opts.IfNotExists {
		res, err := q.ExecContext(ctx, `
			INSERT INTO store_items (prefix, key, value, embedding, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW())
			ON CONFLICT (prefix, key) DO NOTHING`,
			joinNamespace(item.Namespace), item.Key, orEmptyJSON(item.Value), embedding,
		)
		if err != nil {
			return storageErr("put item", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return storageErr("put item", err)
		}
		if affected == 0 {
			return ErrAlreadyExists
		}
		return nil
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO store_items (prefix, key, value, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (prefix, key)
		DO UPDATE SET value = EXCLUDED.value, embedding = EXCLUDED.embedding, updated_at = NOW()`,
		joinNamespace(item.Namespace), item.Key, orEmptyJSON(item.Value), embedding,
	)
	if err != nil {
		return storageErr("put item", err)
	}
	return nil
}

func (a *PostgresAdapter) DeleteItem(ctx context.Context, namespace []string, key string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM store_items WHERE prefix = $1 AND key = $2`,
		joinNamespace(namespace), key)
	if err != nil {
		return storageErr("delete item", err)
	}
	return nil
}

// prefixCondition matches a prefix and everything below it. An empty
// prefix matches all rows.
func prefixCondition(prefix []string, argIndex int) (string, []any) {
	if len(prefix) == 0 {
		return "TRUE", nil
	}
	joined := joinNamespace(prefix)
	cond := fmt.Sprintf("(prefix = $%d OR prefix LIKE $%d || '.%%')", argIndex, argIndex)
	return cond, []any{joined}
}

func (a *PostgresAdapter) SearchItems(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	cond, args := prefixCondition(q.NamespacePrefix, 1)
	rows, err := a.db.QueryContext(ctx, `
		SELECT prefix, key, value, embedding, created_at, updated_at
		FROM store_items WHERE `+cond, args...)
	if err != nil {
		return nil, storageErr("search items", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var prefix string
		var value, embedding []byte
		item := StoreItem{}
		if err := rows.Scan(&prefix, &item.Key, &value, &embedding, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, storageErr("search items", err)
		}
		item.Namespace = splitNamespace(prefix)
		item.Value = value
		if len(embedding) > 0 {
			if err := json.Unmarshal(embedding, &item.Embedding); err != nil {
				return nil, fmt.Errorf("%w: decoding embedding: %v", ErrStorage, err)
			}
		}
		if !matchesFilter(item.Value, q.Filter) {
			continue
		}
		res := SearchResult{Item: item}
		if len(q.QueryVector) > 0 {
			res.Score = cosineSimilarity(q.QueryVector, item.Embedding)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("search items", err)
	}

	sortSearchResults(results, len(q.QueryVector) > 0)
	return pageSearchResults(results, q.Offset, q.Limit), nil
}

func (a *PostgresAdapter) ListNamespaces(ctx context.Context, prefix []string, maxDepth, limit int) ([][]string, error) {
	cond, args := prefixCondition(prefix, 1)
	rows, err := a.db.QueryContext(ctx, `SELECT DISTINCT prefix FROM store_items WHERE `+cond+` ORDER BY prefix`, args...)
	if err != nil {
		return nil, storageErr("list namespaces", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var namespaces [][]string
	for rows.Next() {
		var joined string
		if err := rows.Scan(&joined); err != nil {
			return nil, storageErr("list namespaces", err)
		}
		ns := splitNamespace(joined)
		if maxDepth > 0 && len(ns) > maxDepth {
			ns = ns[:maxDepth]
		}
		key := joinNamespace(ns)
		if seen[key] {
			continue
		}
		seen[key] = true
		namespaces = append(namespaces, ns)
		if limit > 0 && len(namespaces) == limit {
			break
		}
	}
	return namespaces, rows.Err()
}

func (a *PostgresAdapter) ClearNamespace(ctx context.Context, prefix []string) error {
	cond, args := prefixCondition(prefix, 1)
	if _, err := a.db.ExecContext(ctx, `DELETE FROM store_items WHERE `+cond, args...); err != nil {
		return storageErr("clear namespace", err)
	}
	return nil
}

func (a *PostgresAdapter) Batch(ctx context.Context, ops []BatchOp) ([]BatchResult, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("batch", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Each op runs under its own savepoint: a failed statement aborts the
	// surrounding transaction, and rolling back to the savepoint lets the
	// remaining ops still execute, matching op-by-op semantics.
	results := make([]BatchResult, len(ops))
	for i, op := range ops {
		savepoint := fmt.Sprintf("batch_op_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			return nil, storageErr("batch", err)
		}
		switch op.Kind {
		case BatchGet:
			item, err := getItemWith(ctx, tx, op.Namespace, op.Key)
			results[i] = BatchResult{Item: item, Err: err}
		case BatchPut:
			if op.Item == nil {
				results[i] = BatchResult{Err: fmt.Errorf("%w: put without item", ErrInvalidInput)}
				continue
			}
			results[i] = BatchResult{Err: putItemWith(ctx, tx, *op.Item, PutItemOptions{})}
		case BatchDelete:
			_, err := tx.ExecContext(ctx, `DELETE FROM store_items WHERE prefix = $1 AND key = $2`,
				joinNamespace(op.Namespace), op.Key)
			if err != nil {
				results[i] = BatchResult{Err: storageErr("batch delete", err)}
				continue
			}
			results[i] = BatchResult{}
		default:
			results[i] = BatchResult{Err: fmt.Errorf("%w: unknown batch op %q", ErrInvalidInput, op.Kind)}
		}
		if results[i].Err != nil {
			if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); err != nil {
				return nil, storageErr("batch", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("batch", err)
	}
	return results, nil
}

func (a *PostgresAdapter) ClearStore(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM store_items`); err != nil {
		return storageErr("clear store", err)
	}
	return nil
}
