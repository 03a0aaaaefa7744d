package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/lib/pq"              // registers the "postgres" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver
	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-odm/internal/orm/codec"
	"github.com/conduit-lang/conduit-odm/internal/orm/query"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

// Dialect captures the column types that differ between databases
type Dialect struct {
	Name     string
	BlobType string
	IntType  string
}

var (
	// SQLite is the dialect for mattn/go-sqlite3
	SQLite = Dialect{Name: "sqlite3", BlobType: "BLOB", IntType: "INTEGER"}
	// Postgres is the dialect for pgx and lib/pq
	Postgres = Dialect{Name: "postgres", BlobType: "BYTEA", IntType: "BIGINT"}
)

// DialectFor returns the dialect of a database/sql driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3":
		return SQLite, nil
	case "pgx", "postgres":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

// SQLStore persists snapshots as bson documents in a relational database.
// Unique index keys live in a side table whose primary key backs the
// uniqueness guarantee.
type SQLStore struct {
	db       *sql.DB
	registry *schema.Registry
	dialect  Dialect
	retry    *RetryConfig
	logger   *zap.Logger
}

// SQLStoreOption configures an SQLStore
type SQLStoreOption func(*SQLStore)

// WithDialect sets the SQL dialect
func WithDialect(d Dialect) SQLStoreOption {
	return func(s *SQLStore) {
		s.dialect = d
	}
}

// WithRetry sets the retry policy for write transactions
func WithRetry(config *RetryConfig) SQLStoreOption {
	return func(s *SQLStore) {
		s.retry = config
	}
}

// WithLogger sets the store's logger
func WithLogger(logger *zap.Logger) SQLStoreOption {
	return func(s *SQLStore) {
		s.logger = logger
	}
}

// NewSQLStore creates a store over an open database
func NewSQLStore(db *sql.DB, registry *schema.Registry, opts ...SQLStoreOption) *SQLStore {
	s := &SQLStore{
		db:       db,
		registry: registry,
		dialect:  SQLite,
		retry:    DefaultRetryConfig(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens a database with the named driver and creates a store over it
func Open(driver, dsn string, registry *schema.Registry, opts ...SQLStoreOption) (*SQLStore, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return NewSQLStore(db, registry, append([]SQLStoreOption{WithDialect(dialect)}, opts...)...), nil
}

// DB returns the underlying database handle
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates the store's tables if they do not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS odm_documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	type TEXT NOT NULL,
	body %s NOT NULL,
	position %s NOT NULL,
	PRIMARY KEY (collection, id)
)`, s.dialect.BlobType, s.dialect.IntType),
		`CREATE TABLE IF NOT EXISTS odm_unique_keys (
	collection TEXT NOT NULL,
	index_name TEXT NOT NULL,
	value_key TEXT NOT NULL,
	id TEXT NOT NULL,
	PRIMARY KEY (collection, index_name, value_key)
)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate storage tables: %w", err)
		}
	}
	return nil
}

const (
	sqlReleaseKeys = `DELETE FROM odm_unique_keys WHERE collection = $1 AND id = $2`
	sqlKeyOwner    = `SELECT id FROM odm_unique_keys WHERE collection = $1 AND index_name = $2 AND value_key = $3`
	sqlInsertKey   = `INSERT INTO odm_unique_keys (collection, index_name, value_key, id) VALUES ($1, $2, $3, $4)`
	sqlUpsertDoc   = `INSERT INTO odm_documents (collection, id, type, body, position)
VALUES ($1, $2, $3, $4, (SELECT COALESCE(MAX(position), 0) + 1 FROM odm_documents WHERE collection = $1))
ON CONFLICT (collection, id) DO UPDATE SET type = excluded.type, body = excluded.body`
	sqlDeleteDoc = `DELETE FROM odm_documents WHERE collection = $1 AND id = $2`
)

// Persist implements Store
func (s *SQLStore) Persist(ctx context.Context, typeName string, snapshot Snapshot) (string, error) {
	id, err := identity(snapshot)
	if err != nil {
		return "", err
	}
	typ, err := resolveType(s.registry, typeName, snapshot)
	if err != nil {
		return "", err
	}
	body, err := codec.Encode(snapshot)
	if err != nil {
		return "", err
	}
	collection := typ.Collection()
	keys := uniqueKeys(typ, snapshot)

	err = withRetry(ctx, s.db, s.retry, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sqlReleaseKeys, collection, id); err != nil {
			return err
		}
		for _, key := range keys {
			var owner string
			err := tx.QueryRowContext(ctx, sqlKeyOwner, collection, key.index.Name(), key.value).Scan(&owner)
			switch {
			case err == sql.ErrNoRows:
			case err != nil:
				return err
			default:
				return &UniqueConstraintViolation{
					Collection: collection,
					Index:      key.index.Name(),
					Fields:     key.index.Fields(),
					Value:      key.value,
					ExistingID: owner,
				}
			}
			if _, err := tx.ExecContext(ctx, sqlInsertKey, collection, key.index.Name(), key.value, id); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, sqlUpsertDoc, collection, id, typ.Name, body)
		return err
	})
	if err != nil {
		return "", ConvertDBError(err)
	}

	s.logger.Debug("persisted document",
		zap.String("collection", collection),
		zap.String("type", typ.Name),
		zap.String("id", id))
	return id, nil
}

// Remove implements Store
func (s *SQLStore) Remove(ctx context.Context, typeName, id string) error {
	typ, err := s.registry.Lookup(typeName)
	if err != nil {
		return err
	}
	collection := typ.Collection()

	err = withRetry(ctx, s.db, s.retry, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, sqlDeleteDoc, collection, id)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s %s", ErrNotFound, typeName, id)
		}
		_, err = tx.ExecContext(ctx, sqlReleaseKeys, collection, id)
		return err
	})
	if err != nil {
		return ConvertDBError(err)
	}

	s.logger.Debug("removed document",
		zap.String("collection", collection),
		zap.String("id", id))
	return nil
}

// Query implements Store. The statement runs each time the sequence is
// ranged over; criteria are evaluated on the decoded documents.
func (s *SQLStore) Query(ctx context.Context, typeName string, criteria *query.Criteria) (Sequence, error) {
	typ, err := s.registry.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	types := s.registry.Descendants(typeName)

	args := []interface{}{typ.Collection()}
	placeholders := make([]string, len(types))
	for i, name := range types {
		args = append(args, name)
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}
	stmt := fmt.Sprintf(
		"SELECT body FROM odm_documents WHERE collection = $1 AND type IN (%s) ORDER BY position",
		strings.Join(placeholders, ", "))

	return func(yield func(Snapshot, error) bool) {
		matched, err := s.scan(ctx, stmt, args, criteria)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, doc := range matched {
			if !yield(doc, nil) {
				return
			}
		}
	}, nil
}

func (s *SQLStore) scan(ctx context.Context, stmt string, args []interface{}, criteria *query.Criteria) ([]map[string]interface{}, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	var matched []map[string]interface{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		doc, err := codec.Decode(body)
		if err != nil {
			return nil, err
		}
		if criteria == nil || criteria.Matches(doc) {
			matched = append(matched, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if criteria != nil {
		matched = criteria.Window(matched)
	}
	return matched, nil
}
