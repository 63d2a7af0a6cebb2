package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	sqliteDriverName    = "sqlite3"
	sqliteDSNFormat     = "%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"
	sqliteInMemoryPath  = ":memory:"
	defaultPingTimeout  = 5 * time.Second
	defaultContextName  = "default"
	defaultMaxOpenConns = 4
	sqliteWatchDebounce = 50 * time.Millisecond
	watchReloadTimeout  = 5 * time.Second

	errMessageOpenDatabase    = "error opening storage database"
	errMessagePingDatabase    = "error connecting to storage database"
	errMessageCreateSchema    = "error creating storage schema"
	errMessageBeginTx         = "error starting storage transaction"
	errMessageCommitTx        = "error committing storage transaction"
	errMessageReadValues      = "error reading stored values"
	errMessageWriteValue      = "error writing stored value"
	errMessageCreateWatcher   = "error creating storage watcher"
	errMessageWatchDirectory  = "error watching storage directory"
	errMessageNextRevision    = "error allocating storage revision"
	errMessageInMemoryWatcher = "in-memory databases cannot be watched"

	logMessageWatchError  = "storage watcher error"
	logMessageReloadError = "storage reload failed"
	logFieldPath          = "path"
	logFieldContext       = "context"
)

const storageSchema = `
CREATE TABLE IF NOT EXISTS storage (
    key TEXT PRIMARY KEY,
    value TEXT,
    writer TEXT NOT NULL,
    revision INTEGER NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_storage_revision ON storage(revision);
`

// SQLiteConfig configures a SQLite backed store.
type SQLiteConfig struct {
	// Path is the database file; ":memory:" opens a private database that cannot be watched.
	Path string
	// ContextName identifies the writer so watchers can skip their own writes.
	ContextName  string
	MaxOpenConns int
}

// SQLiteStore persists values in a SQLite table shared by every process opening
// the same file. Removed keys are kept as tombstones so watchers observe them.
type SQLiteStore struct {
	database    *sql.DB
	path        string
	contextName string
	logger      *zap.Logger
	writeMutex  sync.Mutex
}

// OpenSQLite opens or creates the database at config.Path.
func OpenSQLite(ctx context.Context, config SQLiteConfig, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(config.ContextName) == "" {
		config.ContextName = defaultContextName
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = defaultMaxOpenConns
	}

	database, err := sql.Open(sqliteDriverName, fmt.Sprintf(sqliteDSNFormat, config.Path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageOpenDatabase, err)
	}
	if config.Path == sqliteInMemoryPath {
		database.SetMaxOpenConns(1)
	} else {
		database.SetMaxOpenConns(config.MaxOpenConns)
	}

	pingContext, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := database.PingContext(pingContext); err != nil {
		database.Close()
		return nil, fmt.Errorf("%s: %w", errMessagePingDatabase, err)
	}
	if _, err := database.ExecContext(ctx, storageSchema); err != nil {
		database.Close()
		return nil, fmt.Errorf("%s: %w", errMessageCreateSchema, err)
	}

	return &SQLiteStore{
		database:    database,
		path:        config.Path,
		contextName: config.ContextName,
		logger:      logger,
	}, nil
}

// Close releases the database.
func (store *SQLiteStore) Close() error {
	return store.database.Close()
}

// Get returns the stored values of keys.
func (store *SQLiteStore) Get(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	values := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return values, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	arguments := make([]any, len(keys))
	for index, key := range keys {
		arguments[index] = key
	}
	rows, err := store.database.QueryContext(ctx,
		"SELECT key, value FROM storage WHERE value IS NOT NULL AND key IN ("+placeholders+")", arguments...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageReadValues, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("%s: %w", errMessageReadValues, err)
		}
		values[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageReadValues, err)
	}
	return values, nil
}

// Set writes every value in one transaction.
func (store *SQLiteStore) Set(ctx context.Context, values map[string]json.RawMessage) error {
	return store.write(ctx, len(values), func(transaction *sql.Tx, revision int64) error {
		for key, value := range values {
			if err := upsert(ctx, transaction, key, sql.NullString{String: string(value), Valid: value != nil}, store.contextName, revision); err != nil {
				return err
			}
		}
		return nil
	})
}

// Remove replaces keys with tombstones.
func (store *SQLiteStore) Remove(ctx context.Context, keys []string) error {
	return store.write(ctx, len(keys), func(transaction *sql.Tx, revision int64) error {
		for _, key := range keys {
			if err := upsert(ctx, transaction, key, sql.NullString{}, store.contextName, revision); err != nil {
				return err
			}
		}
		return nil
	})
}

func (store *SQLiteStore) write(ctx context.Context, count int, apply func(*sql.Tx, int64) error) error {
	if count == 0 {
		return nil
	}
	store.writeMutex.Lock()
	defer store.writeMutex.Unlock()

	transaction, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageBeginTx, err)
	}
	defer transaction.Rollback()

	var revision int64
	if err := transaction.QueryRowContext(ctx, "SELECT COALESCE(MAX(revision), 0) + 1 FROM storage").Scan(&revision); err != nil {
		return fmt.Errorf("%s: %w", errMessageNextRevision, err)
	}
	if err := apply(transaction, revision); err != nil {
		return err
	}
	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("%s: %w", errMessageCommitTx, err)
	}
	return nil
}

func upsert(ctx context.Context, transaction *sql.Tx, key string, value sql.NullString, writer string, revision int64) error {
	_, err := transaction.ExecContext(ctx, `
        INSERT INTO storage (key, value, writer, revision, updated_at)
        VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(key) DO UPDATE SET
            value = excluded.value,
            writer = excluded.writer,
            revision = excluded.revision,
            updated_at = excluded.updated_at`,
		key, value, writer, revision)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageWriteValue, err)
	}
	return nil
}

// Watch observes the database directory and reports rows written by other
// contexts since the previous check.
func (store *SQLiteStore) Watch(listener Listener) (func(), error) {
	if store.path == sqliteInMemoryPath || store.path == "" {
		return nil, errors.New(errMessageInMemoryWatcher)
	}
	cursor, err := store.newCursor(context.Background())
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageCreateWatcher, err)
	}
	if err := watcher.Add(filepath.Dir(store.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("%s: %w", errMessageWatchDirectory, err)
	}

	watchContext, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		store.watchLoop(watchContext, watcher, cursor, listener)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			watcher.Close()
			<-done
		})
	}, nil
}

func (store *SQLiteStore) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, cursor *revisionCursor, listener Listener) {
	databaseFile := filepath.Base(store.path)
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if strings.HasPrefix(filepath.Base(event.Name), databaseFile) && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				debounce = time.After(sqliteWatchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			store.logger.Warn(logMessageWatchError, zap.String(logFieldPath, store.path), zap.Error(err))
		case <-debounce:
			debounce = nil
			reloadContext, cancel := context.WithTimeout(ctx, watchReloadTimeout)
			changes, err := cursor.advance(reloadContext)
			cancel()
			if err != nil {
				store.logger.Warn(logMessageReloadError, zap.String(logFieldContext, store.contextName), zap.Error(err))
				continue
			}
			notify([]Listener{listener}, changes)
		}
	}
}

// revisionCursor remembers the rows a watcher has seen.
type revisionCursor struct {
	store        *SQLiteStore
	lastRevision int64
	snapshot     map[string]json.RawMessage
}

func (store *SQLiteStore) newCursor(ctx context.Context) (*revisionCursor, error) {
	cursor := &revisionCursor{store: store, snapshot: make(map[string]json.RawMessage)}
	if _, err := cursor.advance(ctx); err != nil {
		return nil, err
	}
	return cursor, nil
}

// advance reads rows newer than the last seen revision and returns the changes
// other contexts made.
func (cursor *revisionCursor) advance(ctx context.Context) (map[string]Change, error) {
	rows, err := cursor.store.database.QueryContext(ctx,
		"SELECT key, value, writer, revision FROM storage WHERE revision > ? ORDER BY revision", cursor.lastRevision)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageReadValues, err)
	}
	defer rows.Close()

	changes := make(map[string]Change)
	for rows.Next() {
		var (
			key      string
			value    sql.NullString
			writer   string
			revision int64
		)
		if err := rows.Scan(&key, &value, &writer, &revision); err != nil {
			return nil, fmt.Errorf("%s: %w", errMessageReadValues, err)
		}
		previous := cursor.snapshot[key]
		var current json.RawMessage
		if value.Valid {
			current = json.RawMessage(value.String)
			cursor.snapshot[key] = current
		} else {
			delete(cursor.snapshot, key)
		}
		cursor.lastRevision = revision
		if writer != cursor.store.contextName {
			changes[key] = Change{OldValue: previous, NewValue: current}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageReadValues, err)
	}
	return changes, nil
}
