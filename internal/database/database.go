package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"decryptrecovery/internal/constants"
	"decryptrecovery/internal/migrations"
	"decryptrecovery/internal/models"
	"decryptrecovery/internal/security"

	"github.com/gofrs/uuid/v5"
	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(cfg models.DatabaseConfig) (*Database, error) {
	dbPath := cfg.Path
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	if err := security.ValidateDatabasePath(dbPath); err != nil {
		return nil, err
	}

	if dbPath != security.MemoryDatabase {
		file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600) // #nosec G304 - path validated above
		if err != nil {
			return nil, fmt.Errorf("failed to create database file: %w", err)
		}
		if err := file.Close(); err != nil {
			return nil, fmt.Errorf("failed to close database file: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; compare-and-set updates rely on serialized statements.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := migrations.Apply(context.Background(), db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := newEncryptor(cfg)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func dsn(path string) string {
	params := fmt.Sprintf("_busy_timeout=%d&_foreign_keys=on", constants.DefaultDatabaseBusyTimeoutMs)
	if path == security.MemoryDatabase {
		return "file::memory:?" + params
	}
	return "file:" + path + "?" + params + "&_journal_mode=WAL"
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping reports whether the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// EnsureThread returns the thread for a peer or group, creating it on first use.
func (d *Database) EnsureThread(ctx context.Context, peer, groupID string) (*models.Thread, error) {
	if groupID != "" {
		// Group threads are keyed by the group alone.
		peer = ""
	}
	if peer == "" && groupID == "" {
		return nil, fmt.Errorf("thread requires a peer or a group")
	}

	peerHash := d.encryptor.LookupHash(peer)
	groupHash := d.encryptor.LookupHash(groupID)

	if thread, err := d.threadByKey(ctx, peerHash, groupHash); err != nil || thread != nil {
		return thread, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate thread id: %w", err)
	}
	encryptedPeer, err := d.encryptor.Encrypt(peer)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt peer: %w", err)
	}
	encryptedGroup, err := d.encryptor.Encrypt(groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt group ID: %w", err)
	}

	err = retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertThreadIfAbsentQuery,
			id.String(), encryptedPeer, peerHash, encryptedGroup, groupHash, time.Now().UnixNano())
		return err
	}, "insert thread")
	if err != nil {
		return nil, fmt.Errorf("failed to save thread: %w", err)
	}

	thread, err := d.threadByKey(ctx, peerHash, groupHash)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, fmt.Errorf("thread missing after insert")
	}
	return thread, nil
}

func (d *Database) threadByKey(ctx context.Context, peerHash, groupHash string) (*models.Thread, error) {
	return d.scanThread(d.db.QueryRowContext(ctx, SelectThreadByKeyQuery, peerHash, groupHash))
}

// GetThread returns nil, nil when the thread does not exist.
func (d *Database) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	return d.scanThread(d.db.QueryRowContext(ctx, SelectThreadByIDQuery, id))
}

func (d *Database) scanThread(row *sql.Row) (*models.Thread, error) {
	var thread models.Thread
	var encryptedPeer, encryptedGroup string
	var createdAt int64

	err := row.Scan(&thread.ID, &encryptedPeer, &encryptedGroup, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	if thread.Peer, err = d.encryptor.Decrypt(encryptedPeer); err != nil {
		return nil, fmt.Errorf("failed to decrypt peer: %w", err)
	}
	if thread.GroupID, err = d.encryptor.Decrypt(encryptedGroup); err != nil {
		return nil, fmt.Errorf("failed to decrypt group ID: %w", err)
	}
	thread.CreatedAt = fromNanos(createdAt)
	return &thread, nil
}

// InsertPlaceholder persists a freshly created pending placeholder.
func (d *Database) InsertPlaceholder(ctx context.Context, p *models.Placeholder) error {
	if p.Eligibility() != models.EligibilityPending {
		return fmt.Errorf("only pending placeholders can be inserted, got %s", p.Eligibility())
	}

	encryptedSender, err := d.encryptor.Encrypt(p.Sender())
	if err != nil {
		return fmt.Errorf("failed to encrypt sender: %w", err)
	}
	encryptedGroup, err := d.encryptor.Encrypt(p.GroupID())
	if err != nil {
		return fmt.Errorf("failed to encrypt group ID: %w", err)
	}

	err = retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertPlaceholderQuery,
			p.ID(),
			p.ThreadID(),
			encryptedSender,
			d.encryptor.LookupHash(p.Sender()),
			encryptedGroup,
			d.encryptor.LookupHash(p.GroupID()),
			p.OriginalTimestamp(),
			p.CreatedAt().UnixNano(),
			p.ExpiresAt().UnixNano(),
			string(p.Eligibility()),
			p.Version(),
			p.FailureReason(),
		)
		return err
	}, "insert placeholder")
	if err != nil {
		return fmt.Errorf("failed to save placeholder: %w", err)
	}
	return nil
}

// GetPlaceholder returns nil, nil when the placeholder does not exist.
func (d *Database) GetPlaceholder(ctx context.Context, id string) (*models.Placeholder, error) {
	rows, err := d.db.QueryContext(ctx, SelectPlaceholderByIDQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get placeholder: %w", err)
	}
	list, err := d.scanPlaceholders(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// FindPlaceholdersByKey returns every placeholder with the match key, in any
// state, earliest-created first.
func (d *Database) FindPlaceholdersByKey(ctx context.Context, key models.MatchKey) ([]*models.Placeholder, error) {
	rows, err := d.db.QueryContext(ctx, SelectPlaceholdersByKeyQuery,
		d.encryptor.LookupHash(key.Sender),
		d.encryptor.LookupHash(key.GroupID),
		key.OriginalTimestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find placeholders: %w", err)
	}
	return d.scanPlaceholders(rows)
}

// ListThreadPlaceholders returns every placeholder in a thread.
func (d *Database) ListThreadPlaceholders(ctx context.Context, threadID string) ([]*models.Placeholder, error) {
	rows, err := d.db.QueryContext(ctx, SelectThreadPlaceholdersQuery, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread placeholders: %w", err)
	}
	return d.scanPlaceholders(rows)
}

// ListExpirablePlaceholders returns up to limit pending placeholders whose
// deadline is at or before now, oldest deadline first.
func (d *Database) ListExpirablePlaceholders(ctx context.Context, now time.Time, limit int) ([]*models.Placeholder, error) {
	rows, err := d.db.QueryContext(ctx, SelectExpirablePlaceholdersQuery, now.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expirable placeholders: %w", err)
	}
	return d.scanPlaceholders(rows)
}

// CountPendingPlaceholders returns the number of placeholders still pending.
func (d *Database) CountPendingPlaceholders(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, CountPendingPlaceholdersQuery).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending placeholders: %w", err)
	}
	return count, nil
}

// CompareAndReplace moves a placeholder from pending to replaced if it is
// still at version and its deadline is after at. It reports whether this
// call performed the transition.
func (d *Database) CompareAndReplace(ctx context.Context, id string, version int64, body string, at time.Time) (bool, error) {
	encryptedBody, err := d.encryptor.Encrypt(body)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt body: %w", err)
	}
	return d.compareAndSet(ctx, "replace placeholder", ReplacePlaceholderQuery,
		encryptedBody, at.UnixNano(), id, version, at.UnixNano())
}

// CompareAndExpire moves a placeholder from pending to expired if it is still
// at version and its deadline is at or before at.
func (d *Database) CompareAndExpire(ctx context.Context, id string, version int64, at time.Time) (bool, error) {
	return d.compareAndSet(ctx, "expire placeholder", ExpirePlaceholderQuery,
		at.UnixNano(), id, version, at.UnixNano())
}

func (d *Database) compareAndSet(ctx context.Context, operation, query string, args ...interface{}) (bool, error) {
	affected, err := retryableDBOperation(ctx, func() (int64, error) {
		result, err := d.db.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		return result.RowsAffected()
	}, operation)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", operation, err)
	}
	return affected == 1, nil
}

// InsertMessage persists an ordinary timeline message.
func (d *Database) InsertMessage(ctx context.Context, m *models.Message) error {
	encryptedSender, err := d.encryptor.Encrypt(m.Sender)
	if err != nil {
		return fmt.Errorf("failed to encrypt sender: %w", err)
	}
	encryptedGroup, err := d.encryptor.Encrypt(m.GroupID)
	if err != nil {
		return fmt.Errorf("failed to encrypt group ID: %w", err)
	}
	encryptedBody, err := d.encryptor.Encrypt(m.Body)
	if err != nil {
		return fmt.Errorf("failed to encrypt body: %w", err)
	}

	err = retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertMessageQuery,
			m.ID,
			m.ThreadID,
			encryptedSender,
			encryptedGroup,
			m.OriginalTimestamp,
			encryptedBody,
			string(m.Kind),
			m.ReceivedAt.UnixNano(),
			toNullNanos(m.ReadAt),
		)
		return err
	}, "insert message")
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// ListThreadMessages returns every ordinary message in a thread.
func (d *Database) ListThreadMessages(ctx context.Context, threadID string) ([]*models.Message, error) {
	rows, err := d.db.QueryContext(ctx, SelectThreadMessagesQuery, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*models.Message
	for rows.Next() {
		var m models.Message
		var encryptedSender, encryptedGroup, encryptedBody, kind string
		var receivedAt int64
		var readAt sql.NullInt64

		if err := rows.Scan(&m.ID, &m.ThreadID, &encryptedSender, &encryptedGroup,
			&m.OriginalTimestamp, &encryptedBody, &kind, &receivedAt, &readAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		if m.Sender, err = d.encryptor.Decrypt(encryptedSender); err != nil {
			return nil, fmt.Errorf("failed to decrypt sender: %w", err)
		}
		if m.GroupID, err = d.encryptor.Decrypt(encryptedGroup); err != nil {
			return nil, fmt.Errorf("failed to decrypt group ID: %w", err)
		}
		if m.Body, err = d.encryptor.Decrypt(encryptedBody); err != nil {
			return nil, fmt.Errorf("failed to decrypt body: %w", err)
		}
		m.Kind = models.MessageKind(kind)
		m.ReceivedAt = fromNanos(receivedAt)
		m.ReadAt = fromNullNanos(readAt)
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// PersistReadMarks stores at as the read time of every entry that has none
// yet. Eligibility and version are never touched.
func (d *Database) PersistReadMarks(ctx context.Context, entries []models.TimelineEntry, at time.Time) error {
	if len(entries) == 0 {
		return nil
	}

	return retryableDBOperationNoReturn(ctx, func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		for _, entry := range entries {
			query := MarkMessageReadQuery
			if entry.EntryKind() == models.EntryKindPlaceholder {
				query = MarkPlaceholderReadQuery
			}
			if _, err := tx.ExecContext(ctx, query, at.UnixNano(), entry.EntryID()); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, "persist read marks")
}

// CleanupExpiredPlaceholders deletes expired placeholders that expired before
// the cutoff. Pending and replaced records are never removed.
func (d *Database) CleanupExpiredPlaceholders(ctx context.Context, before time.Time) (int64, error) {
	result, err := d.db.ExecContext(ctx, DeleteExpiredPlaceholdersQuery, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired placeholders: %w", err)
	}
	return result.RowsAffected()
}

func (d *Database) scanPlaceholders(rows *sql.Rows) ([]*models.Placeholder, error) {
	defer func() { _ = rows.Close() }()

	var result []*models.Placeholder
	for rows.Next() {
		var s models.PlaceholderState
		var encryptedSender, encryptedGroup, eligibility string
		var encryptedBody sql.NullString
		var createdAt, expiresAt int64
		var replacedAt, expiredAt, readAt sql.NullInt64

		if err := rows.Scan(
			&s.ID, &s.ThreadID, &encryptedSender, &encryptedGroup, &s.OriginalTimestamp,
			&createdAt, &expiresAt, &eligibility, &s.Version, &s.FailureReason,
			&encryptedBody, &replacedAt, &expiredAt, &readAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan placeholder: %w", err)
		}

		var err error
		if s.Sender, err = d.encryptor.Decrypt(encryptedSender); err != nil {
			return nil, fmt.Errorf("failed to decrypt sender: %w", err)
		}
		if s.GroupID, err = d.encryptor.Decrypt(encryptedGroup); err != nil {
			return nil, fmt.Errorf("failed to decrypt group ID: %w", err)
		}
		if encryptedBody.Valid {
			if s.ReplacementBody, err = d.encryptor.decryptOptional(&encryptedBody.String); err != nil {
				return nil, fmt.Errorf("failed to decrypt body: %w", err)
			}
		}

		s.Eligibility = models.Eligibility(eligibility)
		s.CreatedAt = fromNanos(createdAt)
		s.ExpiresAt = fromNanos(expiresAt)
		s.ReplacedAt = fromNullNanos(replacedAt)
		s.ExpiredAt = fromNullNanos(expiredAt)
		s.ReadAt = fromNullNanos(readAt)

		p, err := models.RestorePlaceholder(s)
		if err != nil {
			return nil, fmt.Errorf("stored placeholder is invalid: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate placeholders: %w", err)
	}
	return result, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func toNullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
