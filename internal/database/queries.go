package database

// Thread queries
const (
	InsertThreadIfAbsentQuery = `
		INSERT OR IGNORE INTO threads (id, peer, peer_hash, group_id, group_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	SelectThreadByKeyQuery = `
		SELECT id, peer, group_id, created_at
		FROM threads
		WHERE peer_hash = ? AND group_hash = ?
	`

	SelectThreadByIDQuery = `
		SELECT id, peer, group_id, created_at
		FROM threads
		WHERE id = ?
	`
)

// Placeholder queries
const (
	placeholderColumns = `
		id, thread_id, sender, group_id, original_timestamp,
		created_at, expires_at, eligibility, version, failure_reason,
		replacement_body, replaced_at, expired_at, read_at
	`

	InsertPlaceholderQuery = `
		INSERT INTO placeholders (
			id, thread_id, sender, sender_hash, group_id, group_hash,
			original_timestamp, created_at, expires_at, eligibility, version,
			failure_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	SelectPlaceholderByIDQuery = `SELECT ` + placeholderColumns + `
		FROM placeholders
		WHERE id = ?
	`

	// Earliest-created first: the first row wins a duplicate match.
	SelectPlaceholdersByKeyQuery = `SELECT ` + placeholderColumns + `
		FROM placeholders
		WHERE sender_hash = ? AND group_hash = ? AND original_timestamp = ?
		ORDER BY created_at ASC, id ASC
	`

	SelectThreadPlaceholdersQuery = `SELECT ` + placeholderColumns + `
		FROM placeholders
		WHERE thread_id = ?
		ORDER BY original_timestamp ASC, created_at ASC
	`

	SelectExpirablePlaceholdersQuery = `SELECT ` + placeholderColumns + `
		FROM placeholders
		WHERE eligibility = 'pending' AND expires_at <= ?
		ORDER BY expires_at ASC
		LIMIT ?
	`

	CountPendingPlaceholdersQuery = `
		SELECT COUNT(*) FROM placeholders WHERE eligibility = 'pending'
	`

	// Compare-and-set transitions. Zero affected rows means another writer
	// already moved the record or the deadline check failed.
	ReplacePlaceholderQuery = `
		UPDATE placeholders
		SET eligibility = 'replaced', version = version + 1,
		    replacement_body = ?, replaced_at = ?
		WHERE id = ? AND eligibility = 'pending' AND version = ? AND expires_at > ?
	`

	ExpirePlaceholderQuery = `
		UPDATE placeholders
		SET eligibility = 'expired', version = version + 1, expired_at = ?
		WHERE id = ? AND eligibility = 'pending' AND version = ? AND expires_at <= ?
	`

	MarkPlaceholderReadQuery = `
		UPDATE placeholders SET read_at = ? WHERE id = ? AND read_at IS NULL
	`

	DeleteExpiredPlaceholdersQuery = `
		DELETE FROM placeholders
		WHERE eligibility = 'expired' AND expired_at < ?
	`
)

// Message queries
const (
	InsertMessageQuery = `
		INSERT INTO messages (
			id, thread_id, sender, group_id, original_timestamp,
			body, kind, received_at, read_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	SelectThreadMessagesQuery = `
		SELECT id, thread_id, sender, group_id, original_timestamp,
		       body, kind, received_at, read_at
		FROM messages
		WHERE thread_id = ?
		ORDER BY original_timestamp ASC, received_at ASC
	`

	MarkMessageReadQuery = `
		UPDATE messages SET read_at = ? WHERE id = ? AND read_at IS NULL
	`
)
