package db

import (
	"database/sql"
)

const (
	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		display_name TEXT,
		summary TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateCommunitiesTable = `CREATE TABLE IF NOT EXISTS communities (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		display_name TEXT,
		summary TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateKeyPairsTable = `CREATE TABLE IF NOT EXISTS keypairs (
		owner_id TEXT NOT NULL PRIMARY KEY,
		public_key_pem TEXT NOT NULL,
		encrypted_private_key TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreatePostsTable = `CREATE TABLE IF NOT EXISTS posts (
		id TEXT NOT NULL PRIMARY KEY,
		object_uri TEXT UNIQUE NOT NULL,
		author_uri TEXT NOT NULL,
		account_id TEXT,
		community_id TEXT,
		kind TEXT NOT NULL DEFAULT 'public',
		content TEXT,
		in_reply_to_uri TEXT,
		sensitive INTEGER DEFAULT 0,
		tombstoned INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		edited_at TIMESTAMP
	)`

	sqlCreatePostsIndices = `
		CREATE INDEX IF NOT EXISTS idx_posts_object_uri ON posts(object_uri);
		CREATE INDEX IF NOT EXISTS idx_posts_account_id ON posts(account_id);
		CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
	`

	sqlCreateRemoteAccountsTable = `CREATE TABLE IF NOT EXISTS remote_accounts (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL,
		domain TEXT NOT NULL,
		actor_uri TEXT UNIQUE NOT NULL,
		kind TEXT NOT NULL DEFAULT 'Person',
		display_name TEXT,
		summary TEXT,
		inbox_uri TEXT NOT NULL,
		shared_inbox_uri TEXT,
		outbox_uri TEXT,
		public_key_id TEXT,
		public_key_pem TEXT NOT NULL,
		avatar_url TEXT,
		last_fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(username, domain)
	)`

	sqlCreateRemoteAccountsIndices = `
		CREATE INDEX IF NOT EXISTS idx_remote_accounts_actor_uri ON remote_accounts(actor_uri);
		CREATE INDEX IF NOT EXISTS idx_remote_accounts_domain ON remote_accounts(domain);
	`

	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS follows (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		target_account_id TEXT NOT NULL,
		uri TEXT UNIQUE NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateFollowsIndices = `
		CREATE INDEX IF NOT EXISTS idx_follows_account_id ON follows(account_id);
		CREATE INDEX IF NOT EXISTS idx_follows_target_account_id ON follows(target_account_id);
	`

	sqlCreateReactionsTable = `CREATE TABLE IF NOT EXISTS reactions (
		id TEXT NOT NULL PRIMARY KEY,
		post_id TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		activity_uri TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateAnnouncesTable = `CREATE TABLE IF NOT EXISTS announces (
		id TEXT NOT NULL PRIMARY KEY,
		post_id TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		activity_uri TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateReportsTable = `CREATE TABLE IF NOT EXISTS reports (
		id TEXT NOT NULL PRIMARY KEY,
		actor_uri TEXT NOT NULL,
		target_uri TEXT NOT NULL,
		comment TEXT,
		activity_uri TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateNotificationsTable = `CREATE TABLE IF NOT EXISTS notifications (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		actor_uri TEXT,
		object_uri TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateInboxTable = `CREATE TABLE IF NOT EXISTS inbox_activities (
		id TEXT NOT NULL PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		activity_uri TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		object_uri TEXT,
		raw_json TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMP,
		UNIQUE(recipient_id, activity_uri)
	)`

	sqlCreateInboxIndices = `
		CREATE INDEX IF NOT EXISTS idx_inbox_status ON inbox_activities(status);
		CREATE INDEX IF NOT EXISTS idx_inbox_created_at ON inbox_activities(created_at);
	`

	sqlCreateOutboxTable = `CREATE TABLE IF NOT EXISTS outbox_activities (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		activity_uri TEXT UNIQUE NOT NULL,
		activity_type TEXT NOT NULL,
		object_uri TEXT,
		activity_json TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryTasksTable = `CREATE TABLE IF NOT EXISTS delivery_tasks (
		id TEXT NOT NULL PRIMARY KEY,
		activity_uri TEXT NOT NULL,
		target_inbox TEXT NOT NULL,
		class TEXT NOT NULL DEFAULT 'broadcast',
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER DEFAULT 0,
		last_error TEXT,
		last_attempt_at TIMESTAMP,
		claimed_at TIMESTAMP,
		delivered_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryTasksIndices = `
		CREATE INDEX IF NOT EXISTS idx_delivery_tasks_status ON delivery_tasks(status);
		CREATE INDEX IF NOT EXISTS idx_delivery_tasks_created_at ON delivery_tasks(created_at);
	`
)

// createSchema creates all tables and indices. Statements are idempotent so
// restarts are safe.
func (db *DB) createSchema() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		tables := []struct {
			name string
			stmt string
		}{
			{"accounts", sqlCreateAccountsTable},
			{"communities", sqlCreateCommunitiesTable},
			{"keypairs", sqlCreateKeyPairsTable},
			{"posts", sqlCreatePostsTable},
			{"remote_accounts", sqlCreateRemoteAccountsTable},
			{"follows", sqlCreateFollowsTable},
			{"reactions", sqlCreateReactionsTable},
			{"announces", sqlCreateAnnouncesTable},
			{"reports", sqlCreateReportsTable},
			{"notifications", sqlCreateNotificationsTable},
			{"inbox_activities", sqlCreateInboxTable},
			{"outbox_activities", sqlCreateOutboxTable},
			{"delivery_tasks", sqlCreateDeliveryTasksTable},
		}
		for _, t := range tables {
			if _, err := tx.Exec(t.stmt); err != nil {
				db.log.Errorf("creating table %s: %v", t.name, err)
				return err
			}
		}

		indices := []string{
			sqlCreatePostsIndices,
			sqlCreateRemoteAccountsIndices,
			sqlCreateFollowsIndices,
			sqlCreateInboxIndices,
			sqlCreateDeliveryTasksIndices,
		}
		for _, stmt := range indices {
			if _, err := tx.Exec(stmt); err != nil {
				db.log.Warnf("creating indices: %v", err)
			}
		}
		return nil
	})
}
