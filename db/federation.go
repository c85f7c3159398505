package db

import (
	"database/sql"

	"github.com/burrowhq/burrow/domain"
	"github.com/google/uuid"
)

const (
	sqlUpsertRemoteAccount = `INSERT INTO remote_accounts(id, username, domain, actor_uri, kind, display_name, summary, inbox_uri, shared_inbox_uri, outbox_uri, public_key_id, public_key_pem, avatar_url, last_fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(actor_uri) DO UPDATE SET
			username = excluded.username,
			domain = excluded.domain,
			kind = excluded.kind,
			display_name = excluded.display_name,
			summary = excluded.summary,
			inbox_uri = excluded.inbox_uri,
			shared_inbox_uri = excluded.shared_inbox_uri,
			outbox_uri = excluded.outbox_uri,
			public_key_id = excluded.public_key_id,
			public_key_pem = excluded.public_key_pem,
			avatar_url = excluded.avatar_url,
			last_fetched_at = excluded.last_fetched_at`
	sqlSelectRemoteAccountByURI = `SELECT id, username, domain, actor_uri, kind, display_name, summary, inbox_uri, shared_inbox_uri, outbox_uri, public_key_id, public_key_pem, avatar_url, last_fetched_at
		FROM remote_accounts WHERE actor_uri = ?`
	sqlSelectRemoteAccountById = `SELECT id, username, domain, actor_uri, kind, display_name, summary, inbox_uri, shared_inbox_uri, outbox_uri, public_key_id, public_key_pem, avatar_url, last_fetched_at
		FROM remote_accounts WHERE id = ?`
	sqlDeleteRemoteAccount = `DELETE FROM remote_accounts WHERE id = ?`

	sqlInsertFollow = `INSERT INTO follows(id, account_id, target_account_id, uri, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(uri) DO NOTHING`
	sqlSelectFollowByURI      = `SELECT id, account_id, target_account_id, uri, status, created_at FROM follows WHERE uri = ?`
	sqlSelectFollowByAccounts = `SELECT id, account_id, target_account_id, uri, status, created_at FROM follows WHERE account_id = ? AND target_account_id = ?`
	sqlUpdateFollowStatus     = `UPDATE follows SET status = ? WHERE uri = ?`
	sqlDeleteFollowByURI      = `DELETE FROM follows WHERE uri = ?`
	sqlDeleteFollowsByAccount = `DELETE FROM follows WHERE account_id = ? OR target_account_id = ?`
	sqlSelectFollowers        = `SELECT id, account_id, target_account_id, uri, status, created_at FROM follows WHERE target_account_id = ? AND status = 'accepted' ORDER BY created_at DESC LIMIT ? OFFSET ?`
	sqlSelectFollowing        = `SELECT id, account_id, target_account_id, uri, status, created_at FROM follows WHERE account_id = ? AND status = 'accepted' ORDER BY created_at DESC LIMIT ? OFFSET ?`
	sqlCountFollowers         = `SELECT COUNT(*) FROM follows WHERE target_account_id = ? AND status = 'accepted'`
	sqlCountFollowing         = `SELECT COUNT(*) FROM follows WHERE account_id = ? AND status = 'accepted'`

	sqlInsertReaction           = `INSERT INTO reactions(id, post_id, actor_uri, activity_uri, created_at) VALUES (?, ?, ?, ?, ?) ON CONFLICT(activity_uri) DO NOTHING`
	sqlDeleteReactionByActivity = `DELETE FROM reactions WHERE activity_uri = ?`
	sqlInsertAnnounce           = `INSERT INTO announces(id, post_id, actor_uri, activity_uri, created_at) VALUES (?, ?, ?, ?, ?) ON CONFLICT(activity_uri) DO NOTHING`
	sqlDeleteAnnounceByActivity = `DELETE FROM announces WHERE activity_uri = ?`

	sqlInsertReport        = `INSERT INTO reports(id, actor_uri, target_uri, comment, activity_uri, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlInsertNotification  = `INSERT INTO notifications(id, account_id, kind, actor_uri, object_uri, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectNotifications = `SELECT id, account_id, kind, actor_uri, object_uri, created_at FROM notifications WHERE account_id = ? ORDER BY created_at DESC LIMIT ?`
)

func (db *DB) UpsertRemoteAccount(acc *domain.RemoteAccount) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertRemoteAccount,
			acc.Id.String(),
			acc.Username,
			acc.Domain,
			acc.ActorURI,
			string(acc.Kind),
			acc.DisplayName,
			acc.Summary,
			acc.InboxURI,
			acc.SharedInboxURI,
			acc.OutboxURI,
			acc.PublicKeyId,
			acc.PublicKeyPem,
			acc.AvatarURL,
			acc.LastFetchedAt,
		)
		return err
	})
}

func (db *DB) ReadRemoteAccountByURI(uri string) (error, *domain.RemoteAccount) {
	return scanRemoteAccount(db.db.QueryRow(sqlSelectRemoteAccountByURI, uri))
}

func (db *DB) ReadRemoteAccountById(id uuid.UUID) (error, *domain.RemoteAccount) {
	return scanRemoteAccount(db.db.QueryRow(sqlSelectRemoteAccountById, id.String()))
}

func scanRemoteAccount(row *sql.Row) (error, *domain.RemoteAccount) {
	var acc domain.RemoteAccount
	var idStr, kind string
	err := row.Scan(
		&idStr,
		&acc.Username,
		&acc.Domain,
		&acc.ActorURI,
		&kind,
		&acc.DisplayName,
		&acc.Summary,
		&acc.InboxURI,
		&acc.SharedInboxURI,
		&acc.OutboxURI,
		&acc.PublicKeyId,
		&acc.PublicKeyPem,
		&acc.AvatarURL,
		&acc.LastFetchedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	acc.Id, _ = uuid.Parse(idStr)
	acc.Kind = domain.ActorKind(kind)
	return nil, &acc
}

func (db *DB) DeleteRemoteAccount(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteRemoteAccount, id.String())
		return err
	})
}

func (db *DB) CreateFollow(f *domain.Follow) (bool, error) {
	inserted := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlInsertFollow,
			f.Id.String(),
			f.AccountId.String(),
			f.TargetAccountId.String(),
			f.URI,
			string(f.Status),
			f.CreatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

func (db *DB) ReadFollowByURI(uri string) (error, *domain.Follow) {
	row := db.db.QueryRow(sqlSelectFollowByURI, uri)
	return scanFollow(row.Scan)
}

func (db *DB) ReadFollowByAccounts(accountId, targetId uuid.UUID) (error, *domain.Follow) {
	row := db.db.QueryRow(sqlSelectFollowByAccounts, accountId.String(), targetId.String())
	return scanFollow(row.Scan)
}

func scanFollow(scan func(dest ...any) error) (error, *domain.Follow) {
	var f domain.Follow
	var idStr, accountIdStr, targetIdStr, status string
	err := scan(&idStr, &accountIdStr, &targetIdStr, &f.URI, &status, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	f.Id, _ = uuid.Parse(idStr)
	f.AccountId, _ = uuid.Parse(accountIdStr)
	f.TargetAccountId, _ = uuid.Parse(targetIdStr)
	f.Status = domain.FollowStatus(status)
	return nil, &f
}

func (db *DB) UpdateFollowStatus(uri string, status domain.FollowStatus) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateFollowStatus, string(status), uri)
		return err
	})
}

func (db *DB) DeleteFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollowByURI, uri)
		return err
	})
}

func (db *DB) DeleteFollowsByAccount(accountId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollowsByAccount, accountId.String(), accountId.String())
		return err
	})
}

func (db *DB) ReadFollowers(targetId uuid.UUID, limit, offset int) (error, *[]domain.Follow) {
	return db.queryFollows(sqlSelectFollowers, targetId, limit, offset)
}

func (db *DB) ReadFollowing(accountId uuid.UUID, limit, offset int) (error, *[]domain.Follow) {
	return db.queryFollows(sqlSelectFollowing, accountId, limit, offset)
}

func (db *DB) queryFollows(query string, id uuid.UUID, limit, offset int) (error, *[]domain.Follow) {
	rows, err := db.db.Query(query, id.String(), limit, offset)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var follows []domain.Follow
	for rows.Next() {
		err, f := scanFollow(rows.Scan)
		if err != nil {
			return err, &follows
		}
		follows = append(follows, *f)
	}
	if err = rows.Err(); err != nil {
		return err, &follows
	}
	return nil, &follows
}

func (db *DB) CountFollowers(targetId uuid.UUID) (error, int) {
	var n int
	err := db.db.QueryRow(sqlCountFollowers, targetId.String()).Scan(&n)
	return err, n
}

func (db *DB) CountFollowing(accountId uuid.UUID) (error, int) {
	var n int
	err := db.db.QueryRow(sqlCountFollowing, accountId.String()).Scan(&n)
	return err, n
}

func (db *DB) CreateReaction(r *domain.Reaction) (bool, error) {
	inserted := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlInsertReaction,
			r.Id.String(), r.PostId.String(), r.ActorURI, r.ActivityURI, r.CreatedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

func (db *DB) DeleteReactionByActivityURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteReactionByActivity, uri)
		return err
	})
}

func (db *DB) CreateAnnounce(a *domain.Announce) (bool, error) {
	inserted := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlInsertAnnounce,
			a.Id.String(), a.PostId.String(), a.ActorURI, a.ActivityURI, a.CreatedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

func (db *DB) DeleteAnnounceByActivityURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteAnnounceByActivity, uri)
		return err
	})
}

func (db *DB) CreateReport(r *domain.Report) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertReport,
			r.Id.String(), r.ActorURI, r.TargetURI, r.Comment, r.ActivityURI, r.CreatedAt)
		return err
	})
}

func (db *DB) CreateNotification(n *domain.Notification) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertNotification,
			n.Id.String(), n.AccountId.String(), n.Kind, n.ActorURI, n.ObjectURI, n.CreatedAt)
		return err
	})
}

func (db *DB) ReadNotificationsByAccount(accountId uuid.UUID, limit int) (error, *[]domain.Notification) {
	rows, err := db.db.Query(sqlSelectNotifications, accountId.String(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var idStr, accountIdStr string
		if err := rows.Scan(&idStr, &accountIdStr, &n.Kind, &n.ActorURI, &n.ObjectURI, &n.CreatedAt); err != nil {
			return err, &notifications
		}
		n.Id, _ = uuid.Parse(idStr)
		n.AccountId, _ = uuid.Parse(accountIdStr)
		notifications = append(notifications, n)
	}
	if err = rows.Err(); err != nil {
		return err, &notifications
	}
	return nil, &notifications
}
