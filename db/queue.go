package db

import (
	"database/sql"
	"time"

	"github.com/burrowhq/burrow/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertInboxActivity = `INSERT INTO inbox_activities(id, recipient_id, activity_uri, activity_type, actor_uri, object_uri, raw_json, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?) ON CONFLICT(recipient_id, activity_uri) DO NOTHING`
	sqlSelectPendingInbox = `SELECT id, recipient_id, activity_uri, activity_type, actor_uri, object_uri, raw_json, status, error_message, created_at, processed_at
		FROM inbox_activities WHERE status = 'pending' ORDER BY created_at ASC LIMIT ?`
	sqlClaimInboxActivity = `UPDATE inbox_activities SET status = 'processing' WHERE id = ? AND status = 'pending'`
	sqlMarkInboxProcessed = `UPDATE inbox_activities SET status = 'processed', processed_at = ? WHERE id = ? AND status = 'processing'`
	sqlMarkInboxFailed    = `UPDATE inbox_activities SET status = 'failed', error_message = ?, processed_at = ? WHERE id = ? AND status = 'processing'`

	sqlInsertOutboxActivity = `INSERT INTO outbox_activities(id, account_id, activity_uri, activity_type, object_uri, activity_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectOutboxByURI = `SELECT id, account_id, activity_uri, activity_type, object_uri, activity_json, created_at
		FROM outbox_activities WHERE activity_uri = ?`
	sqlSelectOutboxByObject = `SELECT id, account_id, activity_uri, activity_type, object_uri, activity_json, created_at
		FROM outbox_activities WHERE object_uri = ? ORDER BY created_at DESC LIMIT 1`

	sqlInsertDeliveryTask = `INSERT INTO delivery_tasks(id, activity_uri, target_inbox, class, status, retry_count, last_error, created_at)
		VALUES (?, ?, ?, ?, 'pending', 0, '', ?)`
	sqlSelectPendingDeliveries = `SELECT id, activity_uri, target_inbox, class, status, retry_count, last_error, last_attempt_at, claimed_at, delivered_at, created_at
		FROM delivery_tasks WHERE status = 'pending' ORDER BY created_at ASC LIMIT ?`
	sqlClaimDeliveryTask      = `UPDATE delivery_tasks SET status = 'delivering', claimed_at = ? WHERE id = ? AND status = 'pending'`
	sqlMarkDelivered          = `UPDATE delivery_tasks SET status = 'delivered', delivered_at = ?, last_attempt_at = ? WHERE id = ?`
	sqlMarkDeliveryFailed     = `UPDATE delivery_tasks SET status = 'failed', last_error = ?, retry_count = ?, last_attempt_at = ? WHERE id = ?`
	sqlRecordDeliveryAttempt  = `UPDATE delivery_tasks SET status = 'pending', retry_count = ?, last_error = ?, last_attempt_at = ?, claimed_at = NULL WHERE id = ?`
	sqlRecoverStaleDeliveries = `UPDATE delivery_tasks SET status = 'pending', claimed_at = NULL WHERE status = 'delivering' AND claimed_at <= ?`

	sqlPurgeInboxActivities = `DELETE FROM inbox_activities WHERE status IN ('processed', 'failed') AND created_at <= ?`
	sqlPurgeDeliveryTasks   = `DELETE FROM delivery_tasks WHERE status IN ('delivered', 'failed') AND created_at <= ?`
	sqlPurgeOutboxActivities = `DELETE FROM outbox_activities WHERE created_at <= ?
		AND activity_uri NOT IN (SELECT activity_uri FROM delivery_tasks WHERE status IN ('pending', 'delivering'))`
	sqlPurgeRemoteAccounts = `DELETE FROM remote_accounts WHERE last_fetched_at <= ?
		AND id NOT IN (SELECT account_id FROM follows) AND id NOT IN (SELECT target_account_id FROM follows)`
)

// InsertInboxActivity persists a received activity. The second return is
// false when the (recipient, activity URI) pair already exists: the caller
// treats the duplicate as an idempotent success.
func (db *DB) InsertInboxActivity(a *domain.InboxActivity) (bool, error) {
	inserted := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlInsertInboxActivity,
			a.Id.String(),
			a.RecipientId.String(),
			a.ActivityURI,
			a.ActivityType,
			a.ActorURI,
			a.ObjectURI,
			a.RawJSON,
			string(domain.InboxPending),
			a.CreatedAt,
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

// ClaimInboxActivities atomically moves up to n pending records into
// processing and returns them. Claimed rows are invisible to concurrent
// workers; the select and the status flips share one transaction.
func (db *DB) ClaimInboxActivities(n int) (error, *[]domain.InboxActivity) {
	var claimed []domain.InboxActivity
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		claimed = nil
		rows, err := tx.Query(sqlSelectPendingInbox, n)
		if err != nil {
			return err
		}
		var pending []domain.InboxActivity
		for rows.Next() {
			err, a := scanInboxActivity(rows.Scan)
			if err != nil {
				rows.Close()
				return err
			}
			pending = append(pending, *a)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, a := range pending {
			res, err := tx.Exec(sqlClaimInboxActivity, a.Id.String())
			if err != nil {
				return err
			}
			if cnt, _ := res.RowsAffected(); cnt > 0 {
				a.Status = domain.InboxProcessing
				claimed = append(claimed, a)
			}
		}
		return nil
	})
	return err, &claimed
}

func scanInboxActivity(scan func(dest ...any) error) (error, *domain.InboxActivity) {
	var a domain.InboxActivity
	var idStr, recipientStr, status string
	var processedAt sql.NullTime
	err := scan(&idStr, &recipientStr, &a.ActivityURI, &a.ActivityType, &a.ActorURI,
		&a.ObjectURI, &a.RawJSON, &status, &a.ErrorMessage, &a.CreatedAt, &processedAt)
	if err != nil {
		return err, nil
	}
	a.Id, _ = uuid.Parse(idStr)
	a.RecipientId, _ = uuid.Parse(recipientStr)
	a.Status = domain.InboxStatus(status)
	if processedAt.Valid {
		a.ProcessedAt = &processedAt.Time
	}
	return nil, &a
}

func (db *DB) MarkInboxProcessed(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlMarkInboxProcessed, time.Now(), id.String())
		return err
	})
}

func (db *DB) MarkInboxFailed(id uuid.UUID, errMsg string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlMarkInboxFailed, errMsg, time.Now(), id.String())
		return err
	})
}

func (db *DB) CreateOutboxActivity(o *domain.OutboxActivity) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertOutboxActivity,
			o.Id.String(),
			o.AccountId.String(),
			o.ActivityURI,
			o.ActivityType,
			o.ObjectURI,
			o.ActivityJSON,
			o.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadOutboxActivityByURI(uri string) (error, *domain.OutboxActivity) {
	return scanOutboxActivity(db.db.QueryRow(sqlSelectOutboxByURI, uri))
}

func (db *DB) ReadOutboxActivityByObjectURI(uri string) (error, *domain.OutboxActivity) {
	return scanOutboxActivity(db.db.QueryRow(sqlSelectOutboxByObject, uri))
}

func scanOutboxActivity(row *sql.Row) (error, *domain.OutboxActivity) {
	var o domain.OutboxActivity
	var idStr, accountIdStr string
	err := row.Scan(&idStr, &accountIdStr, &o.ActivityURI, &o.ActivityType, &o.ObjectURI, &o.ActivityJSON, &o.CreatedAt)
	if err != nil {
		return err, nil
	}
	o.Id, _ = uuid.Parse(idStr)
	o.AccountId, _ = uuid.Parse(accountIdStr)
	return nil, &o
}

func (db *DB) CreateDeliveryTask(t *domain.DeliveryTask) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertDeliveryTask,
			t.Id.String(),
			t.ActivityURI,
			t.TargetInbox,
			string(t.Class),
			t.CreatedAt,
		)
		return err
	})
}

// ClaimDeliveryTasks atomically claims up to n pending tasks, same scheme as
// ClaimInboxActivities.
func (db *DB) ClaimDeliveryTasks(n int) (error, *[]domain.DeliveryTask) {
	var claimed []domain.DeliveryTask
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		claimed = nil
		rows, err := tx.Query(sqlSelectPendingDeliveries, n)
		if err != nil {
			return err
		}
		var pending []domain.DeliveryTask
		for rows.Next() {
			err, t := scanDeliveryTask(rows.Scan)
			if err != nil {
				rows.Close()
				return err
			}
			pending = append(pending, *t)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		now := time.Now()
		for _, t := range pending {
			res, err := tx.Exec(sqlClaimDeliveryTask, now, t.Id.String())
			if err != nil {
				return err
			}
			if cnt, _ := res.RowsAffected(); cnt > 0 {
				t.Status = domain.DeliveryInFlight
				claimedAt := now
				t.ClaimedAt = &claimedAt
				claimed = append(claimed, t)
			}
		}
		return nil
	})
	return err, &claimed
}

func scanDeliveryTask(scan func(dest ...any) error) (error, *domain.DeliveryTask) {
	var t domain.DeliveryTask
	var idStr, class, status string
	var lastAttemptAt, claimedAt, deliveredAt sql.NullTime
	err := scan(&idStr, &t.ActivityURI, &t.TargetInbox, &class, &status, &t.RetryCount,
		&t.LastError, &lastAttemptAt, &claimedAt, &deliveredAt, &t.CreatedAt)
	if err != nil {
		return err, nil
	}
	t.Id, _ = uuid.Parse(idStr)
	t.Class = domain.MessageClass(class)
	t.Status = domain.DeliveryStatus(status)
	if lastAttemptAt.Valid {
		t.LastAttemptAt = &lastAttemptAt.Time
	}
	if claimedAt.Valid {
		t.ClaimedAt = &claimedAt.Time
	}
	if deliveredAt.Valid {
		t.DeliveredAt = &deliveredAt.Time
	}
	return nil, &t
}

func (db *DB) MarkDelivered(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		now := time.Now()
		_, err := tx.Exec(sqlMarkDelivered, now, now, id.String())
		return err
	})
}

func (db *DB) MarkDeliveryFailed(id uuid.UUID, errMsg string, retryCount int) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlMarkDeliveryFailed, errMsg, retryCount, time.Now(), id.String())
		return err
	})
}

func (db *DB) RecordDeliveryAttempt(id uuid.UUID, retryCount int, errMsg string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlRecordDeliveryAttempt, retryCount, errMsg, time.Now(), id.String())
		return err
	})
}

// RecoverStaleDeliveries resets tasks stuck in a claim (e.g. after a crash)
// back to pending so no task is permanently stranded.
func (db *DB) RecoverStaleDeliveries(olderThan time.Time) (int64, error) {
	var recovered int64
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlRecoverStaleDeliveries, olderThan)
		if err != nil {
			return err
		}
		recovered, err = res.RowsAffected()
		return err
	})
	return recovered, err
}

func (db *DB) PurgeInboxActivitiesBefore(t time.Time) (int64, error) {
	return db.purge(sqlPurgeInboxActivities, t)
}

func (db *DB) PurgeDeliveryTasksBefore(t time.Time) (int64, error) {
	return db.purge(sqlPurgeDeliveryTasks, t)
}

func (db *DB) PurgeOutboxActivitiesBefore(t time.Time) (int64, error) {
	return db.purge(sqlPurgeOutboxActivities, t)
}

func (db *DB) PurgeRemoteAccountsBefore(t time.Time) (int64, error) {
	return db.purge(sqlPurgeRemoteAccounts, t)
}

func (db *DB) purge(query string, t time.Time) (int64, error) {
	var purged int64
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(query, t)
		if err != nil {
			return err
		}
		purged, err = res.RowsAffected()
		return err
	})
	return purged, err
}
