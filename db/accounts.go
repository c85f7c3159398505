package db

import (
	"database/sql"
	"time"

	"github.com/burrowhq/burrow/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertAccount           = `INSERT INTO accounts(id, username, display_name, summary, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlSelectAccountByUsername = `SELECT id, username, display_name, summary, created_at FROM accounts WHERE username = ?`
	sqlSelectAccountById       = `SELECT id, username, display_name, summary, created_at FROM accounts WHERE id = ?`

	sqlInsertCommunity       = `INSERT INTO communities(id, name, display_name, summary, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlSelectCommunityByName = `SELECT id, name, display_name, summary, created_at FROM communities WHERE name = ?`
	sqlSelectCommunityById   = `SELECT id, name, display_name, summary, created_at FROM communities WHERE id = ?`

	sqlSelectKeyPairByOwner = `SELECT owner_id, public_key_pem, encrypted_private_key, created_at FROM keypairs WHERE owner_id = ?`
	sqlUpsertKeyPair        = `INSERT INTO keypairs(owner_id, public_key_pem, encrypted_private_key, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET public_key_pem = excluded.public_key_pem, encrypted_private_key = excluded.encrypted_private_key`
)

func (db *DB) CreateAccount(acc *domain.Account) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertAccount,
			acc.Id.String(),
			acc.Username,
			acc.DisplayName,
			acc.Summary,
			acc.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadAccByUsername(username string) (error, *domain.Account) {
	return db.scanAccount(db.db.QueryRow(sqlSelectAccountByUsername, username))
}

func (db *DB) ReadAccById(id uuid.UUID) (error, *domain.Account) {
	return db.scanAccount(db.db.QueryRow(sqlSelectAccountById, id.String()))
}

func (db *DB) scanAccount(row *sql.Row) (error, *domain.Account) {
	var acc domain.Account
	var idStr string
	err := row.Scan(&idStr, &acc.Username, &acc.DisplayName, &acc.Summary, &acc.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	acc.Id, _ = uuid.Parse(idStr)
	return nil, &acc
}

func (db *DB) CreateCommunity(c *domain.Community) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertCommunity,
			c.Id.String(),
			c.Name,
			c.DisplayName,
			c.Summary,
			c.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadCommunityByName(name string) (error, *domain.Community) {
	return db.scanCommunity(db.db.QueryRow(sqlSelectCommunityByName, name))
}

func (db *DB) ReadCommunityById(id uuid.UUID) (error, *domain.Community) {
	return db.scanCommunity(db.db.QueryRow(sqlSelectCommunityById, id.String()))
}

func (db *DB) scanCommunity(row *sql.Row) (error, *domain.Community) {
	var c domain.Community
	var idStr string
	err := row.Scan(&idStr, &c.Name, &c.DisplayName, &c.Summary, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	c.Id, _ = uuid.Parse(idStr)
	return nil, &c
}

func (db *DB) ReadKeyPairByOwner(ownerId uuid.UUID) (error, *domain.KeyPair) {
	row := db.db.QueryRow(sqlSelectKeyPairByOwner, ownerId.String())
	var kp domain.KeyPair
	var ownerStr string
	err := row.Scan(&ownerStr, &kp.PublicKeyPem, &kp.EncryptedPrivateKey, &kp.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	kp.OwnerId, _ = uuid.Parse(ownerStr)
	return nil, &kp
}

func (db *DB) UpsertKeyPair(kp *domain.KeyPair) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		createdAt := kp.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err := tx.Exec(sqlUpsertKeyPair,
			kp.OwnerId.String(),
			kp.PublicKeyPem,
			kp.EncryptedPrivateKey,
			createdAt,
		)
		return err
	})
}
