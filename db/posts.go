package db

import (
	"database/sql"
	"time"

	"github.com/burrowhq/burrow/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertPost = `INSERT INTO posts(id, object_uri, author_uri, account_id, community_id, kind, content, in_reply_to_uri, sensitive, tombstoned, created_at, edited_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(object_uri) DO NOTHING`
	sqlSelectPostByObjectURI = `SELECT id, object_uri, author_uri, account_id, community_id, kind, content, in_reply_to_uri, sensitive, tombstoned, created_at, edited_at
		FROM posts WHERE object_uri = ?`
	sqlUpdatePost    = `UPDATE posts SET content = ?, sensitive = ?, edited_at = ? WHERE id = ?`
	sqlTombstonePost = `UPDATE posts SET tombstoned = 1, content = '' WHERE id = ?`
	sqlSelectPublicPostsByAccount = `SELECT id, object_uri, author_uri, account_id, community_id, kind, content, in_reply_to_uri, sensitive, tombstoned, created_at, edited_at
		FROM posts WHERE account_id = ? AND kind = 'public' AND tombstoned = 0 ORDER BY created_at DESC LIMIT ? OFFSET ?`
	sqlCountPublicPostsByAccount = `SELECT COUNT(*) FROM posts WHERE account_id = ? AND kind = 'public' AND tombstoned = 0`
)

func (db *DB) CreatePost(p *domain.Post) (bool, error) {
	inserted := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		accountId := ""
		if p.AccountId != uuid.Nil {
			accountId = p.AccountId.String()
		}
		communityId := ""
		if p.CommunityId != uuid.Nil {
			communityId = p.CommunityId.String()
		}
		res, err := tx.Exec(sqlInsertPost,
			p.Id.String(),
			p.ObjectURI,
			p.AuthorURI,
			accountId,
			communityId,
			string(p.Kind),
			p.Content,
			p.InReplyToURI,
			p.Sensitive,
			p.Tombstoned,
			p.CreatedAt,
			p.EditedAt,
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

func (db *DB) ReadPostByObjectURI(uri string) (error, *domain.Post) {
	row := db.db.QueryRow(sqlSelectPostByObjectURI, uri)
	return scanPost(row.Scan)
}

func scanPost(scan func(dest ...any) error) (error, *domain.Post) {
	var p domain.Post
	var idStr, accountIdStr, communityIdStr, kind string
	var editedAt sql.NullTime
	err := scan(&idStr, &p.ObjectURI, &p.AuthorURI, &accountIdStr, &communityIdStr, &kind,
		&p.Content, &p.InReplyToURI, &p.Sensitive, &p.Tombstoned, &p.CreatedAt, &editedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	p.Id, _ = uuid.Parse(idStr)
	p.AccountId, _ = uuid.Parse(accountIdStr)
	p.CommunityId, _ = uuid.Parse(communityIdStr)
	p.Kind = domain.PostKind(kind)
	if editedAt.Valid {
		p.EditedAt = &editedAt.Time
	}
	return nil, &p
}

func (db *DB) UpdatePost(p *domain.Post) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		editedAt := p.EditedAt
		if editedAt == nil {
			now := time.Now()
			editedAt = &now
		}
		_, err := tx.Exec(sqlUpdatePost, p.Content, p.Sensitive, editedAt, p.Id.String())
		return err
	})
}

func (db *DB) TombstonePost(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlTombstonePost, id.String())
		return err
	})
}

func (db *DB) ReadPublicPostsByAccount(accountId uuid.UUID, limit, offset int) (error, *[]domain.Post) {
	rows, err := db.db.Query(sqlSelectPublicPostsByAccount, accountId.String(), limit, offset)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		err, p := scanPost(rows.Scan)
		if err != nil {
			return err, &posts
		}
		posts = append(posts, *p)
	}
	if err = rows.Err(); err != nil {
		return err, &posts
	}
	return nil, &posts
}

func (db *DB) CountPublicPostsByAccount(accountId uuid.UUID) (error, int) {
	var n int
	err := db.db.QueryRow(sqlCountPublicPostsByAccount, accountId.String()).Scan(&n)
	return err, n
}
