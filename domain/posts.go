package domain

import (
	"time"

	"github.com/google/uuid"
)

// PostKind classifies an incoming Note by its recipient shape.
type PostKind string

const (
	PostPublic  PostKind = "public"  // ordinary post or comment
	PostChannel PostKind = "channel" // addressed to a local community
	PostDirect  PostKind = "direct"  // no Public, no followers collection
)

// Post is a piece of content, local or remote. Remote posts keep the origin
// server's object URI; local posts mint one under the instance domain.
type Post struct {
	Id           uuid.UUID
	ObjectURI    string
	AuthorURI    string
	AccountId    uuid.UUID // local author, zero for remote posts
	CommunityId  uuid.UUID // set for channel messages
	Kind         PostKind
	Content      string
	InReplyToURI string
	Sensitive    bool
	Tombstoned   bool
	CreatedAt    time.Time
	EditedAt     *time.Time
}

// Report is a moderation report raised by a remote Flag activity.
type Report struct {
	Id          uuid.UUID
	ActorURI    string
	TargetURI   string
	Comment     string
	ActivityURI string
	CreatedAt   time.Time
}

// Notification surfaces federation events (new follower, accepted follow,
// mention) to a local account.
type Notification struct {
	Id        uuid.UUID
	AccountId uuid.UUID
	Kind      string
	ActorURI  string
	ObjectURI string
	CreatedAt time.Time
}
