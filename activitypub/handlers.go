package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/burrowhq/burrow/domain"
	"github.com/google/uuid"
)

// handleFollow records the follow and answers it according to the configured
// follow mode: auto accepts immediately, manual leaves it pending for the
// recipient, closed rejects.
func (f *Federation) handleFollow(recipient *domain.LocalRecipient, activity *Activity) error {
	if activity.ObjectURI() != f.LocalActorURI(recipient.Kind, recipient.Name) {
		return fmt.Errorf("follow object %s does not name recipient %s", activity.ObjectURI(), recipient.Name)
	}

	follower, err := f.ResolveActor(activity.Actor, false)
	if err != nil {
		return fmt.Errorf("failed to resolve follower: %w", err)
	}

	status := domain.FollowPending
	switch f.conf.Conf.FollowMode {
	case "closed":
		status = domain.FollowRejected
	case "manual":
		status = domain.FollowPending
	default:
		status = domain.FollowAccepted
	}

	inserted, err := f.store.CreateFollow(&domain.Follow{
		Id:              uuid.New(),
		AccountId:       follower.Id,
		TargetAccountId: recipient.Id,
		URI:             activity.ID,
		Status:          status,
		CreatedAt:       time.Now(),
	})
	if err != nil {
		return err
	}

	switch status {
	case domain.FollowAccepted:
		// Re-deliver the Accept on duplicate follows; the first one may
		// not have reached the origin.
		if err := f.SendAccept(recipient, activity); err != nil {
			return err
		}
		if inserted {
			f.notify(recipient, "follow", follower.ActorURI, activity.ID)
		}
	case domain.FollowRejected:
		return f.SendReject(recipient, activity)
	case domain.FollowPending:
		if inserted {
			f.notify(recipient, "follow_request", follower.ActorURI, activity.ID)
		}
	}
	return nil
}

// handleAccept resolves a pending outbound follow.
func (f *Federation) handleAccept(recipient *domain.LocalRecipient, activity *Activity) error {
	return f.settleFollow(recipient, activity, domain.FollowAccepted, "follow_accepted")
}

// handleReject settles a pending outbound follow negatively. Also accepted
// for a follow previously granted, which remote servers use to revoke.
func (f *Federation) handleReject(recipient *domain.LocalRecipient, activity *Activity) error {
	return f.settleFollow(recipient, activity, domain.FollowRejected, "follow_rejected")
}

func (f *Federation) settleFollow(recipient *domain.LocalRecipient, activity *Activity, status domain.FollowStatus, notifyKind string) error {
	followURI := activity.ObjectURI()
	if followURI == "" {
		return fmt.Errorf("missing follow reference")
	}
	err, follow := f.store.ReadFollowByURI(followURI)
	if err != nil || follow == nil {
		// Settlement for a follow we never sent; nothing to update.
		f.log.Debugf("ignoring %s for unknown follow %s", activity.Type, followURI)
		return nil
	}
	if follow.AccountId != recipient.Id {
		return fmt.Errorf("follow %s does not belong to recipient", followURI)
	}
	// Only the followed actor may settle the follow.
	err, target := f.store.ReadRemoteAccountById(follow.TargetAccountId)
	if err != nil || target == nil {
		return fmt.Errorf("target of follow %s is unknown", followURI)
	}
	if target.ActorURI != activity.Actor {
		return fmt.Errorf("%s for follow %s came from %s, not its target", activity.Type, followURI, activity.Actor)
	}
	if err := f.store.UpdateFollowStatus(followURI, status); err != nil {
		return err
	}
	f.notify(recipient, notifyKind, activity.Actor, followURI)
	return nil
}

// handleLike records a reaction on a local post. A like on an object we
// don't have is acknowledged and dropped.
func (f *Federation) handleLike(recipient *domain.LocalRecipient, activity *Activity) error {
	err, post := f.store.ReadPostByObjectURI(activity.ObjectURI())
	if err != nil || post == nil {
		return nil
	}
	inserted, err := f.store.CreateReaction(&domain.Reaction{
		Id:          uuid.New(),
		PostId:      post.Id,
		ActorURI:    activity.Actor,
		ActivityURI: activity.ID,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return err
	}
	if inserted && post.AccountId != uuid.Nil {
		f.notifyAccount(post.AccountId, "like", activity.Actor, post.ObjectURI)
	}
	return nil
}

// handleAnnounce records a boost of a local post, like handleLike.
func (f *Federation) handleAnnounce(recipient *domain.LocalRecipient, activity *Activity) error {
	err, post := f.store.ReadPostByObjectURI(activity.ObjectURI())
	if err != nil || post == nil {
		return nil
	}
	inserted, err := f.store.CreateAnnounce(&domain.Announce{
		Id:          uuid.New(),
		PostId:      post.Id,
		ActorURI:    activity.Actor,
		ActivityURI: activity.ID,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return err
	}
	if inserted && post.AccountId != uuid.Nil {
		f.notifyAccount(post.AccountId, "announce", activity.Actor, post.ObjectURI)
	}
	return nil
}

// handleCreate persists an incoming Note, classified by its recipient shape:
// addressed to a local community makes it a channel message, the Public
// collection or a followers collection makes it public, neither makes it a
// direct message.
func (f *Federation) handleCreate(recipient *domain.LocalRecipient, activity *Activity) error {
	note, err := activity.Note()
	if err != nil {
		return fmt.Errorf("malformed note object: %w", err)
	}
	if note.ID == "" {
		return fmt.Errorf("note missing id")
	}
	if note.AttributedTo != "" && note.AttributedTo != activity.Actor {
		return fmt.Errorf("note attributed to %s but sent by %s", note.AttributedTo, activity.Actor)
	}

	kind, communityId := f.classifyNote(activity)

	if note.InReplyTo != "" {
		f.ensureParent(note.InReplyTo)
	}

	post := &domain.Post{
		Id:           uuid.New(),
		ObjectURI:    note.ID,
		AuthorURI:    activity.Actor,
		CommunityId:  communityId,
		Kind:         kind,
		Content:      SanitizeContent(note.Content),
		InReplyToURI: note.InReplyTo,
		Sensitive:    note.Sensitive,
		CreatedAt:    parsePublished(note.Published),
	}
	inserted, err := f.store.CreatePost(post)
	if err != nil {
		return err
	}
	if inserted && kind == domain.PostDirect && recipient.Kind == domain.ActorPerson {
		f.notifyAccount(recipient.Id, "mention", activity.Actor, note.ID)
	}
	return nil
}

// classifyNote derives the post kind from the addressing of the activity and
// its embedded object.
func (f *Federation) classifyNote(activity *Activity) (domain.PostKind, uuid.UUID) {
	public := false
	followers := false
	for _, uri := range activity.Recipients() {
		if IsPublic(uri) {
			public = true
			continue
		}
		if IsCollectionURI(uri) {
			followers = true
			continue
		}
		if r := f.LocalRecipientForURI(uri); r != nil && r.Kind == domain.ActorGroup {
			return domain.PostChannel, r.Id
		}
	}
	if public || followers {
		return domain.PostPublic, uuid.Nil
	}
	return domain.PostDirect, uuid.Nil
}

// ensureParent fetches a comment's parent once so threads render with
// context. Failure is tolerated: the comment stands alone.
func (f *Federation) ensureParent(parentURI string) {
	if err, existing := f.store.ReadPostByObjectURI(parentURI); err == nil && existing != nil {
		return
	}
	if f.IsLocalURI(parentURI) {
		return
	}
	if d := f.gate().Decide(parentURI); !d.Allowed {
		return
	}
	note, err := f.fetchRemoteNote(parentURI)
	if err != nil {
		f.log.Debugf("could not fetch thread parent %s: %v", parentURI, err)
		return
	}
	_, err = f.store.CreatePost(&domain.Post{
		Id:        uuid.New(),
		ObjectURI: note.ID,
		AuthorURI: note.AttributedTo,
		Kind:      domain.PostPublic,
		Content:   SanitizeContent(note.Content),
		Sensitive: note.Sensitive,
		CreatedAt: parsePublished(note.Published),
	})
	if err != nil {
		f.log.Debugf("could not store thread parent %s: %v", parentURI, err)
	}
}

func (f *Federation) fetchRemoteNote(uri string) (*NoteObject, error) {
	target, err := guardURL(uri)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", ContentType)
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("object fetch returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, err
	}
	var note NoteObject
	if err := json.Unmarshal(body, &note); err != nil {
		return nil, err
	}
	if note.ID == "" {
		return nil, fmt.Errorf("object document missing id")
	}
	return &note, nil
}

// undoObject is the embedded activity an Undo retracts.
type undoObject struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Actor  string `json:"actor"`
	Object string `json:"object"`
}

// handleUndo retracts a previous Follow, Like or Announce. Only the actor
// who performed the original activity may undo it.
func (f *Federation) handleUndo(recipient *domain.LocalRecipient, activity *Activity) error {
	var undone undoObject
	if err := json.Unmarshal(activity.Object, &undone); err != nil {
		return fmt.Errorf("malformed undo object: %w", err)
	}
	if undone.Actor != "" && undone.Actor != activity.Actor {
		return fmt.Errorf("undo actor does not match original activity actor")
	}

	switch undone.Type {
	case "Follow":
		if undone.ID == "" {
			return fmt.Errorf("undo follow missing follow id")
		}
		err, follow := f.store.ReadFollowByURI(undone.ID)
		if err != nil || follow == nil {
			return nil
		}
		err2, follower := f.store.ReadRemoteAccountById(follow.AccountId)
		if err2 == nil && follower != nil && follower.ActorURI != activity.Actor {
			return fmt.Errorf("undo actor does not own follow %s", undone.ID)
		}
		return f.store.DeleteFollowByURI(undone.ID)
	case "Like":
		return f.store.DeleteReactionByActivityURI(undone.ID)
	case "Announce":
		return f.store.DeleteAnnounceByActivityURI(undone.ID)
	}
	f.log.Debugf("ignoring undo of %s from %s", undone.Type, activity.Actor)
	return nil
}

// handleUpdate refreshes an actor profile or edits a post in place.
func (f *Federation) handleUpdate(recipient *domain.LocalRecipient, activity *Activity) error {
	switch activity.ObjectType() {
	case "Person", "Group", "Service", "Application":
		_, err := f.ResolveActor(activity.Actor, true)
		return err
	}

	note, err := activity.Note()
	if err != nil {
		return fmt.Errorf("malformed note object: %w", err)
	}
	err, post := f.store.ReadPostByObjectURI(note.ID)
	if err != nil || post == nil {
		return nil
	}
	if post.AuthorURI != activity.Actor {
		return fmt.Errorf("update actor %s is not the author of %s", activity.Actor, note.ID)
	}
	now := time.Now()
	post.Content = SanitizeContent(note.Content)
	post.Sensitive = note.Sensitive
	post.EditedAt = &now
	return f.store.UpdatePost(post)
}

// handleDelete tombstones a post or forgets a departed actor. Deletes are
// processed on a best-effort basis and never fail the activity: servers
// broadcast them widely for content we may have never seen.
func (f *Federation) handleDelete(recipient *domain.LocalRecipient, activity *Activity) error {
	objectURI := activity.ObjectURI()
	if objectURI == "" {
		return nil
	}

	if objectURI == activity.Actor {
		err, remote := f.store.ReadRemoteAccountByURI(activity.Actor)
		if err != nil || remote == nil {
			return nil
		}
		if err := f.store.DeleteFollowsByAccount(remote.Id); err != nil {
			f.log.Warnf("failed to drop follows of deleted actor %s: %v", activity.Actor, err)
		}
		if err := f.store.DeleteRemoteAccount(remote.Id); err != nil {
			f.log.Warnf("failed to forget deleted actor %s: %v", activity.Actor, err)
		}
		return nil
	}

	err, post := f.store.ReadPostByObjectURI(objectURI)
	if err != nil || post == nil {
		return nil
	}
	if post.AuthorURI != activity.Actor {
		f.log.Warnf("ignoring delete of %s by non-author %s", objectURI, activity.Actor)
		return nil
	}
	if err := f.store.TombstonePost(post.Id); err != nil {
		f.log.Warnf("failed to tombstone %s: %v", objectURI, err)
	}
	return nil
}

// handleFlag files a moderation report.
func (f *Federation) handleFlag(recipient *domain.LocalRecipient, activity *Activity) error {
	targetURI := activity.ObjectURI()
	if targetURI == "" {
		return fmt.Errorf("flag missing target")
	}
	return f.store.CreateReport(&domain.Report{
		Id:          uuid.New(),
		ActorURI:    activity.Actor,
		TargetURI:   targetURI,
		Comment:     SanitizeContent(activity.Content),
		ActivityURI: activity.ID,
		CreatedAt:   time.Now(),
	})
}

func (f *Federation) notify(recipient *domain.LocalRecipient, kind, actorURI, objectURI string) {
	if recipient.Kind != domain.ActorPerson {
		return
	}
	f.notifyAccount(recipient.Id, kind, actorURI, objectURI)
}

func (f *Federation) notifyAccount(accountId uuid.UUID, kind, actorURI, objectURI string) {
	err := f.store.CreateNotification(&domain.Notification{
		Id:        uuid.New(),
		AccountId: accountId,
		Kind:      kind,
		ActorURI:  actorURI,
		ObjectURI: objectURI,
		CreatedAt: time.Now(),
	})
	if err != nil {
		f.log.Warnf("failed to create %s notification: %v", kind, err)
	}
}

func parsePublished(published string) time.Time {
	if published != "" {
		if t, err := time.Parse(time.RFC3339, published); err == nil {
			return t
		}
	}
	return time.Now()
}
