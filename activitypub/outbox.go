package activitypub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/burrowhq/burrow/domain"
	"github.com/google/uuid"
)

const (
	immediateDeliveryMax = 5
	followerPageSize     = 100
)

// ClassifyRecipients derives the delivery class from the addressing shape:
// anything aimed at the Public collection or a followers collection is a
// broadcast, everything else is direct and gets the tighter retry budget.
func ClassifyRecipients(activity *Activity) domain.MessageClass {
	for _, uri := range activity.Recipients() {
		if IsPublic(uri) || IsCollectionURI(uri) {
			return domain.ClassBroadcast
		}
	}
	return domain.ClassDirect
}

// EnqueueActivity persists a locally authored activity and fans it out: one
// delivery task per distinct remote inbox, local recipients short-circuited
// straight into the inbox queue. Small fan-outs trigger an immediate
// delivery attempt instead of waiting for the next worker tick.
func (f *Federation) EnqueueActivity(author *domain.LocalRecipient, activity *Activity) error {
	if activity.Context == nil {
		activity.Context = ActivityStreamsContext
	}
	raw, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to encode activity: %w", err)
	}

	if err, existing := f.store.ReadOutboxActivityByURI(activity.ID); err == nil && existing != nil {
		f.log.Debugf("activity %s already queued", activity.ID)
		return nil
	}
	if err := f.store.CreateOutboxActivity(&domain.OutboxActivity{
		Id:           uuid.New(),
		AccountId:    author.Id,
		ActivityURI:  activity.ID,
		ActivityType: activity.Type,
		ObjectURI:    activity.ObjectURI(),
		ActivityJSON: string(raw),
		CreatedAt:    time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to persist outbox activity: %w", err)
	}

	class := ClassifyRecipients(activity)
	inboxes := make(map[string]bool)
	ownFollowers := f.LocalActorURI(author.Kind, author.Name) + "/followers"

	for _, uri := range activity.Recipients() {
		switch {
		case IsPublic(uri):
			continue
		case uri == ownFollowers:
			for _, inbox := range f.followerInboxes(author.Id) {
				inboxes[inbox] = true
			}
		case IsCollectionURI(uri):
			// Remote collections cannot be expanded from here; the owning
			// server handles its own fan-out.
			continue
		case f.IsLocalURI(uri):
			f.deliverLocally(uri, activity, raw)
		default:
			if d := f.gate().Decide(uri); !d.Allowed {
				f.log.Debugf("skipping recipient %s: %s", uri, d.Reason)
				continue
			}
			remote, err := f.ResolveActor(uri, false)
			if err != nil {
				f.log.Warnf("could not resolve recipient %s: %v", uri, err)
				continue
			}
			inboxes[preferredInbox(remote)] = true
		}
	}

	created := 0
	for inbox := range inboxes {
		err := f.store.CreateDeliveryTask(&domain.DeliveryTask{
			Id:          uuid.New(),
			ActivityURI: activity.ID,
			TargetInbox: inbox,
			Class:       class,
			CreatedAt:   time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to create delivery task: %w", err)
		}
		created++
	}

	if created > 0 && created <= immediateDeliveryMax {
		f.deliverNow()
	}
	return nil
}

// preferredInbox picks the shared inbox when the remote server advertises
// one, collapsing fan-out to one POST per server.
func preferredInbox(remote *domain.RemoteAccount) string {
	if remote.SharedInboxURI != "" {
		return remote.SharedInboxURI
	}
	return remote.InboxURI
}

// deliverLocally feeds an activity addressed to another actor on this
// instance straight into the inbox queue, no HTTP round trip.
func (f *Federation) deliverLocally(uri string, activity *Activity, raw []byte) {
	recipient := f.LocalRecipientForURI(uri)
	if recipient == nil {
		return
	}
	_, err := f.store.InsertInboxActivity(&domain.InboxActivity{
		Id:           uuid.New(),
		RecipientId:  recipient.Id,
		ActivityURI:  activity.ID,
		ActivityType: activity.Type,
		ActorURI:     activity.Actor,
		ObjectURI:    activity.ObjectURI(),
		RawJSON:      string(raw),
		Status:       domain.InboxPending,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		f.log.Warnf("local delivery of %s to %s failed: %v", activity.ID, recipient.Name, err)
	}
}

// followerInboxes expands an actor's accepted followers into their distinct
// delivery inboxes.
func (f *Federation) followerInboxes(actorId uuid.UUID) []string {
	seen := make(map[string]bool)
	var out []string
	for offset := 0; ; offset += followerPageSize {
		err, page := f.store.ReadFollowers(actorId, followerPageSize, offset)
		if err != nil || page == nil || len(*page) == 0 {
			break
		}
		for _, follow := range *page {
			err, remote := f.store.ReadRemoteAccountById(follow.AccountId)
			if err != nil || remote == nil {
				continue
			}
			if d := f.gate().Decide(remote.ActorURI); !d.Allowed {
				continue
			}
			inbox := preferredInbox(remote)
			if inbox != "" && !seen[inbox] {
				seen[inbox] = true
				out = append(out, inbox)
			}
		}
		if len(*page) < followerPageSize {
			break
		}
	}
	return out
}

// SendFollow records and delivers a follow request from a local actor to a
// remote one.
func (f *Federation) SendFollow(actor *domain.LocalRecipient, targetURI string) error {
	if d := f.gate().Decide(targetURI); !d.Allowed {
		return fmt.Errorf("federation policy: %s", d.Reason)
	}
	target, err := f.ResolveActor(targetURI, false)
	if err != nil {
		return fmt.Errorf("failed to resolve follow target: %w", err)
	}

	object, _ := json.Marshal(target.ActorURI)
	activity := &Activity{
		Context: ActivityStreamsContext,
		ID:      f.NewActivityURI(),
		Type:    "Follow",
		Actor:   f.LocalActorURI(actor.Kind, actor.Name),
		Object:  object,
		To:      FlexList{target.ActorURI},
	}

	if _, err := f.store.CreateFollow(&domain.Follow{
		Id:              uuid.New(),
		AccountId:       actor.Id,
		TargetAccountId: target.Id,
		URI:             activity.ID,
		Status:          domain.FollowPending,
		CreatedAt:       time.Now(),
	}); err != nil {
		return err
	}
	return f.EnqueueActivity(actor, activity)
}

// SendAccept answers an inbound Follow positively, echoing the original
// activity as the object so the origin can correlate it.
func (f *Federation) SendAccept(recipient *domain.LocalRecipient, follow *Activity) error {
	return f.respondToFollow(recipient, follow, "Accept")
}

// SendReject answers an inbound Follow negatively.
func (f *Federation) SendReject(recipient *domain.LocalRecipient, follow *Activity) error {
	return f.respondToFollow(recipient, follow, "Reject")
}

func (f *Federation) respondToFollow(recipient *domain.LocalRecipient, follow *Activity, responseType string) error {
	follow.Context = nil
	object, err := json.Marshal(follow)
	if err != nil {
		return fmt.Errorf("failed to encode follow: %w", err)
	}
	response := &Activity{
		Context: ActivityStreamsContext,
		ID:      f.NewActivityURI(),
		Type:    responseType,
		Actor:   f.LocalActorURI(recipient.Kind, recipient.Name),
		Object:  object,
		To:      FlexList{follow.Actor},
	}
	return f.EnqueueActivity(recipient, response)
}

// SendCreatePost wraps a local post in a Create and fans it out. Public and
// channel posts go to the author's followers; direct posts go only to the
// URIs in directTo.
func (f *Federation) SendCreatePost(author *domain.LocalRecipient, post *domain.Post, directTo []string) error {
	actorURI := f.LocalActorURI(author.Kind, author.Name)
	note := &NoteObject{
		ID:           post.ObjectURI,
		Type:         "Note",
		Content:      post.Content,
		Published:    post.CreatedAt.UTC().Format(time.RFC3339),
		AttributedTo: actorURI,
		InReplyTo:    post.InReplyToURI,
		Sensitive:    post.Sensitive,
	}

	var to, cc FlexList
	if post.Kind == domain.PostDirect {
		to = FlexList(directTo)
	} else {
		to = FlexList{PublicURI}
		cc = FlexList{actorURI + "/followers"}
	}
	note.To, note.Cc = to, cc

	object, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to encode note: %w", err)
	}
	activity := &Activity{
		Context:   ActivityStreamsContext,
		ID:        f.NewActivityURI(),
		Type:      "Create",
		Actor:     actorURI,
		Object:    object,
		To:        to,
		Cc:        cc,
		Published: note.Published,
	}
	return f.EnqueueActivity(author, activity)
}
