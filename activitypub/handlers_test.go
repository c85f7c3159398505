package activitypub

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/burrowhq/burrow/domain"
	"github.com/google/uuid"
)

func queueActivity(t *testing.T, f *Federation, recipient *domain.LocalRecipient, raw string) {
	t.Helper()
	var activity Activity
	if err := json.Unmarshal([]byte(raw), &activity); err != nil {
		t.Fatalf("Test activity does not parse: %v", err)
	}
	inserted, err := f.store.InsertInboxActivity(&domain.InboxActivity{
		Id:           uuid.New(),
		RecipientId:  recipient.Id,
		ActivityURI:  activity.ID,
		ActivityType: activity.Type,
		ActorURI:     activity.Actor,
		ObjectURI:    activity.ObjectURI(),
		RawJSON:      raw,
		Status:       domain.InboxPending,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to queue activity: %v", err)
	}
	if !inserted {
		t.Fatal("Activity was already queued")
	}
}

func parseActivity(t *testing.T, raw string) *Activity {
	t.Helper()
	var activity Activity
	if err := json.Unmarshal([]byte(raw), &activity); err != nil {
		t.Fatalf("Test activity does not parse: %v", err)
	}
	return &activity
}

func seedRemotePost(t *testing.T, f *Federation, objectURI, authorURI string) *domain.Post {
	t.Helper()
	post := &domain.Post{
		Id:        uuid.New(),
		ObjectURI: objectURI,
		AuthorURI: authorURI,
		Kind:      domain.PostPublic,
		Content:   "<p>original</p>",
		CreatedAt: time.Now(),
	}
	if _, err := f.store.CreatePost(post); err != nil {
		t.Fatalf("Failed to seed post: %v", err)
	}
	return post
}

const remoteBob = "https://remote.example/users/bob"

func followJSON(target string) string {
	return fmt.Sprintf(`{"id":"https://remote.example/activities/f1","type":"Follow","actor":"%s","object":"%s"}`,
		remoteBob, target)
}

func TestFollowAutoAccepted(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	bob := seedRemoteActor(t, f, remoteBob)

	queueActivity(t, f, alice, followJSON("https://burrow.example/users/alice"))
	if n := f.ProcessInboxOnce(); n != 1 {
		t.Fatalf("Expected 1 activity processed, got %d", n)
	}

	err, follow := f.store.ReadFollowByURI("https://remote.example/activities/f1")
	if err != nil || follow == nil {
		t.Fatalf("Follow was not recorded: %v", err)
	}
	if follow.Status != domain.FollowAccepted {
		t.Errorf("Follow status = %s, want accepted", follow.Status)
	}
	if follow.AccountId != bob.Id || follow.TargetAccountId != alice.Id {
		t.Error("Follow recorded with wrong parties")
	}

	// The Accept must be queued for bob's inbox.
	err, tasks := f.store.ClaimDeliveryTasks(10)
	if err != nil {
		t.Fatalf("ClaimDeliveryTasks failed: %v", err)
	}
	if len(*tasks) != 1 {
		t.Fatalf("Expected 1 delivery task, got %d", len(*tasks))
	}
	task := (*tasks)[0]
	if task.TargetInbox != remoteBob+"/inbox" {
		t.Errorf("Accept queued for %s", task.TargetInbox)
	}
	if task.Class != domain.ClassDirect {
		t.Errorf("Accept should be a direct message, got %s", task.Class)
	}

	err, outbox := f.store.ReadOutboxActivityByURI(task.ActivityURI)
	if err != nil || outbox == nil {
		t.Fatalf("Accept payload missing from outbox: %v", err)
	}
	if outbox.ActivityType != "Accept" {
		t.Errorf("Outbox activity type = %s, want Accept", outbox.ActivityType)
	}

	err, notifications := f.store.ReadNotificationsByAccount(alice.Id, 10)
	if err != nil || len(*notifications) != 1 {
		t.Fatalf("Expected 1 notification, got %v", err)
	}
	if (*notifications)[0].Kind != "follow" {
		t.Errorf("Notification kind = %s, want follow", (*notifications)[0].Kind)
	}
}

func TestFollowManualModeStaysPending(t *testing.T) {
	f := newTestFederation(t)
	f.conf.Conf.FollowMode = "manual"
	alice := seedAccount(t, f, "alice")
	seedRemoteActor(t, f, remoteBob)

	queueActivity(t, f, alice, followJSON("https://burrow.example/users/alice"))
	f.ProcessInboxOnce()

	err, follow := f.store.ReadFollowByURI("https://remote.example/activities/f1")
	if err != nil || follow == nil {
		t.Fatalf("Follow was not recorded: %v", err)
	}
	if follow.Status != domain.FollowPending {
		t.Errorf("Follow status = %s, want pending", follow.Status)
	}

	err, tasks := f.store.ClaimDeliveryTasks(10)
	if err != nil {
		t.Fatalf("ClaimDeliveryTasks failed: %v", err)
	}
	if len(*tasks) != 0 {
		t.Errorf("Manual mode should not queue a response, got %d tasks", len(*tasks))
	}
}

func TestFollowClosedModeRejects(t *testing.T) {
	f := newTestFederation(t)
	f.conf.Conf.FollowMode = "closed"
	alice := seedAccount(t, f, "alice")
	seedRemoteActor(t, f, remoteBob)

	queueActivity(t, f, alice, followJSON("https://burrow.example/users/alice"))
	f.ProcessInboxOnce()

	err, follow := f.store.ReadFollowByURI("https://remote.example/activities/f1")
	if err != nil || follow == nil {
		t.Fatalf("Follow was not recorded: %v", err)
	}
	if follow.Status != domain.FollowRejected {
		t.Errorf("Follow status = %s, want rejected", follow.Status)
	}

	err, tasks := f.store.ClaimDeliveryTasks(10)
	if err != nil || len(*tasks) != 1 {
		t.Fatalf("Expected 1 Reject task, got %d (%v)", len(*tasks), err)
	}
	err, outbox := f.store.ReadOutboxActivityByURI((*tasks)[0].ActivityURI)
	if err != nil || outbox == nil || outbox.ActivityType != "Reject" {
		t.Error("Expected a queued Reject")
	}
}

func TestFollowWrongTargetFails(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	seedRemoteActor(t, f, remoteBob)

	activity := parseActivity(t, followJSON("https://burrow.example/users/somebody-else"))
	if err := f.handleFollow(alice, activity); err == nil {
		t.Error("Expected error for follow naming a different actor")
	}
}

func TestAcceptSettlesOutboundFollow(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	bob := seedRemoteActor(t, f, remoteBob)

	followURI := "https://burrow.example/activities/out-1"
	if _, err := f.store.CreateFollow(&domain.Follow{
		Id:              uuid.New(),
		AccountId:       alice.Id,
		TargetAccountId: bob.Id,
		URI:             followURI,
		Status:          domain.FollowPending,
		CreatedAt:       time.Now(),
	}); err != nil {
		t.Fatalf("Failed to seed follow: %v", err)
	}

	raw := fmt.Sprintf(`{"id":"https://remote.example/activities/a1","type":"Accept","actor":"%s","object":"%s"}`,
		remoteBob, followURI)
	if err := f.handleAccept(alice, parseActivity(t, raw)); err != nil {
		t.Fatalf("handleAccept failed: %v", err)
	}

	err, follow := f.store.ReadFollowByURI(followURI)
	if err != nil || follow == nil {
		t.Fatalf("Follow disappeared: %v", err)
	}
	if follow.Status != domain.FollowAccepted {
		t.Errorf("Follow status = %s, want accepted", follow.Status)
	}
}

func TestAcceptFromWrongActorRefused(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	bob := seedRemoteActor(t, f, remoteBob)

	followURI := "https://burrow.example/activities/out-2"
	if _, err := f.store.CreateFollow(&domain.Follow{
		Id:              uuid.New(),
		AccountId:       alice.Id,
		TargetAccountId: bob.Id,
		URI:             followURI,
		Status:          domain.FollowPending,
		CreatedAt:       time.Now(),
	}); err != nil {
		t.Fatalf("Failed to seed follow: %v", err)
	}

	// An Accept from an actor who is not the follow target must not settle it.
	raw := fmt.Sprintf(`{"id":"https://elsewhere.example/activities/a9","type":"Accept","actor":"https://elsewhere.example/users/mallory","object":"%s"}`,
		followURI)
	if err := f.handleAccept(alice, parseActivity(t, raw)); err == nil {
		t.Fatal("Expected Accept from a non-target actor to be refused")
	}

	err, follow := f.store.ReadFollowByURI(followURI)
	if err != nil || follow == nil {
		t.Fatalf("Follow disappeared: %v", err)
	}
	if follow.Status != domain.FollowPending {
		t.Errorf("Follow status = %s, want pending", follow.Status)
	}
}

func TestAcceptForUnknownFollowIgnored(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")

	raw := fmt.Sprintf(`{"id":"https://remote.example/activities/a2","type":"Accept","actor":"%s","object":"https://burrow.example/activities/never-sent"}`, remoteBob)
	if err := f.handleAccept(alice, parseActivity(t, raw)); err != nil {
		t.Errorf("Accept for unknown follow should be a no-op, got %v", err)
	}
}

func TestLikeIsIdempotent(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")

	postURI := "https://burrow.example/posts/" + uuid.New().String()
	if _, err := f.store.CreatePost(&domain.Post{
		Id:        uuid.New(),
		ObjectURI: postURI,
		AuthorURI: "https://burrow.example/users/alice",
		AccountId: alice.Id,
		Kind:      domain.PostPublic,
		Content:   "<p>mine</p>",
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("Failed to seed post: %v", err)
	}

	raw := fmt.Sprintf(`{"id":"https://remote.example/activities/l1","type":"Like","actor":"%s","object":"%s"}`,
		remoteBob, postURI)
	activity := parseActivity(t, raw)

	if err := f.handleLike(alice, activity); err != nil {
		t.Fatalf("First like failed: %v", err)
	}
	if err := f.handleLike(alice, activity); err != nil {
		t.Fatalf("Redelivered like failed: %v", err)
	}

	// One reaction means one notification, however often it arrives.
	err, notifications := f.store.ReadNotificationsByAccount(alice.Id, 10)
	if err != nil {
		t.Fatalf("ReadNotificationsByAccount failed: %v", err)
	}
	if len(*notifications) != 1 {
		t.Errorf("Expected 1 like notification, got %d", len(*notifications))
	}
}

func TestLikeUnknownObjectIsNoop(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")

	raw := fmt.Sprintf(`{"id":"https://remote.example/activities/l2","type":"Like","actor":"%s","object":"https://burrow.example/posts/%s"}`,
		remoteBob, uuid.New())
	if err := f.handleLike(alice, parseActivity(t, raw)); err != nil {
		t.Errorf("Like on unknown object should be a no-op, got %v", err)
	}
}

func TestCreatePublicNote(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")

	raw := fmt.Sprintf(`{
		"id": "https://remote.example/activities/c1",
		"type": "Create",
		"actor": "%s",
		"to": ["https://www.w3.org/ns/activitystreams#Public"],
		"cc": ["%s/followers"],
		"object": {
			"id": "https://remote.example/notes/1",
			"type": "Note",
			"attributedTo": "%s",
			"content": "<p>hello</p><script>alert(1)</script>"
		}
	}`, remoteBob, remoteBob, remoteBob)

	if err := f.handleCreate(alice, parseActivity(t, raw)); err != nil {
		t.Fatalf("handleCreate failed: %v", err)
	}

	err, post := f.store.ReadPostByObjectURI("https://remote.example/notes/1")
	if err != nil || post == nil {
		t.Fatalf("Post not stored: %v", err)
	}
	if post.Kind != domain.PostPublic {
		t.Errorf("Post kind = %s, want public", post.Kind)
	}
	if strings.Contains(post.Content, "script") {
		t.Errorf("Content was not sanitized: %q", post.Content)
	}
	if !strings.Contains(post.Content, "<p>hello</p>") {
		t.Errorf("Allowed markup was stripped: %q", post.Content)
	}
	if post.AuthorURI != remoteBob {
		t.Errorf("Author = %s", post.AuthorURI)
	}
}

func TestCreateDirectNoteNotifiesMention(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")

	raw := fmt.Sprintf(`{
		"id": "https://remote.example/activities/c2",
		"type": "Create",
		"actor": "%s",
		"to": ["https://burrow.example/users/alice"],
		"object": {
			"id": "https://remote.example/notes/2",
			"type": "Note",
			"attributedTo": "%s",
			"content": "psst"
		}
	}`, remoteBob, remoteBob)

	if err := f.handleCreate(alice, parseActivity(t, raw)); err != nil {
		t.Fatalf("handleCreate failed: %v", err)
	}

	err, post := f.store.ReadPostByObjectURI("https://remote.example/notes/2")
	if err != nil || post == nil {
		t.Fatalf("Post not stored: %v", err)
	}
	if post.Kind != domain.PostDirect {
		t.Errorf("Post kind = %s, want direct", post.Kind)
	}

	err, notifications := f.store.ReadNotificationsByAccount(alice.Id, 10)
	if err != nil || len(*notifications) != 1 || (*notifications)[0].Kind != "mention" {
		t.Error("Expected a mention notification")
	}
}

func TestCreateChannelNote(t *testing.T) {
	f := newTestFederation(t)
	golang := seedCommunity(t, f, "golang")

	raw := fmt.Sprintf(`{
		"id": "https://remote.example/activities/c3",
		"type": "Create",
		"actor": "%s",
		"to": ["https://burrow.example/c/golang", "https://www.w3.org/ns/activitystreams#Public"],
		"object": {
			"id": "https://remote.example/notes/3",
			"type": "Note",
			"attributedTo": "%s",
			"content": "channel post"
		}
	}`, remoteBob, remoteBob)

	if err := f.handleCreate(golang, parseActivity(t, raw)); err != nil {
		t.Fatalf("handleCreate failed: %v", err)
	}

	err, post := f.store.ReadPostByObjectURI("https://remote.example/notes/3")
	if err != nil || post == nil {
		t.Fatalf("Post not stored: %v", err)
	}
	if post.Kind != domain.PostChannel {
		t.Errorf("Post kind = %s, want channel", post.Kind)
	}
	if post.CommunityId != golang.Id {
		t.Error("Post not attached to the community")
	}
}

func TestCreateRejectsForgedAttribution(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")

	raw := fmt.Sprintf(`{
		"id": "https://remote.example/activities/c4",
		"type": "Create",
		"actor": "%s",
		"object": {
			"id": "https://remote.example/notes/4",
			"type": "Note",
			"attributedTo": "https://remote.example/users/somebody-else",
			"content": "forged"
		}
	}`, remoteBob)

	if err := f.handleCreate(alice, parseActivity(t, raw)); err == nil {
		t.Error("Expected error for attribution mismatch")
	}
}

func TestUndoFollowRemovesFollow(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	bob := seedRemoteActor(t, f, remoteBob)

	followURI := "https://remote.example/activities/f1"
	if _, err := f.store.CreateFollow(&domain.Follow{
		Id:              uuid.New(),
		AccountId:       bob.Id,
		TargetAccountId: alice.Id,
		URI:             followURI,
		Status:          domain.FollowAccepted,
		CreatedAt:       time.Now(),
	}); err != nil {
		t.Fatalf("Failed to seed follow: %v", err)
	}

	raw := fmt.Sprintf(`{
		"id": "https://remote.example/activities/u1",
		"type": "Undo",
		"actor": "%s",
		"object": {"id": "%s", "type": "Follow", "actor": "%s", "object": "https://burrow.example/users/alice"}
	}`, remoteBob, followURI, remoteBob)

	if err := f.handleUndo(alice, parseActivity(t, raw)); err != nil {
		t.Fatalf("handleUndo failed: %v", err)
	}

	err, follow := f.store.ReadFollowByURI(followURI)
	if !errors.Is(err, sql.ErrNoRows) || follow != nil {
		t.Error("Follow should be gone after undo")
	}
}

func TestUndoByWrongActorRefused(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	bob := seedRemoteActor(t, f, remoteBob)

	followURI := "https://remote.example/activities/f1"
	if _, err := f.store.CreateFollow(&domain.Follow{
		Id:              uuid.New(),
		AccountId:       bob.Id,
		TargetAccountId: alice.Id,
		URI:             followURI,
		Status:          domain.FollowAccepted,
		CreatedAt:       time.Now(),
	}); err != nil {
		t.Fatalf("Failed to seed follow: %v", err)
	}

	raw := fmt.Sprintf(`{
		"id": "https://remote.example/activities/u2",
		"type": "Undo",
		"actor": "https://remote.example/users/mallory",
		"object": {"id": "%s", "type": "Follow"}
	}`, followURI)

	if err := f.handleUndo(alice, parseActivity(t, raw)); err == nil {
		t.Error("Expected refusal for undo by a different actor")
	}

	err, follow := f.store.ReadFollowByURI(followURI)
	if err != nil || follow == nil {
		t.Error("Follow should survive a refused undo")
	}
}

func TestUpdateNoteEditsInPlace(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	seedRemotePost(t, f, "https://remote.example/notes/5", remoteBob)

	raw := fmt.Sprintf(`{
		"id": "https://remote.example/activities/up1",
		"type": "Update",
		"actor": "%s",
		"object": {
			"id": "https://remote.example/notes/5",
			"type": "Note",
			"attributedTo": "%s",
			"content": "<p>edited</p>"
		}
	}`, remoteBob, remoteBob)

	if err := f.handleUpdate(alice, parseActivity(t, raw)); err != nil {
		t.Fatalf("handleUpdate failed: %v", err)
	}

	err, post := f.store.ReadPostByObjectURI("https://remote.example/notes/5")
	if err != nil || post == nil {
		t.Fatalf("Post disappeared: %v", err)
	}
	if post.Content != "<p>edited</p>" {
		t.Errorf("Content = %q, want edited", post.Content)
	}
	if post.EditedAt == nil {
		t.Error("EditedAt should be set after an update")
	}
}

func TestUpdateByNonAuthorRefused(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	seedRemotePost(t, f, "https://remote.example/notes/6", "https://remote.example/users/carol")

	raw := fmt.Sprintf(`{
		"id": "https://remote.example/activities/up2",
		"type": "Update",
		"actor": "%s",
		"object": {"id": "https://remote.example/notes/6", "type": "Note", "content": "hijacked"}
	}`, remoteBob)

	if err := f.handleUpdate(alice, parseActivity(t, raw)); err == nil {
		t.Error("Expected refusal for update by non-author")
	}
}

func TestDeleteTombstonesPost(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	seedRemotePost(t, f, "https://remote.example/notes/7", remoteBob)

	raw := fmt.Sprintf(`{"id":"https://remote.example/activities/d1","type":"Delete","actor":"%s","object":"https://remote.example/notes/7"}`, remoteBob)
	if err := f.handleDelete(alice, parseActivity(t, raw)); err != nil {
		t.Fatalf("handleDelete failed: %v", err)
	}

	err, post := f.store.ReadPostByObjectURI("https://remote.example/notes/7")
	if err != nil || post == nil {
		t.Fatalf("Post row should survive as tombstone: %v", err)
	}
	if !post.Tombstoned {
		t.Error("Post should be tombstoned")
	}
}

func TestDeleteByNonAuthorIgnored(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	seedRemotePost(t, f, "https://remote.example/notes/8", "https://remote.example/users/carol")

	raw := fmt.Sprintf(`{"id":"https://remote.example/activities/d2","type":"Delete","actor":"%s","object":"https://remote.example/notes/8"}`, remoteBob)
	if err := f.handleDelete(alice, parseActivity(t, raw)); err != nil {
		t.Errorf("Delete should never hard-fail, got %v", err)
	}

	err, post := f.store.ReadPostByObjectURI("https://remote.example/notes/8")
	if err != nil || post == nil || post.Tombstoned {
		t.Error("Post should survive a delete by non-author")
	}
}

func TestDeleteActorForgetsEverything(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	bob := seedRemoteActor(t, f, remoteBob)

	if _, err := f.store.CreateFollow(&domain.Follow{
		Id:              uuid.New(),
		AccountId:       bob.Id,
		TargetAccountId: alice.Id,
		URI:             "https://remote.example/activities/f9",
		Status:          domain.FollowAccepted,
		CreatedAt:       time.Now(),
	}); err != nil {
		t.Fatalf("Failed to seed follow: %v", err)
	}

	raw := fmt.Sprintf(`{"id":"https://remote.example/activities/d3","type":"Delete","actor":"%s","object":"%s"}`, remoteBob, remoteBob)
	if err := f.handleDelete(alice, parseActivity(t, raw)); err != nil {
		t.Fatalf("handleDelete failed: %v", err)
	}

	if err, remote := f.store.ReadRemoteAccountByURI(remoteBob); err == nil && remote != nil {
		t.Error("Remote actor should be forgotten")
	}
	if err, follow := f.store.ReadFollowByURI("https://remote.example/activities/f9"); err == nil && follow != nil {
		t.Error("Follows of a deleted actor should be dropped")
	}
}

func TestFlagFilesReport(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")

	raw := fmt.Sprintf(`{"id":"https://remote.example/activities/fl1","type":"Flag","actor":"%s","object":"https://burrow.example/posts/x","content":"spam"}`, remoteBob)
	if err := f.handleFlag(alice, parseActivity(t, raw)); err != nil {
		t.Errorf("handleFlag failed: %v", err)
	}

	missing := fmt.Sprintf(`{"id":"https://remote.example/activities/fl2","type":"Flag","actor":"%s"}`, remoteBob)
	if err := f.handleFlag(alice, parseActivity(t, missing)); err == nil {
		t.Error("Expected error for flag without target")
	}
}

func TestUnknownActivityTypeIsProcessed(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")

	raw := fmt.Sprintf(`{"id":"https://remote.example/activities/m1","type":"Move","actor":"%s","object":"x"}`, remoteBob)
	queueActivity(t, f, alice, raw)
	if n := f.ProcessInboxOnce(); n != 1 {
		t.Fatalf("Expected the unknown activity to be claimed, got %d", n)
	}
	// A second pass finds nothing pending: the unknown type reached a
	// terminal state instead of looping.
	if n := f.ProcessInboxOnce(); n != 0 {
		t.Errorf("Expected empty queue, got %d", n)
	}
}

func TestDuplicateAdmissionIsIdempotent(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")

	record := &domain.InboxActivity{
		Id:           uuid.New(),
		RecipientId:  alice.Id,
		ActivityURI:  "https://remote.example/activities/dup",
		ActivityType: "Create",
		ActorURI:     remoteBob,
		RawJSON:      "{}",
		Status:       domain.InboxPending,
		CreatedAt:    time.Now(),
	}
	inserted, err := f.store.InsertInboxActivity(record)
	if err != nil || !inserted {
		t.Fatalf("First insert should succeed: %v", err)
	}

	dup := *record
	dup.Id = uuid.New()
	inserted, err = f.store.InsertInboxActivity(&dup)
	if err != nil {
		t.Fatalf("Duplicate insert should not error: %v", err)
	}
	if inserted {
		t.Error("Duplicate insert should be ignored")
	}
}
