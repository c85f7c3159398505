package activitypub

import (
	"fmt"
	"testing"
	"time"

	"github.com/burrowhq/burrow/domain"
	"github.com/google/uuid"
)

func seedDelivery(t *testing.T, f *Federation, author *domain.LocalRecipient, targetInbox string, class domain.MessageClass) *domain.DeliveryTask {
	t.Helper()
	activityURI := f.NewActivityURI()
	raw := fmt.Sprintf(`{"id":"%s","type":"Create","actor":"https://burrow.example/users/%s","object":{"id":"n","type":"Note"}}`,
		activityURI, author.Name)
	if err := f.store.CreateOutboxActivity(&domain.OutboxActivity{
		Id:           uuid.New(),
		AccountId:    author.Id,
		ActivityURI:  activityURI,
		ActivityType: "Create",
		ActivityJSON: raw,
		CreatedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("Failed to seed outbox activity: %v", err)
	}
	task := &domain.DeliveryTask{
		Id:          uuid.New(),
		ActivityURI: activityURI,
		TargetInbox: targetInbox,
		Class:       class,
		CreatedAt:   time.Now(),
	}
	if err := f.store.CreateDeliveryTask(task); err != nil {
		t.Fatalf("Failed to seed delivery task: %v", err)
	}
	return task
}

// settledTasks counts tasks in a terminal state via the retention purge,
// which only touches delivered and failed rows.
func settledTasks(t *testing.T, f *Federation) int64 {
	t.Helper()
	n, err := f.store.PurgeDeliveryTasksBefore(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeDeliveryTasksBefore failed: %v", err)
	}
	return n
}

func TestDeliveryToBlockedHostFailsTerminally(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	seedDelivery(t, f, alice, "https://remote.example/inbox", domain.ClassBroadcast)

	// The host is blocked after the task was enqueued; the delivery pass
	// must still refuse it.
	f.conf.Conf.BlockedDomains = "remote.example"

	if n := f.RunDeliveryOnce(); n != 1 {
		t.Fatalf("Expected 1 task claimed, got %d", n)
	}

	err, tasks := f.store.ClaimDeliveryTasks(10)
	if err != nil || len(*tasks) != 0 {
		t.Errorf("Refused task must not return to pending, got %d", len(*tasks))
	}
	if n := settledTasks(t, f); n != 1 {
		t.Errorf("Expected 1 terminally settled task, got %d", n)
	}
}

func TestDeliveryRetriesUpToClassCeiling(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	// localhost passes the policy gate but the fetch guard refuses it, so
	// every attempt fails without touching the network.
	seedDelivery(t, f, alice, "https://localhost/inbox", domain.ClassDirect)

	// Attempt 1: back to pending with one retry spent.
	if n := f.RunDeliveryOnce(); n != 1 {
		t.Fatalf("Expected 1 task claimed on first pass, got %d", n)
	}
	if n := settledTasks(t, f); n != 0 {
		t.Fatalf("Task should not be terminal after one attempt")
	}

	// Attempt 2 reaches the direct-class ceiling.
	if n := f.RunDeliveryOnce(); n != 1 {
		t.Fatalf("Expected 1 task claimed on second pass, got %d", n)
	}
	if n := f.RunDeliveryOnce(); n != 0 {
		t.Errorf("Task past its budget must not be claimed again, got %d", n)
	}
	if n := settledTasks(t, f); n != 1 {
		t.Errorf("Expected 1 terminally settled task, got %d", n)
	}
}

func TestDeliveryBroadcastCeilingIsHigher(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	seedDelivery(t, f, alice, "https://localhost/inbox", domain.ClassBroadcast)

	for attempt := 1; attempt <= 5; attempt++ {
		if n := f.RunDeliveryOnce(); n != 1 {
			t.Fatalf("Expected claim on attempt %d, got %d", attempt, n)
		}
	}
	if n := f.RunDeliveryOnce(); n != 0 {
		t.Errorf("Broadcast task should settle after 5 attempts, got %d", n)
	}
	if n := settledTasks(t, f); n != 1 {
		t.Errorf("Expected 1 terminally settled task, got %d", n)
	}
}

func TestDeliveryMissingPayloadFailsTerminally(t *testing.T) {
	f := newTestFederation(t)

	if err := f.store.CreateDeliveryTask(&domain.DeliveryTask{
		Id:          uuid.New(),
		ActivityURI: "https://burrow.example/activities/ghost",
		TargetInbox: "https://remote.example/inbox",
		Class:       domain.ClassBroadcast,
		CreatedAt:   time.Now(),
	}); err != nil {
		t.Fatalf("Failed to seed task: %v", err)
	}

	if n := f.RunDeliveryOnce(); n != 1 {
		t.Fatalf("Expected 1 task claimed, got %d", n)
	}
	if n := settledTasks(t, f); n != 1 {
		t.Errorf("Task without payload should fail terminally, got %d settled", n)
	}
}

func TestDeliveryLocalReentry(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	seedAccount(t, f, "dave")

	seedDelivery(t, f, alice, "https://burrow.example/users/dave/inbox", domain.ClassDirect)

	if n := f.RunDeliveryOnce(); n != 1 {
		t.Fatalf("Expected 1 task claimed, got %d", n)
	}

	err, pending := f.store.ClaimInboxActivities(10)
	if err != nil || len(*pending) != 1 {
		t.Fatalf("Expected 1 re-entered inbox activity, got %d (%v)", len(*pending), err)
	}
	if n := settledTasks(t, f); n != 1 {
		t.Errorf("Local re-entry should mark the task delivered, got %d settled", n)
	}
}

func TestRecoverStaleDeliveries(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	seedDelivery(t, f, alice, "https://remote.example/inbox", domain.ClassBroadcast)

	err, claimed := f.store.ClaimDeliveryTasks(10)
	if err != nil || len(*claimed) != 1 {
		t.Fatalf("Expected 1 claim, got %d (%v)", len(*claimed), err)
	}

	// A claim younger than the threshold stays put.
	n, err := f.store.RecoverStaleDeliveries(time.Now().Add(-time.Minute))
	if err != nil || n != 0 {
		t.Errorf("Fresh claim should not be recovered, got %d", n)
	}

	// Past the threshold it goes back to pending.
	n, err = f.store.RecoverStaleDeliveries(time.Now())
	if err != nil || n != 1 {
		t.Fatalf("Expected 1 recovered claim, got %d (%v)", n, err)
	}
	err, reclaimed := f.store.ClaimDeliveryTasks(10)
	if err != nil || len(*reclaimed) != 1 {
		t.Errorf("Recovered task should be claimable again, got %d", len(*reclaimed))
	}
}
