// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package social

import (
	"context"
	"sync"
	"testing"

	"github.com/concord-chat/concord/realtime"
)

func TestSendFriendRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	if err := f.store.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Fatalf("send: %v", err)
	}

	pending, err := f.store.PendingRequests(ctx, bob)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != alice {
		t.Errorf("pending for bob = %v, want [alice]", pending)
	}

	// The request is directed; alice has no incoming request.
	pending, err = f.store.PendingRequests(ctx, alice)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending for alice = %v, want none", pending)
	}

	events := f.recorder.relayedTo(bob)
	if len(events) != 1 || events[0].Type != realtime.TypeFriendRequestCreated {
		t.Errorf("relayed to bob = %v, want one friend-request event", events)
	}
}

func TestSendFriendRequestDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	if err := f.store.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := f.store.SendFriendRequest(ctx, alice, bob); !isConflict(err) {
		t.Errorf("duplicate send: got %v, want ErrConflict", err)
	}
}

func TestSendFriendRequestSelf(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	if err := f.store.SendFriendRequest(context.Background(), alice, alice); !isConflict(err) {
		t.Errorf("self request: got %v, want ErrConflict", err)
	}
}

func TestSendFriendRequestUnknownUser(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	if err := f.store.SendFriendRequest(context.Background(), alice, 9999); !isNotFound(err) {
		t.Errorf("unknown target: got %v, want ErrNotFound", err)
	}
}

func TestMirrorRequestAutoAccepts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	if err := f.store.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Fatalf("alice send: %v", err)
	}
	// Bob answering with his own request accepts alice's.
	if err := f.store.SendFriendRequest(ctx, bob, alice); err != nil {
		t.Fatalf("bob mirror send: %v", err)
	}

	for _, id := range []int64{alice, bob} {
		friends, err := f.store.Friends(ctx, id)
		if err != nil {
			t.Fatalf("friends of %d: %v", id, err)
		}
		if len(friends) != 1 {
			t.Fatalf("friends of %d = %d entries, want 1", id, len(friends))
		}
	}

	pending, err := f.store.PendingRequests(ctx, bob)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after auto-accept = %v, want none", pending)
	}

	events := f.recorder.relayedTo(alice)
	if len(events) != 1 || events[0].Type != realtime.TypeFriendRequestAccept {
		t.Errorf("relayed to alice = %v, want one accept event", events)
	}
}

func TestMirrorRequestConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	// Both sides fire their request at the same time. The write
	// transaction that lands second must observe the first edge and
	// accept it; the pair must never end up with crossed pendings.
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, 2)
	for i, pair := range [][2]int64{{alice, bob}, {bob, alice}} {
		wg.Add(1)
		i, pair := i, pair
		go func() {
			defer wg.Done()
			<-start
			errs[i] = f.store.SendFriendRequest(ctx, pair[0], pair[1])
		}()
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("send %d: %v", i, err)
		}
	}
	for _, id := range []int64{alice, bob} {
		friends, err := f.store.Friends(ctx, id)
		if err != nil {
			t.Fatalf("friends of %d: %v", id, err)
		}
		if len(friends) != 1 {
			t.Errorf("friends of %d = %d entries, want 1", id, len(friends))
		}
		pending, err := f.store.PendingRequests(ctx, id)
		if err != nil {
			t.Fatalf("pending of %d: %v", id, err)
		}
		if len(pending) != 0 {
			t.Errorf("pending of %d = %v, want none", id, pending)
		}
	}
}

func TestAcceptFriendRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	if err := f.store.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := f.store.AcceptFriendRequest(ctx, bob, alice); err != nil {
		t.Fatalf("accept: %v", err)
	}

	for _, id := range []int64{alice, bob} {
		friends, err := f.store.Friends(ctx, id)
		if err != nil {
			t.Fatalf("friends of %d: %v", id, err)
		}
		if len(friends) != 1 {
			t.Fatalf("friends of %d = %d entries, want 1", id, len(friends))
		}
	}

	// A new request between established friends is a conflict both
	// ways.
	if err := f.store.SendFriendRequest(ctx, alice, bob); !isConflict(err) {
		t.Errorf("send after accept: got %v, want ErrConflict", err)
	}
	if err := f.store.SendFriendRequest(ctx, bob, alice); !isConflict(err) {
		t.Errorf("reverse send after accept: got %v, want ErrConflict", err)
	}
}

func TestAcceptWithoutRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	if err := f.store.AcceptFriendRequest(ctx, bob, alice); !isNotFound(err) {
		t.Errorf("accept without request: got %v, want ErrNotFound", err)
	}

	// Accepting in the wrong direction is also no request: the
	// requester cannot accept their own request.
	if err := f.store.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := f.store.AcceptFriendRequest(ctx, alice, bob); !isNotFound(err) {
		t.Errorf("self-accept: got %v, want ErrNotFound", err)
	}
}

func TestRejectFriendRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	if err := f.store.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := f.store.RejectFriendRequest(ctx, bob, alice); err != nil {
		t.Fatalf("reject: %v", err)
	}

	pending, err := f.store.PendingRequests(ctx, bob)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after reject = %v, want none", pending)
	}

	// Rejection clears the pair completely; alice may ask again.
	if err := f.store.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Errorf("resend after reject: %v", err)
	}
}

func TestRemoveFriend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	if err := f.store.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := f.store.AcceptFriendRequest(ctx, bob, alice); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := f.store.RemoveFriend(ctx, alice, bob); err != nil {
		t.Fatalf("remove: %v", err)
	}

	for _, id := range []int64{alice, bob} {
		friends, err := f.store.Friends(ctx, id)
		if err != nil {
			t.Fatalf("friends of %d: %v", id, err)
		}
		if len(friends) != 0 {
			t.Errorf("friends of %d after removal = %v, want none", id, friends)
		}
	}

	if err := f.store.RemoveFriend(ctx, alice, bob); !isNotFound(err) {
		t.Errorf("double remove: got %v, want ErrNotFound", err)
	}
}

func TestBlockTearsDownFriendship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	if err := f.store.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := f.store.AcceptFriendRequest(ctx, bob, alice); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := f.store.BlockUser(ctx, alice, bob); err != nil {
		t.Fatalf("block: %v", err)
	}

	friends, err := f.store.Friends(ctx, bob)
	if err != nil {
		t.Fatalf("friends: %v", err)
	}
	if len(friends) != 0 {
		t.Errorf("bob's friends after block = %v, want none", friends)
	}

	blocked, err := f.store.BlockedUsers(ctx, alice)
	if err != nil {
		t.Fatalf("blocked: %v", err)
	}
	if len(blocked) != 1 || blocked[0].ID != bob {
		t.Errorf("alice's blocked = %v, want [bob]", blocked)
	}

	// The blocked side cannot open a new request.
	if err := f.store.SendFriendRequest(ctx, bob, alice); !isConflict(err) {
		t.Errorf("send while blocked: got %v, want ErrConflict", err)
	}
	if err := f.store.BlockUser(ctx, alice, bob); !isConflict(err) {
		t.Errorf("double block: got %v, want ErrConflict", err)
	}
}

func TestBlockIsDirectional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	if err := f.store.BlockUser(ctx, alice, bob); err != nil {
		t.Fatalf("alice block: %v", err)
	}
	// Bob blocking back is a distinct edge and must succeed without
	// touching alice's block.
	if err := f.store.BlockUser(ctx, bob, alice); err != nil {
		t.Fatalf("bob block back: %v", err)
	}

	for _, tc := range []struct{ who, whom int64 }{{alice, bob}, {bob, alice}} {
		blocked, err := f.store.BlockedUsers(ctx, tc.who)
		if err != nil {
			t.Fatalf("blocked of %d: %v", tc.who, err)
		}
		if len(blocked) != 1 || blocked[0].ID != tc.whom {
			t.Errorf("blocked of %d = %v, want [%d]", tc.who, blocked, tc.whom)
		}
	}
}

func TestUnblockUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	if err := f.store.BlockUser(ctx, alice, bob); err != nil {
		t.Fatalf("block: %v", err)
	}
	if err := f.store.UnblockUser(ctx, alice, bob); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if err := f.store.UnblockUser(ctx, alice, bob); !isNotFound(err) {
		t.Errorf("double unblock: got %v, want ErrNotFound", err)
	}

	// The pair is clear again.
	if err := f.store.SendFriendRequest(ctx, bob, alice); err != nil {
		t.Errorf("send after unblock: %v", err)
	}
}

func TestRespondToFriendRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	if err := f.store.SendFriendRequest(ctx, alice, bob); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := f.store.RespondToFriendRequest(ctx, bob, alice, true); err != nil {
		t.Fatalf("respond accept: %v", err)
	}
	friends, err := f.store.Friends(ctx, bob)
	if err != nil {
		t.Fatalf("friends: %v", err)
	}
	if len(friends) != 1 || friends[0].ID != alice {
		t.Errorf("friends = %v, want [alice]", friends)
	}

	if err := f.store.SendFriendRequest(ctx, carol, bob); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := f.store.RespondToFriendRequest(ctx, bob, carol, false); err != nil {
		t.Fatalf("respond reject: %v", err)
	}
	pending, err := f.store.PendingRequests(ctx, bob)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after reject = %v, want none", pending)
	}
}
