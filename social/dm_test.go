// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package social

import (
	"context"
	"testing"

	"github.com/concord-chat/concord/realtime"
)

func TestGetOrCreateDMChannelIsStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	first, err := f.store.GetOrCreateDMChannel(ctx, alice, []int64{bob})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	// Repeat calls from either side land on the same channel, even
	// when the caller redundantly lists themselves.
	for _, call := range []struct {
		author       int64
		participants []int64
	}{
		{alice, []int64{bob}},
		{bob, []int64{alice}},
		{alice, []int64{alice, bob}},
	} {
		ch, err := f.store.GetOrCreateDMChannel(ctx, call.author, call.participants)
		if err != nil {
			t.Fatalf("get (%d, %v): %v", call.author, call.participants, err)
		}
		if ch.ID != first.ID {
			t.Errorf("get (%d, %v) = channel %d, want %d", call.author, call.participants, ch.ID, first.ID)
		}
	}

	if first.IsGroup {
		t.Error("pair channel marked as group")
	}
	if len(first.Participants) != 2 {
		t.Errorf("participants = %v, want both users", first.Participants)
	}
}

func TestGetOrCreateDMChannelDistinctPairs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	ab, err := f.store.GetOrCreateDMChannel(ctx, alice, []int64{bob})
	if err != nil {
		t.Fatalf("alice-bob: %v", err)
	}
	ac, err := f.store.GetOrCreateDMChannel(ctx, alice, []int64{carol})
	if err != nil {
		t.Fatalf("alice-carol: %v", err)
	}
	if ab.ID == ac.ID {
		t.Errorf("distinct pairs share channel %d", ab.ID)
	}
}

func TestGetOrCreateDMChannelMultiParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	first, err := f.store.GetOrCreateDMChannel(ctx, alice, []int64{bob, carol})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if !first.IsGroup {
		t.Error("three-participant channel not marked as group")
	}

	// The same set from another member reuses the channel; the pair
	// subset does not.
	same, err := f.store.GetOrCreateDMChannel(ctx, carol, []int64{alice, bob})
	if err != nil {
		t.Fatalf("same set: %v", err)
	}
	if same.ID != first.ID {
		t.Errorf("same set = channel %d, want %d", same.ID, first.ID)
	}
	pair, err := f.store.GetOrCreateDMChannel(ctx, alice, []int64{bob})
	if err != nil {
		t.Fatalf("pair subset: %v", err)
	}
	if pair.ID == first.ID {
		t.Error("pair subset reused the three-participant channel")
	}
}

func TestGetOrCreateDMChannelSelf(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	if _, err := f.store.GetOrCreateDMChannel(context.Background(), alice, []int64{alice}); !isConflict(err) {
		t.Errorf("self DM: got %v, want ErrConflict", err)
	}
}

func TestParticipantKeyOrderInsensitive(t *testing.T) {
	a := participantKey([]int64{1, 2, 3})
	b := participantKey([]int64{3, 1, 2})
	if a != b {
		t.Errorf("key depends on order: %q vs %q", a, b)
	}
	c := participantKey([]int64{1, 2, 4})
	if a == c {
		t.Errorf("distinct sets share key %q", a)
	}
}

func TestGroupDMChannelsNeverDeduplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	members := []int64{alice, bob, carol}
	first, err := f.store.CreateGroupDMChannel(ctx, members)
	if err != nil {
		t.Fatalf("first group: %v", err)
	}
	second, err := f.store.CreateGroupDMChannel(ctx, members)
	if err != nil {
		t.Fatalf("second group: %v", err)
	}
	if first.ID == second.ID {
		t.Errorf("same-member groups share channel %d", first.ID)
	}
	if !first.IsGroup {
		t.Error("group channel not marked as group")
	}
}

func TestCreateGroupDMChannelTooFewMembers(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	_, err := f.store.CreateGroupDMChannel(context.Background(), []int64{alice, alice})
	if !isConflict(err) {
		t.Errorf("single distinct member: got %v, want ErrConflict", err)
	}
}

func TestSendDirectMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	ch, err := f.store.GetOrCreateDMChannel(ctx, alice, []int64{bob})
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	msg, err := f.store.SendDirectMessage(ctx, ch.ID, alice, "hi bob")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.AuthorID != alice || msg.Content != "hi bob" {
		t.Errorf("message = %+v", msg)
	}

	msgs, err := f.store.DMChannelMessages(ctx, ch.ID, 0)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hi bob" {
		t.Errorf("stored messages = %v", msgs)
	}

	// Only the other participant gets the relayed event.
	if events := f.recorder.relayedTo(bob); len(events) != 1 || events[0].Type != realtime.TypeDMMessageCreated {
		t.Errorf("relayed to bob = %v, want one dm event", events)
	}
	if events := f.recorder.relayedTo(alice); len(events) != 0 {
		t.Errorf("relayed to author = %v, want none", events)
	}
}

func TestSendDirectMessageNonParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	ch, err := f.store.GetOrCreateDMChannel(ctx, alice, []int64{bob})
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	if _, err := f.store.SendDirectMessage(ctx, ch.ID, carol, "let me in"); !isForbidden(err) {
		t.Errorf("outsider send: got %v, want ErrForbidden", err)
	}
}

func TestUserDMChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	if _, err := f.store.GetOrCreateDMChannel(ctx, alice, []int64{bob}); err != nil {
		t.Fatalf("alice-bob: %v", err)
	}
	if _, err := f.store.GetOrCreateDMChannel(ctx, alice, []int64{carol}); err != nil {
		t.Fatalf("alice-carol: %v", err)
	}

	channels, err := f.store.UserDMChannels(ctx, alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(channels) != 2 {
		t.Errorf("alice's channels = %d, want 2", len(channels))
	}
	channels, err = f.store.UserDMChannels(ctx, bob)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(channels) != 1 {
		t.Errorf("bob's channels = %d, want 1", len(channels))
	}
}
