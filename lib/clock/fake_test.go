// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package clock_test

import (
	"testing"
	"time"

	"github.com/concord-chat/concord/lib/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNowAdvances(t *testing.T) {
	fake := clock.Fake(epoch)
	if got := fake.Now(); !got.Equal(epoch) {
		t.Fatalf("Now = %v, want %v", got, epoch)
	}

	fake.Advance(90 * time.Second)
	want := epoch.Add(90 * time.Second)
	if got := fake.Now(); !got.Equal(want) {
		t.Fatalf("Now after Advance = %v, want %v", got, want)
	}
}

func TestAfterFiresOnAdvance(t *testing.T) {
	fake := clock.Fake(epoch)
	ch := fake.After(time.Minute)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	fake.Advance(time.Minute)
	select {
	case got := <-ch:
		if want := epoch.Add(time.Minute); !got.Equal(want) {
			t.Errorf("fired at %v, want %v", got, want)
		}
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestAfterNonPositiveFiresImmediately(t *testing.T) {
	fake := clock.Fake(epoch)
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestTickerFiresPerInterval(t *testing.T) {
	fake := clock.Fake(epoch)
	ticker := fake.NewTicker(time.Second)
	defer ticker.Stop()

	// Three intervals: the 1-buffered channel keeps one tick; the
	// advance must still terminate.
	fake.Advance(3 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire")
	}
}

func TestStoppedTickerDoesNotFire(t *testing.T) {
	fake := clock.Fake(epoch)
	ticker := fake.NewTicker(time.Second)
	ticker.Stop()

	fake.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}
