package sctest

import (
	"testing"
	"time"
)

// soon is how long the channel helpers wait
// before considering an expected send or receive as missing.
// It is generous so that tests are not flaky on loaded CI machines.
const soon = 2 * time.Second

// ReceiveSoon returns the value received on ch,
// failing the test if nothing arrives in a reasonable time.
func ReceiveSoon[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	timer := time.NewTimer(soon)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v
	case <-timer.C:
		t.Fatalf("did not receive value within %s", soon)
	}

	panic("unreachable")
}

// SendSoon sends v on ch,
// failing the test if the send blocks for too long.
func SendSoon[T any](t *testing.T, ch chan<- T, v T) {
	t.Helper()

	timer := time.NewTimer(soon)
	defer timer.Stop()

	select {
	case ch <- v:
		// Okay.
	case <-timer.C:
		t.Fatalf("could not send value within %s", soon)
	}
}

// IsSending asserts that a value is ready on ch, and returns it.
// Unlike [ReceiveSoon], the value must be available almost immediately.
func IsSending[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	timer := time.NewTimer(10 * time.Millisecond)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v
	case <-timer.C:
		t.Fatal("channel was not sending")
	}

	panic("unreachable")
}

// NotSending asserts that no value is ready on ch.
func NotSending[T any](t *testing.T, ch <-chan T) {
	t.Helper()

	select {
	case v := <-ch:
		t.Fatalf("expected channel not to be sending, but received %v", v)
	default:
		// Okay.
	}
}

// NotSendingFor asserts that ch stays quiet for the duration d.
// Use this when a value would arrive asynchronously if it arrived at all.
func NotSendingFor[T any](t *testing.T, ch <-chan T, d time.Duration) {
	t.Helper()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case v := <-ch:
		t.Fatalf("expected channel not to be sending, but received %v", v)
	case <-timer.C:
		// Okay.
	}
}
