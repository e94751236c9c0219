// Package sctest contains helpers shared by the shardcast tests.
package sctest

import (
	"log/slog"
	"testing"

	"github.com/neilotoole/slogt"
)

// NewLogger returns a logger that writes through t,
// so that log output is associated with the test that produced it
// and is only shown for failing or verbose tests.
func NewLogger(t *testing.T) *slog.Logger {
	return slogt.New(t)
}
