package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/gordian-engine/shardcast/internal/sctest"
	"github.com/stretchr/testify/require"
)

func TestSimulate_lossless(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sc := simConfig{
		Nodes:       4,
		Messages:    3,
		DataShards:  2,
		Recovery:    2,
		PayloadSize: 101,
		Seed:        7,
		Timeout:     5 * time.Second,
	}

	res, err := simulate(ctx, sctest.NewLogger(t), sc, nil)
	require.NoError(t, err)
	require.Zero(t, res.Dropped)

	for m, got := range res.Delivered {
		require.Len(t, got, sc.Nodes-1, "message %d", m)
	}

	var buf bytes.Buffer
	res.print(&buf)
	require.Contains(t, buf.String(), "3/3 messages reached every peer")
}

func TestRun_rejectsBadFlags(t *testing.T) {
	t.Parallel()

	require.Error(t, run([]string{"--nodes", "1"}))
	require.Error(t, run([]string{"--loss", "1.5"}))
	require.Error(t, run([]string{"extra"}))
}
