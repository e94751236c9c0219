package main

import (
	"fmt"
	"io"
)

func (r simResult) print(w io.Writer) {
	c := r.Config
	fmt.Fprintf(w,
		"nodes=%d data=%d recovery=%d loss=%.2f messages=%d\n",
		c.Nodes, c.DataShards, c.Recovery, c.Loss, c.Messages,
	)
	fmt.Fprintf(w, "units sent=%d dropped=%d\n\n", r.Sent, r.Dropped)

	complete := 0
	for m, got := range r.Delivered {
		n := len(got)
		if n == c.Nodes-1 {
			complete++
		}
		fmt.Fprintf(w, "message %3d: %d/%d peers\n", m, n, c.Nodes-1)
	}
	fmt.Fprintf(w, "\n%d/%d messages reached every peer\n\n", complete, len(r.Delivered))

	for i, s := range r.Stats {
		fmt.Fprintf(w,
			"%s: tasks=%d finalized=%d pending_outputs=%d\n",
			r.IDs[i], s.Tasks, s.Finalized, s.PendingOutputs,
		)
	}
}
