package scblake3_test

import (
	"testing"

	"github.com/gordian-engine/shardcast/scmerkle"
	"github.com/gordian-engine/shardcast/scmerkle/scblake3"
	"github.com/gordian-engine/shardcast/scmerkle/scmerkletest"
)

func TestCompliance(t *testing.T) {
	t.Parallel()

	scmerkletest.TestHasherCompliance(t, func() scmerkle.Hasher {
		return scblake3.Hasher{}
	})
}
