package scsha256_test

import (
	"testing"

	"github.com/gordian-engine/shardcast/scmerkle"
	"github.com/gordian-engine/shardcast/scmerkle/scmerkletest"
	"github.com/gordian-engine/shardcast/scmerkle/scsha256"
)

func TestCompliance(t *testing.T) {
	t.Parallel()

	scmerkletest.TestHasherCompliance(t, func() scmerkle.Hasher {
		return scsha256.Hasher{}
	})
}
