package sqlite

import (
	"strings"
	"testing"

	"samledger/testutil"
)

func TestSourceReadsSnapshotsOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", func(ip string) bool {
		return strings.HasPrefix(ip, "samledger/") && ip != "samledger/internal/infra/persistence/memory"
	}, "sqlite sources decode memory snapshots and nothing else")
}
