package journal

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oraclemesh/go-oraclemesh/period"
)

// TestAppendAndEntries verifies append ordering and that entries survive a
// reopen, which is what makes the journal useful after a restart.
func TestAppendAndEntries(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	j, err := Open(dir)
	require.NoError(err)

	phases := []period.Phase{
		period.PhaseRegistration,
		period.PhaseDeploySafe,
		period.PhaseCollectObservation,
	}
	for i, p := range phases {
		require.NoError(j.Append(p, fmt.Sprintf("round %d closed", i)))
	}

	entries, err := j.Entries()
	require.NoError(err)
	require.Len(entries, 3)
	for i, e := range entries {
		require.Equal(uint64(i), e.Seq)
		require.Equal(phases[i], e.Phase)
	}
	require.NoError(j.Close())

	// Reopen: the record must still be there, in order.
	j, err = Open(dir)
	require.NoError(err)
	defer j.Close()

	entries, err = j.Entries()
	require.NoError(err)
	require.Len(entries, 3)
	require.Equal(period.PhaseCollectObservation, entries[2].Phase)
}
