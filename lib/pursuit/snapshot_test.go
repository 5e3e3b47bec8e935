package pursuit

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unioproject/tbpromoter/lib/gateway/gwtest"
)

func TestTailsNewestFirstAndCapped(t *testing.T) {
	gw := gwtest.New()
	tails := bundleWithTails(gw, 12, 5)
	snap := snapshotOf(gw)

	got := snap.Tails()
	require.Len(t, got, MaxTails)
	for i := range got {
		assert.Equal(t, tails[11-i], got[i].Hash)
	}
	assert.Equal(t, tails[11], snap.ActiveTail().Hash)
}

func TestSnapshotValue(t *testing.T) {
	gw := gwtest.New()
	bundleWithTails(gw, 3, 1500000)
	// each attachment repeats the same output, counted once
	assert.EqualValues(t, 1500000, snapshotOf(gw).Value())

	empty := &Snapshot{BundleHash: testBundle}
	assert.Nil(t, empty.ActiveTail())
	assert.Zero(t, empty.Value())
}

func TestFetchSnapshot(t *testing.T) {
	gw := gwtest.New()
	bundleWithTails(gw, 2, 10)
	now := time.Unix(1000000, 0)

	snap, err := FetchSnapshot(gw, testBundle, now, nil)
	require.NoError(t, err)
	assert.Len(t, snap.Transactions, 4)
	assert.Equal(t, now, snap.FetchedAt)
	assert.Len(t, snap.Tails(), 2)

	gw.FindErr = func(_ string) error { return errors.New("connection refused") }
	_, err = FetchSnapshot(gw, testBundle, now, nil)
	assert.Error(t, err)
}
