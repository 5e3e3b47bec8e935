package pursuit

import (
	"context"
	"testing"
	"time"

	"github.com/iotaledger/iota.go/transaction"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unioproject/tbpromoter/lib/gateway"
	"github.com/unioproject/tbpromoter/lib/gateway/gwtest"
)

var testStart = time.Unix(1540000000, 0)

type recorder struct {
	updates []*Update
}

func (r *recorder) handle(upd *Update) {
	r.updates = append(r.updates, upd)
}

func (r *recorder) types() []UpdateType {
	ret := make([]UpdateType, len(r.updates))
	for i, u := range r.updates {
		ret[i] = u.UpdType
	}
	return ret
}

func newTestPursuer(t *testing.T, gw gateway.Gateway, maxPromotions int, handlers ...UpdateHandler) (*Pursuer, *ManualClock) {
	clk := NewManualClock(testStart)
	p, err := NewPursuer(Params{
		Gateway:       gw,
		Clock:         clk,
		Randomizer:    fixedRandomizer{depth: 5, cooldown: 1},
		MaxPromotions: maxPromotions,
		OnUpdate:      handlers,
	})
	require.NoError(t, err)
	return p, clk
}

func firstTx(gw *gwtest.Fake, tailHash Hash) *transaction.Transaction {
	tx := gw.Txs[tailHash]
	return &tx
}

func TestPursueAlreadyConfirmed(t *testing.T) {
	gw := gwtest.New()
	tails := bundleWithTails(gw, 1, 1)
	gw.SetState(tails[0], true)
	rec := &recorder{}
	p, _ := newTestPursuer(t, gw, 5, rec.handle)

	ret := p.Pursue(context.Background(), firstTx(gw, tails[0]), time.Hour)
	assert.Equal(t, StateConfirmed, ret.State)
	assert.Zero(t, ret.Rounds)
	assert.Zero(t, ret.Elapsed)
	assert.Empty(t, gw.CallsOf(gateway.OpPromote))
	assert.Equal(t, []UpdateType{UPD_START, UPD_CONFIRM}, rec.types())
}

func TestPursueConfirmedAfterPromotions(t *testing.T) {
	gw := gwtest.New()
	tails := bundleWithTails(gw, 1, 1)
	promotions := 0
	gw.PromoteErr = func(_ Hash) error {
		promotions++
		if promotions == 3 {
			// called under the lock of the fake
			gw.States[tails[0]] = true
		}
		return nil
	}
	rec := &recorder{}
	p, _ := newTestPursuer(t, gw, 5, rec.handle)

	ret := p.Pursue(context.Background(), firstTx(gw, tails[0]), time.Hour)
	assert.Equal(t, StateConfirmed, ret.State)
	assert.Equal(t, 3, ret.Rounds)
	assert.Equal(t, 3, ret.Promotions)
	assert.Equal(t, 3*time.Minute, ret.Elapsed)
	assert.Equal(t, []UpdateType{UPD_START, UPD_PROMOTE, UPD_PROMOTE, UPD_PROMOTE, UPD_CONFIRM}, rec.types())
	last := rec.updates[len(rec.updates)-1]
	assert.Equal(t, testBundle, last.Bundle)
	assert.EqualValues(t, 180, last.ElapsedSec)
}

func TestPursueTimesOut(t *testing.T) {
	gw := gwtest.New()
	tails := bundleWithTails(gw, 1, 1)
	p, _ := newTestPursuer(t, gw, 5)

	ret := p.Pursue(context.Background(), firstTx(gw, tails[0]), 60*time.Minute)
	assert.Equal(t, StateTimedOut, ret.State)
	// one round per minute, rounds at minutes 0..60
	assert.Equal(t, 61*time.Minute, ret.Elapsed)
	assert.Equal(t, 61, ret.Rounds)
	// every 6th round (attempt 5) reattaches
	assert.Equal(t, 10, ret.Reattachments)
	assert.Equal(t, 51, ret.Promotions)
	assert.Len(t, gw.CallsOf(gateway.OpReattach), 10)
}

func TestAttemptCounterResetsAfterReattach(t *testing.T) {
	gw := gwtest.New()
	tails := bundleWithTails(gw, 1, 1)
	rec := &recorder{}
	p, _ := newTestPursuer(t, gw, 2, rec.handle)

	p.Pursue(context.Background(), firstTx(gw, tails[0]), 6*time.Minute)
	actions := make([]UpdateType, 0)
	for _, u := range rec.updates {
		if u.UpdType == UPD_PROMOTE || u.UpdType == UPD_REATTACH {
			actions = append(actions, u.UpdType)
		}
	}
	assert.Equal(t, []UpdateType{
		UPD_PROMOTE, UPD_PROMOTE, UPD_REATTACH,
		UPD_PROMOTE, UPD_PROMOTE, UPD_REATTACH,
		UPD_PROMOTE,
	}, actions)
}

func TestReattachmentTailPromotedNextRound(t *testing.T) {
	gw := gwtest.New()
	tails := bundleWithTails(gw, 1, 1)
	newTail := gwtest.Tail("NEWTAIL", "BUNDLE", "ADDR", 0, 1000, 5000*1000)
	gw.OnReattach = func(f *gwtest.Fake, _ Hash) {
		f.AddTx(newTail)
	}
	rec := &recorder{}
	p, _ := newTestPursuer(t, gw, 1, rec.handle)

	ret := p.Pursue(context.Background(), firstTx(gw, tails[0]), 2*time.Minute)
	assert.Equal(t, StateTimedOut, ret.State)
	assert.Equal(t, 3, ret.Rounds)
	assert.Equal(t, 1, ret.Reattachments)

	promoted := make(Hashes, 0)
	for _, c := range gw.CallsOf(gateway.OpPromote) {
		promoted = append(promoted, c.Hash)
	}
	// snapshot is fetched again after reattachment, newest tail goes first
	assert.Equal(t, Hashes{tails[0], newTail.Hash, tails[0]}, promoted)

	var lastPromote *Update
	for _, u := range rec.updates {
		if u.UpdType == UPD_PROMOTE {
			lastPromote = u
		}
	}
	require.NotNil(t, lastPromote)
	assert.Equal(t, Hashes{newTail.Hash, tails[0]}, lastPromote.Tails)
}

func TestInvalidSignatureDisqualifies(t *testing.T) {
	gw := gwtest.New()
	tails := bundleWithTails(gw, 2, 1)
	gw.ReattachErr = func(_ Hash) error {
		return gateway.Classify(gateway.OpReattach, errors.New("Invalid signature"))
	}
	bl := NewBlacklist()
	clk := NewManualClock(testStart)
	rec := &recorder{}
	p, err := NewPursuer(Params{
		Gateway:       gw,
		Blacklist:     bl,
		Clock:         clk,
		Randomizer:    fixedRandomizer{depth: 5, cooldown: 1},
		MaxPromotions: 1,
		OnUpdate:      []UpdateHandler{rec.handle},
	})
	require.NoError(t, err)

	ret := p.Pursue(context.Background(), firstTx(gw, tails[0]), time.Hour)
	assert.Equal(t, StateDisqualified, ret.State)
	assert.Equal(t, "invalid signature", ret.Reason)
	assert.True(t, bl.Contains(testBundle))

	calls := gw.Calls()
	assert.Equal(t, gateway.OpReattach, calls[len(calls)-1].Op)
	assert.Len(t, gw.CallsOf(gateway.OpReattach), 1)
	assert.Equal(t, UPD_DISQUALIFIED, rec.types()[len(rec.updates)-1])

	// blacklisted bundle is never pursued again
	numCalls := len(gw.Calls())
	ret = p.Pursue(context.Background(), firstTx(gw, tails[0]), time.Hour)
	assert.Equal(t, StateDisqualified, ret.State)
	assert.Len(t, gw.Calls(), numCalls)
}

func TestPursueCancelled(t *testing.T) {
	gw := gwtest.New()
	tails := bundleWithTails(gw, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	p, _ := newTestPursuer(t, gw, 5, rec.handle, func(upd *Update) {
		if upd.UpdType == UPD_PROMOTE {
			cancel()
		}
	})

	ret := p.Pursue(ctx, firstTx(gw, tails[0]), time.Hour)
	assert.Equal(t, StateCancelled, ret.State)
	assert.Equal(t, 1, ret.Rounds)
	assert.Equal(t, []UpdateType{UPD_START, UPD_PROMOTE, UPD_CANCELLED}, rec.types())
}

func TestSnapshotFailureKeepsAttempt(t *testing.T) {
	gw := gwtest.New()
	tails := bundleWithTails(gw, 1, 1)
	calls := 0
	gw.FindErr = func(_ Hash) error {
		calls++
		// confirmation polls succeed, snapshot lookups fail
		if calls%2 == 0 {
			return errors.New("connection reset")
		}
		return nil
	}
	p, _ := newTestPursuer(t, gw, 5)

	ret := p.Pursue(context.Background(), firstTx(gw, tails[0]), 5*time.Minute)
	assert.Equal(t, StateTimedOut, ret.State)
	assert.Zero(t, ret.Rounds)
	assert.Equal(t, 6*time.Minute, ret.Elapsed)
	assert.Empty(t, gw.CallsOf(gateway.OpPromote))
}

func TestSummaryLog(t *testing.T) {
	mem := logging.NewMemoryBackend(10)
	leveled := logging.AddModuleLevel(mem)
	leveled.SetLevel(logging.INFO, "")
	sumlog := logging.MustGetLogger("summary_test")
	sumlog.SetBackend(leveled)

	gw := gwtest.New()
	tails := bundleWithTails(gw, 1, 1)
	gw.SetState(tails[0], true)
	p, err := NewPursuer(Params{
		Gateway:    gw,
		Clock:      NewManualClock(testStart),
		SummaryLog: sumlog,
	})
	require.NoError(t, err)

	tx := firstTx(gw, tails[0])
	tx.Value = 12000000
	ret := p.Pursue(context.Background(), tx, time.Hour)
	assert.EqualValues(t, 12000000, ret.Value)

	require.NotNil(t, mem.Head())
	assert.Equal(t, "Success: 0min - 12mi: "+testBundle, mem.Head().Record.Message())
}

func TestNewPursuerRequiresGateway(t *testing.T) {
	_, err := NewPursuer(Params{})
	assert.Error(t, err)
}
