package pursuit

import (
	"context"
	"math"
	"time"

	"github.com/iotaledger/iota.go/transaction"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/unioproject/tbpromoter/lib/gateway"
)

const DefaultSleepAfterError = 1 * time.Minute

type Params struct {
	Gateway         gateway.Gateway
	Blacklist       *Blacklist
	Clock           Clock
	Randomizer      Randomizer
	MaxPromotions   int
	SleepAfterError time.Duration
	Log             *logging.Logger
	SummaryLog      *logging.Logger
	OnUpdate        []UpdateHandler
}

// Pursuer keeps collaborators shared by all pursuits.
// Pursue may be called concurrently for different bundles
type Pursuer struct {
	Params
	tracker  *Tracker
	strategy *Strategy
}

func NewPursuer(params Params) (*Pursuer, error) {
	if params.Gateway == nil {
		return nil, errors.New("NewPursuer: gateway is not provided")
	}
	if params.Blacklist == nil {
		params.Blacklist = NewBlacklist()
	}
	if params.Clock == nil {
		params.Clock = NewClock()
	}
	if params.Randomizer == nil {
		params.Randomizer = NewRandomizer()
	}
	if params.MaxPromotions <= 0 {
		params.MaxPromotions = DefaultMaxPromotions
	}
	if params.SleepAfterError <= 0 {
		params.SleepAfterError = DefaultSleepAfterError
	}
	return &Pursuer{
		Params:   params,
		tracker:  NewTracker(params.Gateway, params.Log),
		strategy: NewStrategy(params.Gateway, params.Randomizer, params.MaxPromotions, params.Log),
	}, nil
}

// pursuit is the state of one Pursue call
type pursuit struct {
	*Pursuer
	ctx           context.Context
	bundleHash    Hash
	txHash        Hash
	value         int64
	started       time.Time
	deadline      time.Duration
	attempt       int
	rounds        int
	promotions    int
	reattachments int
}

// Pursue promotes and reattaches the bundle of tx until it is confirmed, disqualified,
// deadline passes or ctx is cancelled. Deadline 0 means no deadline
func (p *Pursuer) Pursue(ctx context.Context, tx *transaction.Transaction, deadline time.Duration) *Outcome {
	ps := &pursuit{
		Pursuer:    p,
		ctx:        ctx,
		bundleHash: tx.Bundle,
		txHash:     tx.Hash,
		value:      tx.Value,
		started:    p.Clock.Now(),
		deadline:   deadline,
	}
	ps.infof("PURSUIT: start promoting tx (%dmin, %dmi): %v (%v)",
		minutesSince(time.Unix(int64(tx.Timestamp), 0), ps.started), megaIotas(tx.Value), tx.Hash, tx.Bundle)
	ps.emit(UPD_START, nil, "")

	ret := ps.run()

	ps.emit(ret.updateType(), nil, ret.Reason)
	ps.report(ret)
	return ret
}

func (ps *pursuit) run() *Outcome {
	for {
		if ps.ctx.Err() != nil {
			return ps.outcome(StateCancelled, "")
		}
		if ps.Blacklist.Contains(ps.bundleHash) {
			return ps.outcome(StateDisqualified, "blacklisted")
		}
		confirmed, err := ps.tracker.IsConfirmed(ps.bundleHash)
		if err == nil && confirmed {
			ps.infof("PURSUIT: bundle confirmed: %v", ps.bundleHash)
			return ps.outcome(StateConfirmed, "")
		}
		if ps.timedOut() {
			ps.errorf("PURSUIT: did take too long (%d min). Skipping bundle %v",
				minutesSince(ps.started, ps.Clock.Now()), ps.bundleHash)
			return ps.outcome(StateTimedOut, "")
		}
		if err != nil {
			if gateway.IsFatal(err) {
				return ps.disqualify(err)
			}
			ps.sleepAfterError()
			continue
		}

		snap, err := FetchSnapshot(ps.Gateway, ps.bundleHash, ps.Clock.Now(), ps.Log)
		if err != nil {
			ps.errorf("PURSUIT: fetch bundle %v: %v", ps.bundleHash, err)
			if gateway.IsFatal(err) {
				return ps.disqualify(err)
			}
			ps.sleepAfterError()
			continue
		}
		ps.infof("PURSUIT: found %d tx in bundle %v. Trying to promote/reattach", len(snap.Transactions), ps.bundleHash)
		if ps.value <= 0 {
			ps.value = snap.Value()
		}

		res, err := ps.strategy.Act(snap, ps.attempt)
		ps.rounds++
		if err != nil {
			return ps.disqualify(err)
		}
		ps.promotions += res.Promotions
		ps.reattachments += res.Reattachments
		switch res.Action {
		case ActionPromoted:
			ps.emit(UPD_PROMOTE, res.Tails, "")
		case ActionReattached:
			ps.emit(UPD_REATTACH, res.Tails, "")
		default:
			ps.emit(UPD_NO_ACTION, nil, "")
		}

		if ps.attempt == ps.MaxPromotions {
			ps.attempt = 0
		} else {
			ps.attempt++
		}
		ps.infof("PURSUIT: round finished. %d more rounds until reattach", ps.MaxPromotions-ps.attempt)

		if res.Action != ActionSkipped {
			if err = ps.cooldown(ps.Randomizer.CooldownMin()); err != nil {
				return ps.outcome(StateCancelled, "")
			}
		}
	}
}

func (ps *pursuit) timedOut() bool {
	return ps.deadline > 0 && ps.Clock.Now().Sub(ps.started) > ps.deadline
}

// cooldown sleeps whole minutes one by one
func (ps *pursuit) cooldown(minutes int) error {
	for ; minutes > 0; minutes-- {
		ps.infof("PURSUIT: %d min wait...", minutes)
		if err := ps.Clock.Sleep(ps.ctx, time.Minute); err != nil {
			return err
		}
	}
	return nil
}

func (ps *pursuit) sleepAfterError() {
	_ = ps.Clock.Sleep(ps.ctx, ps.SleepAfterError)
}

func (ps *pursuit) disqualify(err error) *Outcome {
	if ps.Blacklist.Add(ps.bundleHash) {
		ps.warningf("PURSUIT: bundle %v blacklisted: %v", ps.bundleHash, err)
	}
	reason := err.Error()
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) && gwErr.Reason != "" {
		reason = gwErr.Reason
	}
	return ps.outcome(StateDisqualified, reason)
}

func (ps *pursuit) outcome(state State, reason string) *Outcome {
	return &Outcome{
		State:         state,
		BundleHash:    ps.bundleHash,
		TxHash:        ps.txHash,
		Value:         ps.value,
		Started:       ps.started,
		Elapsed:       ps.Clock.Now().Sub(ps.started),
		Rounds:        ps.rounds,
		Promotions:    ps.promotions,
		Reattachments: ps.reattachments,
		Reason:        reason,
	}
}

func (ps *pursuit) emit(updType UpdateType, tails Hashes, reason string) {
	if len(ps.OnUpdate) == 0 {
		return
	}
	nowis := ps.Clock.Now()
	upd := &Update{
		UpdType:       updType,
		Bundle:        ps.bundleHash,
		TxHash:        ps.txHash,
		Value:         ps.value,
		StartTs:       unixMs(ps.started),
		UpdateTs:      unixMs(nowis),
		Attempt:       ps.attempt,
		Round:         ps.rounds,
		Promotions:    ps.promotions,
		Reattachments: ps.reattachments,
		Tails:         tails,
		Reason:        reason,
		ElapsedSec:    int64(nowis.Sub(ps.started) / time.Second),
	}
	for _, h := range ps.OnUpdate {
		h(upd)
	}
}

func (ps *pursuit) report(ret *Outcome) {
	mins := int64(math.Round(ret.Elapsed.Minutes()))
	mi := megaIotas(ret.Value)
	ps.infof("PURSUIT: finished '%v' bundle %v tx %v. Elapsed %v, value %d, rounds %d, promotions %d, reattachments %d",
		ret.State, ret.BundleHash, ret.TxHash, ret.Elapsed, ret.Value, ret.Rounds, ret.Promotions, ret.Reattachments)
	if ps.SummaryLog == nil {
		return
	}
	switch ret.State {
	case StateConfirmed:
		ps.SummaryLog.Infof("Success: %dmin - %dmi: %v", mins, mi, ret.BundleHash)
	case StateTimedOut:
		ps.SummaryLog.Infof("Timeout: %dmin - %dmi: %v", mins, mi, ret.BundleHash)
	case StateDisqualified:
		ps.SummaryLog.Infof("Disqualified: %dmin - %dmi: %v (%s)", mins, mi, ret.BundleHash, ret.Reason)
	}
}

func (ps *pursuit) infof(f string, p ...interface{}) {
	if ps.Log != nil {
		ps.Log.Infof(f, p...)
	}
}

func (ps *pursuit) warningf(f string, p ...interface{}) {
	if ps.Log != nil {
		ps.Log.Warningf(f, p...)
	}
}

func (ps *pursuit) errorf(f string, p ...interface{}) {
	if ps.Log != nil {
		ps.Log.Errorf(f, p...)
	}
}

func unixMs(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

func minutesSince(from, to time.Time) int64 {
	return int64(math.Round(to.Sub(from).Minutes()))
}

// megaIotas rounds to the nearest Mi
func megaIotas(value int64) int64 {
	return int64(math.Round(float64(value) / 1e6))
}
