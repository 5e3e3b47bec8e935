package pursuit

import (
	"github.com/iotaledger/iota.go/transaction"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/unioproject/tbpromoter/lib/gateway"
)

const DefaultMaxPromotions = 5

type Action int

const (
	ActionSkipped Action = iota
	ActionPromoted
	ActionReattached
)

func (a Action) String() string {
	switch a {
	case ActionSkipped:
		return "skipped"
	case ActionPromoted:
		return "promoted"
	case ActionReattached:
		return "reattached"
	}
	return "???"
}

// Result of one round of the strategy
type Result struct {
	Action        Action
	Promotions    int
	Reattachments int
	Tails         Hashes // tails promoted or reattached
}

// Strategy promotes the newest tails for MaxPromotions rounds, then reattaches
type Strategy struct {
	gw            gateway.Gateway
	rnd           Randomizer
	maxPromotions int
	log           *logging.Logger
}

func NewStrategy(gw gateway.Gateway, rnd Randomizer, maxPromotions int, log *logging.Logger) *Strategy {
	if maxPromotions <= 0 {
		maxPromotions = DefaultMaxPromotions
	}
	if rnd == nil {
		rnd = NewRandomizer()
	}
	return &Strategy{
		gw:            gw,
		rnd:           rnd,
		maxPromotions: maxPromotions,
		log:           log,
	}
}

func (s *Strategy) MaxPromotions() int {
	return s.maxPromotions
}

// Act does one round. The only error returned is a fatal one: the bundle can't be confirmed.
// All other errors are logged and the round continues with the next tail
func (s *Strategy) Act(snap *Snapshot, attempt int) (Result, error) {
	tails := snap.Tails()
	if attempt < s.maxPromotions {
		return s.promote(tails)
	}
	return s.reattach(tails)
}

func (s *Strategy) promote(tails []transaction.Transaction) (Result, error) {
	ret := Result{Action: ActionSkipped}
	for i := range tails {
		tail := &tails[i]
		promotable, err := s.gw.IsPromotable(tail.Hash)
		if err != nil {
			if gateway.IsFatal(err) {
				return ret, err
			}
			s.report("promotability check", tail.Hash, err)
			continue
		}
		if !promotable {
			s.debugf("STRATEGY: tail %v is not promotable", tail.Hash)
			continue
		}
		depth := s.rnd.Depth()
		s.infof("STRATEGY: promoting tx %v, depth = %d", tail.Hash, depth)
		if err = s.gw.Promote(tail.Hash, depth); err != nil {
			if gateway.IsFatal(err) {
				return ret, err
			}
			s.report("promotion", tail.Hash, err)
			continue
		}
		s.infof("STRATEGY: promoted successfully %v", tail.Hash)
		ret.Action = ActionPromoted
		ret.Promotions++
		ret.Tails = append(ret.Tails, tail.Hash)
	}
	return ret, nil
}

// one successful reattachment per round is enough: the new tail supersedes the old ones
func (s *Strategy) reattach(tails []transaction.Transaction) (Result, error) {
	ret := Result{Action: ActionSkipped}
	for i := range tails {
		tail := &tails[i]
		reattachable, err := s.gw.IsReattachable(tail.Address)
		if err != nil {
			if gateway.IsFatal(err) {
				return ret, err
			}
			s.report("reattachability check", tail.Hash, err)
			continue
		}
		if !reattachable {
			s.debugf("STRATEGY: address %v of tail %v is not reattachable", tail.Address, tail.Hash)
			continue
		}
		depth := s.rnd.Depth()
		s.infof("STRATEGY: reattaching tx %v, depth = %d", tail.Hash, depth)
		if err = s.gw.Reattach(tail.Hash, depth); err != nil {
			if gateway.IsFatal(err) {
				s.errorf("STRATEGY: reattach of %v: %v", tail.Hash, err)
				return ret, err
			}
			s.report("reattachment", tail.Hash, err)
			continue
		}
		s.infof("STRATEGY: reattached successfully %v", tail.Hash)
		ret.Action = ActionReattached
		ret.Reattachments = 1
		ret.Tails = append(ret.Tails, tail.Hash)
		break
	}
	return ret, nil
}

// tip selection race is expected with many promoters around, not an anomaly
func (s *Strategy) report(what string, tailHash Hash, err error) {
	if gateway.IsRace(err) {
		s.infof("STRATEGY: %s of %v: %v. Will retry next round", what, tailHash, err)
		return
	}
	s.warningf("STRATEGY: %s of %v failed: %v", what, tailHash, err)
}

func (s *Strategy) debugf(f string, p ...interface{}) {
	if s.log != nil {
		s.log.Debugf(f, p...)
	}
}

func (s *Strategy) infof(f string, p ...interface{}) {
	if s.log != nil {
		s.log.Infof(f, p...)
	}
}

func (s *Strategy) warningf(f string, p ...interface{}) {
	if s.log != nil {
		s.log.Warningf(f, p...)
	}
}

func (s *Strategy) errorf(f string, p ...interface{}) {
	if s.log != nil {
		s.log.Errorf(f, p...)
	}
}
