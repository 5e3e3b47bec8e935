// Package discovery finds unconfirmed high value transfers among the current tips
// and starts pursuit of their bundles
package discovery

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/iotaledger/iota.go/transaction"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/unioproject/tbpromoter/lib/gateway"
	"github.com/unioproject/tbpromoter/lib/pursuit"
)

const (
	DefaultValueThreshold     = int64(1000000)
	DefaultMaxAge             = 60 * time.Minute
	DefaultDeadline           = 45 * time.Minute
	DefaultSampleSize         = 1000
	DefaultCycleInterval      = 30 * time.Second
	DefaultMaxPursuits        = 100
	DefaultConfirmedCacheSize = 10000
	DefaultConfirmedCacheTTL  = 2 * time.Hour
)

// Pursuer is implemented by *pursuit.Pursuer
type Pursuer interface {
	Pursue(ctx context.Context, tx *transaction.Transaction, deadline time.Duration) *pursuit.Outcome
}

type Params struct {
	Gateway            gateway.Gateway
	Pursuer            Pursuer
	Blacklist          *pursuit.Blacklist
	InFlight           *pursuit.InFlight
	Clock              pursuit.Clock
	ValueThreshold     int64
	MaxAge             time.Duration
	Deadline           time.Duration
	SampleSize         int
	CycleInterval      time.Duration
	SleepAfterError    time.Duration
	MaxPursuits        int
	ConfirmedCacheSize int
	ConfirmedCacheTTL  time.Duration
	Log                *logging.Logger
	OnOutcome          []func(*pursuit.Outcome)
}

type Scanner struct {
	Params
	pool      *ants.Pool
	confirmed *expirable.LRU[Hash, struct{}]
	wg        sync.WaitGroup
	rndMutex  sync.Mutex
	rnd       *rand.Rand
}

func NewScanner(params Params) (*Scanner, error) {
	if params.Gateway == nil || params.Pursuer == nil {
		return nil, errors.New("NewScanner: gateway and pursuer must be provided")
	}
	if params.Blacklist == nil {
		params.Blacklist = pursuit.NewBlacklist()
	}
	if params.InFlight == nil {
		params.InFlight = pursuit.NewInFlight()
	}
	if params.Clock == nil {
		params.Clock = pursuit.NewClock()
	}
	if params.ValueThreshold <= 0 {
		params.ValueThreshold = DefaultValueThreshold
	}
	if params.MaxAge <= 0 {
		params.MaxAge = DefaultMaxAge
	}
	if params.Deadline <= 0 {
		params.Deadline = DefaultDeadline
	}
	if params.SampleSize <= 0 {
		params.SampleSize = DefaultSampleSize
	}
	if params.CycleInterval <= 0 {
		params.CycleInterval = DefaultCycleInterval
	}
	if params.SleepAfterError <= 0 {
		params.SleepAfterError = pursuit.DefaultSleepAfterError
	}
	if params.MaxPursuits <= 0 {
		params.MaxPursuits = DefaultMaxPursuits
	}
	if params.ConfirmedCacheSize <= 0 {
		params.ConfirmedCacheSize = DefaultConfirmedCacheSize
	}
	if params.ConfirmedCacheTTL <= 0 {
		params.ConfirmedCacheTTL = DefaultConfirmedCacheTTL
	}
	pool, err := ants.NewPool(params.MaxPursuits, ants.WithNonblocking(true))
	if err != nil {
		return nil, errors.Wrap(err, "NewScanner: creating pursuit pool")
	}
	return &Scanner{
		Params:    params,
		pool:      pool,
		confirmed: expirable.NewLRU[Hash, struct{}](params.ConfirmedCacheSize, nil, params.ConfirmedCacheTTL),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run scans tips every CycleInterval until ctx is cancelled.
// Running pursuits are not waited for, see Wait
func (s *Scanner) Run(ctx context.Context) {
	s.infof("DISCOVERY: started. Value threshold %d, max age %v, deadline %v, max pursuits %d",
		s.ValueThreshold, s.MaxAge, s.Deadline, s.MaxPursuits)
	for ctx.Err() == nil {
		wait := s.CycleInterval
		if _, err := s.cycle(ctx); err != nil {
			s.errorf("DISCOVERY: %v", err)
			wait = s.SleepAfterError
		}
		if err := s.Clock.Sleep(ctx, wait); err != nil {
			break
		}
	}
	s.infof("DISCOVERY: stopped")
}

// cycle returns number of pursuits started
func (s *Scanner) cycle(ctx context.Context) (int, error) {
	tips, err := s.Gateway.GetTips()
	if err != nil {
		return 0, errors.Wrap(err, "getTips")
	}
	s.infof("DISCOVERY: found %d tips", len(tips))
	s.shuffle(tips)
	if len(tips) > s.SampleSize {
		tips = tips[:s.SampleSize]
	}
	txs := gateway.GetTransactionsChunked(s.Gateway, tips, s.Log)
	started := 0
	for i := range txs {
		if ctx.Err() != nil {
			break
		}
		if s.Consider(ctx, &txs[i]) {
			started++
		}
	}
	s.debugf("DISCOVERY: cycle finished. Transactions %d, pursuits started %d, running %d",
		len(txs), started, s.pool.Running())
	return started, nil
}

func (s *Scanner) shuffle(hashes Hashes) {
	s.rndMutex.Lock()
	defer s.rndMutex.Unlock()
	s.rnd.Shuffle(len(hashes), func(i, j int) {
		hashes[i], hashes[j] = hashes[j], hashes[i]
	})
}

// Consider starts pursuit of the bundle of tx if it qualifies. Returns true if pursuit started.
// Safe for concurrent use: pushed transactions and tips scanner call it at the same time
func (s *Scanner) Consider(ctx context.Context, tx *transaction.Transaction) bool {
	if tx.Value <= s.ValueThreshold {
		return false
	}
	if s.Clock.Now().Sub(time.Unix(int64(tx.Timestamp), 0)) >= s.MaxAge {
		return false
	}
	if s.Blacklist.Contains(tx.Bundle) || s.confirmed.Contains(tx.Bundle) {
		return false
	}
	if !s.InFlight.TryAcquire(tx.Bundle) {
		return false
	}
	confirmed, err := pursuit.NewTracker(s.Gateway, s.Log).IsConfirmed(tx.Bundle)
	if err != nil || confirmed {
		if confirmed {
			s.confirmed.Add(tx.Bundle, struct{}{})
		}
		s.InFlight.Release(tx.Bundle)
		return false
	}

	txCopy := *tx
	s.wg.Add(1)
	err = s.pool.Submit(func() {
		defer s.wg.Done()
		defer s.InFlight.Release(txCopy.Bundle)
		s.pursue(ctx, &txCopy)
	})
	if err != nil {
		s.wg.Done()
		s.InFlight.Release(tx.Bundle)
		if errors.Is(err, ants.ErrPoolOverload) {
			s.debugf("DISCOVERY: %d pursuits running. Bundle %v left for later", s.pool.Running(), tx.Bundle)
		} else {
			s.errorf("DISCOVERY: submit pursuit of %v: %v", tx.Bundle, err)
		}
		return false
	}
	return true
}

func (s *Scanner) pursue(ctx context.Context, tx *transaction.Transaction) {
	out := s.Pursuer.Pursue(ctx, tx, s.Deadline)
	if out == nil {
		return
	}
	if out.State == pursuit.StateConfirmed {
		s.confirmed.Add(out.BundleHash, struct{}{})
	}
	for _, f := range s.OnOutcome {
		f(out)
	}
}

// Running returns number of running pursuits
func (s *Scanner) Running() int {
	return s.pool.Running()
}

// Wait blocks until all started pursuits end
func (s *Scanner) Wait() {
	s.wg.Wait()
}

// Close waits for pursuits and releases the pool
func (s *Scanner) Close() {
	s.Wait()
	s.pool.Release()
}

func (s *Scanner) debugf(f string, p ...interface{}) {
	if s.Log != nil {
		s.Log.Debugf(f, p...)
	}
}

func (s *Scanner) infof(f string, p ...interface{}) {
	if s.Log != nil {
		s.Log.Infof(f, p...)
	}
}

func (s *Scanner) errorf(f string, p ...interface{}) {
	if s.Log != nil {
		s.Log.Errorf(f, p...)
	}
}
