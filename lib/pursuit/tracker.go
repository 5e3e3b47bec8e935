package pursuit

import (
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/unioproject/tbpromoter/lib/gateway"
)

// Tracker checks if the bundle is confirmed.
// Bundle is confirmed if any of its transactions (any reattachment) is included
type Tracker struct {
	gw  gateway.Gateway
	log *logging.Logger
}

func NewTracker(gw gateway.Gateway, log *logging.Logger) *Tracker {
	return &Tracker{gw: gw, log: log}
}

func (tr *Tracker) IsConfirmed(bundleHash Hash) (bool, error) {
	hashes, err := tr.gw.FindTransactionHashes(bundleHash)
	if err != nil {
		if tr.log != nil {
			tr.log.Errorf("TRACKER: find transactions of bundle %v: %v", bundleHash, err)
		}
		return false, err
	}
	return AnyConfirmed(gateway.GetInclusionStatesChunked(tr.gw, hashes, tr.log)), nil
}

// AnyConfirmed is true if at least one state is true. Empty map is not confirmed
func AnyConfirmed(states map[Hash]bool) bool {
	for _, confirmed := range states {
		if confirmed {
			return true
		}
	}
	return false
}
