package pursuit

import (
	"sort"
	"time"

	"github.com/iotaledger/iota.go/transaction"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/unioproject/tbpromoter/lib/gateway"
)

// MaxTails older tails than the newest MaxTails are not promoted nor reattached
const MaxTails = 10

// Snapshot is the state of the bundle as seen by the node at FetchedAt
type Snapshot struct {
	BundleHash   Hash
	Transactions transaction.Transactions
	FetchedAt    time.Time
}

// FetchSnapshot loads all transactions of the bundle, including all reattachments.
// Only failure of the hash lookup is an error, failed trytes chunks are skipped
func FetchSnapshot(gw gateway.Gateway, bundleHash Hash, now time.Time, log *logging.Logger) (*Snapshot, error) {
	hashes, err := gw.FindTransactionHashes(bundleHash)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		BundleHash:   bundleHash,
		Transactions: gateway.GetTransactionsChunked(gw, hashes, log),
		FetchedAt:    now,
	}, nil
}

// Tails returns up to MaxTails tails, most recently attached first
func (s *Snapshot) Tails() []transaction.Transaction {
	ret := make([]transaction.Transaction, 0)
	for i := range s.Transactions {
		if transaction.IsTailTransaction(&s.Transactions[i]) {
			ret = append(ret, s.Transactions[i])
		}
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].AttachmentTimestamp > ret[j].AttachmentTimestamp
	})
	if len(ret) > MaxTails {
		ret = ret[:MaxTails]
	}
	return ret
}

// ActiveTail is the tail to promote: the most recently attached one. Nil if no tails
func (s *Snapshot) ActiveTail() *transaction.Transaction {
	tails := s.Tails()
	if len(tails) == 0 {
		return nil
	}
	return &tails[0]
}

// Value of the transfer: sum of outputs of one attachment
func (s *Snapshot) Value() int64 {
	tail := s.ActiveTail()
	if tail == nil {
		return 0
	}
	var ret int64
	seen := make(map[uint64]bool)
	for _, tx := range s.Transactions {
		if tx.Value <= 0 || seen[tx.CurrentIndex] {
			continue
		}
		seen[tx.CurrentIndex] = true
		ret += tx.Value
	}
	return ret
}
