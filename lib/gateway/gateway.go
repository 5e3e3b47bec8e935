package gateway

import (
	"github.com/iotaledger/iota.go/transaction"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
)

// MaxBatch is the max number of hashes the node accepts in one getTrytes/getInclusionStates call
const MaxBatch = 1000

// Gateway is everything the promoter needs from an IOTA node.
// Implementations must return errors which can be classified with KindOf
type Gateway interface {
	FindTransactionHashes(bundleHash Hash) (Hashes, error)
	GetTransactions(hashes Hashes) (transaction.Transactions, error)
	GetInclusionStates(hashes Hashes) (map[Hash]bool, error)
	GetTips() (Hashes, error)
	IsPromotable(tailHash Hash) (bool, error)
	IsReattachable(address Hash) (bool, error)
	Promote(tailHash Hash, depth uint64) error
	Reattach(tailHash Hash, depth uint64) error
}

// Chunks splits hashes into consecutive pieces of at most size elements
func Chunks(hashes Hashes, size int) []Hashes {
	if size <= 0 {
		size = MaxBatch
	}
	ret := make([]Hashes, 0, len(hashes)/size+1)
	for i := 0; i < len(hashes); i += size {
		upper := i + size
		if upper > len(hashes) {
			upper = len(hashes)
		}
		ret = append(ret, hashes[i:upper])
	}
	return ret
}

// GetTransactionsChunked loads transactions in pieces of MaxBatch.
// Failed chunk is logged and skipped, the rest is returned
func GetTransactionsChunked(gw Gateway, hashes Hashes, log *logging.Logger) transaction.Transactions {
	ret := make(transaction.Transactions, 0, len(hashes))
	for _, chunk := range Chunks(hashes, MaxBatch) {
		txs, err := gw.GetTransactions(chunk)
		if err != nil {
			if log != nil {
				log.Errorf("GetTransactions: chunk of %d hashes skipped: %v", len(chunk), err)
			}
			continue
		}
		ret = append(ret, txs...)
	}
	return ret
}

// GetInclusionStatesChunked same as GetTransactionsChunked for inclusion states
func GetInclusionStatesChunked(gw Gateway, hashes Hashes, log *logging.Logger) map[Hash]bool {
	ret := make(map[Hash]bool, len(hashes))
	for _, chunk := range Chunks(hashes, MaxBatch) {
		states, err := gw.GetInclusionStates(chunk)
		if err != nil {
			if log != nil {
				log.Errorf("GetInclusionStates: chunk of %d hashes skipped: %v", len(chunk), err)
			}
			continue
		}
		for h, s := range states {
			ret[h] = s
		}
	}
	return ret
}
