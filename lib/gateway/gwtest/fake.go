// Package gwtest provides in-memory Gateway for tests
package gwtest

import (
	"sort"
	"sync"

	"github.com/iotaledger/iota.go/transaction"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/unioproject/tbpromoter/lib/gateway"
)

type Call struct {
	Op    string
	Hash  Hash
	Depth uint64
	Count int // number of hashes for batch calls
}

// Fake keeps transactions and inclusion states in maps and records every call.
// Error hooks, when set, are consulted before the call is served
type Fake struct {
	sync.Mutex
	Txs             map[Hash]transaction.Transaction
	States          map[Hash]bool
	Tips            Hashes
	NotPromotable   map[Hash]bool
	NotReattachable map[Hash]bool

	FindErr      func(bundleHash Hash) error
	TrytesErr    func(hashes Hashes) error
	InclusionErr func(hashes Hashes) error
	TipsErr      func() error
	PromoteErr   func(tailHash Hash) error
	ReattachErr  func(tailHash Hash) error
	// OnReattach is called after successful reattachment, e.g. to add new tail
	OnReattach func(f *Fake, tailHash Hash)

	calls []Call
}

func New() *Fake {
	return &Fake{
		Txs:             make(map[Hash]transaction.Transaction),
		States:          make(map[Hash]bool),
		NotPromotable:   make(map[Hash]bool),
		NotReattachable: make(map[Hash]bool),
	}
}

// AddTx stores the transaction. Caller holds no lock
func (f *Fake) AddTx(tx transaction.Transaction) {
	f.Lock()
	defer f.Unlock()
	f.Txs[tx.Hash] = tx
}

func (f *Fake) SetState(hash Hash, confirmed bool) {
	f.Lock()
	defer f.Unlock()
	f.States[hash] = confirmed
}

func (f *Fake) record(c Call) {
	f.calls = append(f.calls, c)
}

func (f *Fake) Calls() []Call {
	f.Lock()
	defer f.Unlock()
	ret := make([]Call, len(f.calls))
	copy(ret, f.calls)
	return ret
}

func (f *Fake) CallsOf(op string) []Call {
	ret := make([]Call, 0)
	for _, c := range f.Calls() {
		if c.Op == op {
			ret = append(ret, c)
		}
	}
	return ret
}

func (f *Fake) FindTransactionHashes(bundleHash Hash) (Hashes, error) {
	f.Lock()
	defer f.Unlock()
	f.record(Call{Op: gateway.OpFindTransactions, Hash: bundleHash})
	if f.FindErr != nil {
		if err := f.FindErr(bundleHash); err != nil {
			return nil, err
		}
	}
	ret := make(Hashes, 0)
	for h, tx := range f.Txs {
		if tx.Bundle == bundleHash {
			ret = append(ret, h)
		}
	}
	sort.Strings(ret)
	return ret, nil
}

func (f *Fake) GetTransactions(hashes Hashes) (transaction.Transactions, error) {
	f.Lock()
	defer f.Unlock()
	f.record(Call{Op: gateway.OpGetTrytes, Count: len(hashes)})
	if f.TrytesErr != nil {
		if err := f.TrytesErr(hashes); err != nil {
			return nil, err
		}
	}
	ret := make(transaction.Transactions, 0, len(hashes))
	for _, h := range hashes {
		if tx, ok := f.Txs[h]; ok {
			ret = append(ret, tx)
		}
	}
	return ret, nil
}

func (f *Fake) GetInclusionStates(hashes Hashes) (map[Hash]bool, error) {
	f.Lock()
	defer f.Unlock()
	f.record(Call{Op: gateway.OpGetInclusionStates, Count: len(hashes)})
	if f.InclusionErr != nil {
		if err := f.InclusionErr(hashes); err != nil {
			return nil, err
		}
	}
	ret := make(map[Hash]bool, len(hashes))
	for _, h := range hashes {
		ret[h] = f.States[h]
	}
	return ret, nil
}

func (f *Fake) GetTips() (Hashes, error) {
	f.Lock()
	defer f.Unlock()
	f.record(Call{Op: gateway.OpGetTips})
	if f.TipsErr != nil {
		if err := f.TipsErr(); err != nil {
			return nil, err
		}
	}
	ret := make(Hashes, len(f.Tips))
	copy(ret, f.Tips)
	return ret, nil
}

func (f *Fake) IsPromotable(tailHash Hash) (bool, error) {
	f.Lock()
	defer f.Unlock()
	f.record(Call{Op: gateway.OpCheckConsistency, Hash: tailHash})
	return !f.NotPromotable[tailHash], nil
}

func (f *Fake) IsReattachable(address Hash) (bool, error) {
	f.Lock()
	defer f.Unlock()
	f.record(Call{Op: gateway.OpIsReattachable, Hash: address})
	return !f.NotReattachable[address], nil
}

func (f *Fake) Promote(tailHash Hash, depth uint64) error {
	f.Lock()
	defer f.Unlock()
	f.record(Call{Op: gateway.OpPromote, Hash: tailHash, Depth: depth})
	if f.PromoteErr != nil {
		return f.PromoteErr(tailHash)
	}
	return nil
}

func (f *Fake) Reattach(tailHash Hash, depth uint64) error {
	f.Lock()
	f.record(Call{Op: gateway.OpReattach, Hash: tailHash, Depth: depth})
	if f.ReattachErr != nil {
		if err := f.ReattachErr(tailHash); err != nil {
			f.Unlock()
			return err
		}
	}
	onReattach := f.OnReattach
	f.Unlock()
	if onReattach != nil {
		onReattach(f, tailHash)
	}
	return nil
}
