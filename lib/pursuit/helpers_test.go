package pursuit

import (
	"fmt"

	"github.com/iotaledger/iota.go/transaction"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/unioproject/tbpromoter/lib/gateway/gwtest"
)

type fixedRandomizer struct {
	depth    uint64
	cooldown int
}

func (r fixedRandomizer) Depth() uint64 {
	return r.depth
}

func (r fixedRandomizer) CooldownMin() int {
	return r.cooldown
}

var (
	testBundle = gwtest.H("BUNDLE")
	testAddr   = gwtest.H("ADDR")
)

// bundleWithTails stores n attachments of a two-transaction bundle.
// Tail i is attached i seconds after the first one
func bundleWithTails(gw *gwtest.Fake, n int, value int64) Hashes {
	ret := make(Hashes, 0, n)
	for i := 0; i < n; i++ {
		tail := gwtest.Tail(fmt.Sprintf("TAIL%d", i), "BUNDLE", "ADDR", 0, 1000, int64(1000+i)*1000)
		out := gwtest.NonTail(fmt.Sprintf("OUT%d", i), "BUNDLE", "DEST", value, 1000, int64(1000+i)*1000)
		gw.AddTx(tail)
		gw.AddTx(out)
		ret = append(ret, tail.Hash)
	}
	return ret
}

func snapshotOf(gw *gwtest.Fake) *Snapshot {
	txs := make(transaction.Transactions, 0, len(gw.Txs))
	for _, tx := range gw.Txs {
		txs = append(txs, tx)
	}
	return &Snapshot{BundleHash: testBundle, Transactions: txs}
}
