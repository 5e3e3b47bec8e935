package gwtest

import (
	"strings"

	"github.com/iotaledger/iota.go/transaction"
	. "github.com/iotaledger/iota.go/trinary"
)

// H makes a hash out of s: s, 'Z' and '9' padding. Different s never give the same hash
func H(s string) Hash {
	if len(s) >= 81 {
		return s[:81]
	}
	return pad(s+"Z", 81)
}

// N is H of the prefix followed by trytes of i. Result is valid trytes
func N(prefix string, i int) Hash {
	return H(prefix + IntToTrytes(int64(i), 4))
}

func pad(s string, n int) Trytes {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat("9", n-len(s))
}

// Tail creates tail transaction of the bundle
func Tail(hash, bundle, address string, value int64, timestampSec uint64, attachedMs int64) transaction.Transaction {
	return transaction.Transaction{
		Hash:                H(hash),
		Bundle:              H(bundle),
		Address:             H(address),
		Value:               value,
		Timestamp:           timestampSec,
		CurrentIndex:        0,
		LastIndex:           1,
		AttachmentTimestamp: attachedMs,
	}
}

// NonTail creates non-tail transaction of the bundle
func NonTail(hash, bundle, address string, value int64, timestampSec uint64, attachedMs int64) transaction.Transaction {
	ret := Tail(hash, bundle, address, value, timestampSec, attachedMs)
	ret.CurrentIndex = 1
	return ret
}

// TxTrytes serializes tx the way the node returns it. Empty fields are filled with '9'
func TxTrytes(tx transaction.Transaction) Trytes {
	tx.SignatureMessageFragment = pad(tx.SignatureMessageFragment, 2187)
	tx.ObsoleteTag = pad(tx.ObsoleteTag, 27)
	tx.Tag = pad(tx.Tag, 27)
	tx.TrunkTransaction = pad(tx.TrunkTransaction, 81)
	tx.BranchTransaction = pad(tx.BranchTransaction, 81)
	tx.Nonce = pad(tx.Nonce, 27)
	return transaction.MustTransactionToTrytes(&tx)
}
