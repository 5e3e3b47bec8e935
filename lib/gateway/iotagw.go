package gateway

import (
	"strings"

	iotaapi "github.com/iotaledger/iota.go/api"
	"github.com/iotaledger/iota.go/bundle"
	"github.com/iotaledger/iota.go/transaction"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"go.uber.org/ratelimit"
)

const (
	OpFindTransactions   = "findTransactions"
	OpGetTrytes          = "getTrytes"
	OpGetInclusionStates = "getInclusionStates"
	OpGetTips            = "getTips"
	OpCheckConsistency   = "checkConsistency"
	OpIsReattachable     = "isReattachable"
	OpPromote            = "promoteTransaction"
	OpReattach           = "replayBundle"
)

const defaultMWM = 14

// ErrorCounter accounts API errors per endpoint. Returns true if err != nil
type ErrorCounter interface {
	CheckError(endpoint string, err error) bool
}

type DummyAEC struct{}

func (*DummyAEC) CheckError(endpoint string, err error) bool {
	return err != nil
}

type IotaGatewayParams struct {
	Endpoints      []string
	TimeoutSec     uint64
	CallsPerSecond int // 0 means unlimited
	MWM            uint64
	AddressPromote Hash
	TxTagPromote   Trytes
	Log            *logging.Logger
	AEC            ErrorCounter
	DebugMultiCall bool
}

// IotaGateway implements Gateway with iota.go API over one or more IRI nodes
type IotaGateway struct {
	IotaGatewayParams
	mapi    multiAPI
	limiter ratelimit.Limiter
}

func NewIotaGateway(params IotaGatewayParams) (*IotaGateway, error) {
	mapi, err := newMultiAPI(params.Endpoints, params.TimeoutSec)
	if err != nil {
		return nil, err
	}
	if params.MWM == 0 {
		params.MWM = defaultMWM
	}
	if params.AEC == nil {
		params.AEC = &DummyAEC{}
	}
	var limiter ratelimit.Limiter
	if params.CallsPerSecond > 0 {
		limiter = ratelimit.New(params.CallsPerSecond)
	} else {
		limiter = ratelimit.NewUnlimited()
	}
	return &IotaGateway{
		IotaGatewayParams: params,
		mapi:              mapi,
		limiter:           limiter,
	}, nil
}

func (gw *IotaGateway) multiLog() *logging.Logger {
	if gw.DebugMultiCall {
		return gw.Log
	}
	return nil
}

func (gw *IotaGateway) FindTransactionHashes(bundleHash Hash) (Hashes, error) {
	var apiret callRet
	ret, err := multiCall(gw.mapi, gw.limiter, gw.multiLog(), OpFindTransactions,
		func(ep *endpointEntry) (Hashes, error) {
			return ep.api.FindTransactions(iotaapi.FindTransactionsQuery{Bundles: Hashes{bundleHash}})
		}, &apiret)
	if gw.AEC.CheckError(apiret.Endpoint, err) {
		return nil, Classify(OpFindTransactions, err)
	}
	return ret, nil
}

func (gw *IotaGateway) GetTransactions(hashes Hashes) (transaction.Transactions, error) {
	if len(hashes) > MaxBatch {
		return nil, Classify(OpGetTrytes, errors.Errorf("too many hashes: %d > %d", len(hashes), MaxBatch))
	}
	var apiret callRet
	rawTrytes, err := multiCall(gw.mapi, gw.limiter, gw.multiLog(), OpGetTrytes,
		func(ep *endpointEntry) ([]Trytes, error) {
			return ep.api.GetTrytes(hashes...)
		}, &apiret)
	if gw.AEC.CheckError(apiret.Endpoint, err) {
		return nil, Classify(OpGetTrytes, err)
	}
	ret := make(transaction.Transactions, 0, len(rawTrytes))
	for i := range rawTrytes {
		if isAll9(rawTrytes[i]) {
			continue // unknown to the node
		}
		var tx *transaction.Transaction
		if i < len(hashes) {
			tx, err = transaction.AsTransactionObject(rawTrytes[i], hashes[i])
		} else {
			tx, err = transaction.AsTransactionObject(rawTrytes[i])
		}
		if err != nil {
			return nil, Classify(OpGetTrytes, err)
		}
		ret = append(ret, *tx)
	}
	return ret, nil
}

func (gw *IotaGateway) GetInclusionStates(hashes Hashes) (map[Hash]bool, error) {
	var apiret callRet
	states, err := multiCall(gw.mapi, gw.limiter, gw.multiLog(), OpGetInclusionStates,
		func(ep *endpointEntry) ([]bool, error) {
			return ep.api.GetLatestInclusion(hashes)
		}, &apiret)
	if gw.AEC.CheckError(apiret.Endpoint, err) {
		return nil, Classify(OpGetInclusionStates, err)
	}
	if len(states) != len(hashes) {
		return nil, Classify(OpGetInclusionStates,
			errors.Errorf("expected %d states, got %d", len(hashes), len(states)))
	}
	ret := make(map[Hash]bool, len(hashes))
	for i, h := range hashes {
		ret[h] = states[i]
	}
	return ret, nil
}

func (gw *IotaGateway) GetTips() (Hashes, error) {
	var apiret callRet
	ret, err := multiCall(gw.mapi, gw.limiter, gw.multiLog(), OpGetTips,
		func(ep *endpointEntry) (Hashes, error) {
			return ep.getTips()
		}, &apiret)
	if gw.AEC.CheckError(apiret.Endpoint, err) {
		return nil, Classify(OpGetTips, err)
	}
	return ret, nil
}

type getTipsResponse struct {
	Hashes Hashes `json:"hashes"`
}

// getTips is sent through the provider: iota.go API has no wrapper for it
func (ep *endpointEntry) getTips() (Hashes, error) {
	rsp := &getTipsResponse{}
	if err := ep.provider.Send(&iotaapi.Command{Command: OpGetTips}, rsp); err != nil {
		return nil, err
	}
	return rsp.Hashes, nil
}

type consistencyResult struct {
	consistent bool
	info       string
}

func (gw *IotaGateway) IsPromotable(tailHash Hash) (bool, error) {
	var apiret callRet
	res, err := multiCall(gw.mapi, gw.limiter, gw.multiLog(), OpCheckConsistency,
		func(ep *endpointEntry) (consistencyResult, error) {
			consistent, info, err := ep.api.CheckConsistency(tailHash)
			return consistencyResult{consistent: consistent, info: info}, err
		}, &apiret)
	if gw.AEC.CheckError(apiret.Endpoint, err) {
		return false, Classify(OpCheckConsistency, err)
	}
	if !res.consistent && strings.Contains(res.info, "not solid") {
		return true, nil
	}
	if !res.consistent && gw.Log != nil {
		gw.Log.Debugf("tail %v is not promotable. Reason: %v", tailHash, res.info)
	}
	return res.consistent, nil
}

// IsReattachable address is not reattachable when a confirmed transaction already spends from it
func (gw *IotaGateway) IsReattachable(address Hash) (bool, error) {
	var apiret callRet
	hashes, err := multiCall(gw.mapi, gw.limiter, gw.multiLog(), OpIsReattachable,
		func(ep *endpointEntry) (Hashes, error) {
			return ep.api.FindTransactions(iotaapi.FindTransactionsQuery{Addresses: Hashes{address}})
		}, &apiret)
	if gw.AEC.CheckError(apiret.Endpoint, err) {
		return false, Classify(OpIsReattachable, err)
	}
	spending := make(Hashes, 0)
	for _, chunk := range Chunks(hashes, MaxBatch) {
		txs, err := gw.GetTransactions(chunk)
		if err != nil {
			return false, Classify(OpIsReattachable, err)
		}
		for i := range txs {
			if txs[i].Value < 0 {
				spending = append(spending, txs[i].Hash)
			}
		}
	}
	for _, chunk := range Chunks(spending, MaxBatch) {
		states, err := gw.GetInclusionStates(chunk)
		if err != nil {
			return false, Classify(OpIsReattachable, err)
		}
		for _, confirmed := range states {
			if confirmed {
				return false, nil
			}
		}
	}
	return true, nil
}

// Promote attaches zero value transfer to the promotion address, referencing the tail
func (gw *IotaGateway) Promote(tailHash Hash, depth uint64) error {
	gw.limiter.Take()
	ep := gw.mapi.first()
	transfers := bundle.Transfers{{
		Address: gw.AddressPromote,
		Value:   0,
		Tag:     gw.TxTagPromote,
	}}
	_, err := ep.api.PromoteTransaction(tailHash, depth, gw.MWM, transfers, iotaapi.PromoteTransactionOptions{})
	if gw.AEC.CheckError(ep.endpoint, err) {
		return Classify(OpPromote, err)
	}
	return nil
}

// Reattach replays the bundle of the tail on top of freshly selected tips
func (gw *IotaGateway) Reattach(tailHash Hash, depth uint64) error {
	gw.limiter.Take()
	ep := gw.mapi.first()
	_, err := ep.api.ReplayBundle(tailHash, depth, gw.MWM)
	if gw.AEC.CheckError(ep.endpoint, err) {
		return Classify(OpReattach, err)
	}
	return nil
}

func isAll9(s Trytes) bool {
	return len(s) > 0 && strings.Trim(s, "9") == ""
}
