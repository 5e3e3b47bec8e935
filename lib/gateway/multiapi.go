package gateway

import (
	"math/rand"
	"net/http"
	"sync"
	"time"

	iotaapi "github.com/iotaledger/iota.go/api"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"go.uber.org/ratelimit"
)

type endpointEntry struct {
	api      *iotaapi.API
	provider iotaapi.Provider // raw IRI commands not wrapped by api
	endpoint string
}

// multiAPI is a list of node endpoints. Read calls go to all of them, first result without error wins
type multiAPI []endpointEntry

type callRet struct {
	Endpoint string
	Duration time.Duration
}

func newMultiAPI(endpoints []string, timeoutSec uint64) (multiAPI, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("must be at least 1 endpoint")
	}
	if timeoutSec == 0 {
		return nil, errors.New("timeout must be > 0")
	}
	ret := make(multiAPI, 0, len(endpoints))

	for _, ep := range endpoints {
		settings := iotaapi.HTTPClientSettings{
			URI: ep,
			Client: &http.Client{
				Timeout: time.Duration(timeoutSec) * time.Second,
			},
		}
		api, err := iotaapi.ComposeAPI(settings)
		if err != nil {
			return nil, errors.Wrapf(err, "compose API for %v", ep)
		}
		provider, err := iotaapi.NewHTTPClient(settings)
		if err != nil {
			return nil, errors.Wrapf(err, "http client for %v", ep)
		}
		ret = append(ret, endpointEntry{api: api, provider: provider, endpoint: ep})
	}
	return ret, nil
}

func (mapi multiAPI) first() endpointEntry {
	return mapi[0]
}

type interimResult[T any] struct {
	ret      T
	err      error
	endpoint string
}

// multiCall calls fun on every endpoint in parallel.
// First result without error is returned. If all of them fail, the last error is returned
func multiCall[T any](mapi multiAPI, limiter ratelimit.Limiter, log *logging.Logger, name string,
	fun func(ep *endpointEntry) (T, error), apiret *callRet) (T, error) {

	var zero T
	if len(mapi) == 0 {
		return zero, errors.New("empty multiAPI")
	}
	if limiter != nil {
		limiter.Take()
	}
	started := time.Now()
	if len(mapi) == 1 {
		ret, err := fun(&mapi[0])
		if apiret != nil {
			apiret.Endpoint = mapi[0].endpoint
			apiret.Duration = time.Since(started)
		}
		return ret, err
	}

	rnd := rand.Int() % 10000
	if log != nil {
		log.Debugf("+++++++++++ multiCall %d: '%v'", rnd, name)
	}
	chInterimResult := make(chan *interimResult[T])
	var wg sync.WaitGroup
	for i := range mapi {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			res, err := fun(&mapi[idx])
			chInterimResult <- &interimResult[T]{
				ret:      res,
				err:      err,
				endpoint: mapi[idx].endpoint,
			}
		}(i)
	}
	// each api has http timeout, all goroutines finish anyway
	go func() {
		wg.Wait()
		close(chInterimResult)
	}()

	var result *interimResult[T]
	var waitResult sync.WaitGroup
	waitResult.Add(1)
	go func() {
		var res *interimResult[T]
		var noerr bool
		// reading all results to let all goroutines finish
		for res = range chInterimResult {
			if !noerr && res.err == nil {
				result = res
				noerr = true
				waitResult.Done()
			}
			if !noerr {
				result = res
			}
		}
		if !noerr {
			waitResult.Done()
		}
	}()
	waitResult.Wait()

	if apiret != nil {
		apiret.Endpoint = result.endpoint
		apiret.Duration = time.Since(started)
	}
	if log != nil {
		log.Debugf("+++++++++++ multiCall %d: %v finished '%v', %v err = '%v'",
			rnd, name, result.endpoint, time.Since(started), result.err)
	}
	return result.ret, result.err
}
