package main

import (
	"context"
	"net/http"
	"path"
	"time"

	"github.com/iotaledger/iota.go/transaction"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/pkg/errors"
	"github.com/unioproject/tbpromoter/lib/audit"
	"github.com/unioproject/tbpromoter/lib/discovery"
	"github.com/unioproject/tbpromoter/lib/gateway"
	"github.com/unioproject/tbpromoter/lib/nanomsg"
	"github.com/unioproject/tbpromoter/lib/pursuit"
	"github.com/unioproject/tbpromoter/lib/stats"
	"github.com/unioproject/tbpromoter/lib/zmqfeed"
	"golang.org/x/sync/errgroup"
)

const (
	publisherBufferLen = 100
	shutdownTimeout    = 5 * time.Second
)

type promoter struct {
	gw            *gateway.IotaGateway
	blacklist     *pursuit.Blacklist
	inFlight      *pursuit.InFlight
	pursuer       *pursuit.Pursuer
	publisher     *nanomsg.Publisher
	auditStore    *audit.Store
	confStats     *stats.Collector
	metricsServer *http.Server
}

func newPromoter() (*promoter, error) {
	ret := &promoter{
		blacklist: pursuit.NewBlacklist(),
		inFlight:  pursuit.NewInFlight(),
		confStats: stats.NewCollector(stats.DefaultRetention, nil),
	}
	var err error
	ret.gw, err = gateway.NewIotaGateway(gateway.IotaGatewayParams{
		Endpoints:      Config.Iota.IOTANode,
		TimeoutSec:     Config.Iota.TimeoutAPI,
		CallsPerSecond: Config.Iota.CallsPerSecond,
		MWM:            Config.Iota.MWM,
		AddressPromote: Hash(Config.Iota.AddressPromote),
		TxTagPromote:   Trytes(Config.Iota.TxTagPromote),
		Log:            log,
		AEC:            AEC,
		DebugMultiCall: Config.Iota.DebugMultiCalls,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating IOTA gateway")
	}
	log.Infof("IOTA nodes: %v, API timeout %d sec", Config.Iota.IOTANode, Config.Iota.TimeoutAPI)

	handlers := []pursuit.UpdateHandler{ret.recordStats}
	if Config.Publisher.Enabled {
		ret.publisher, err = nanomsg.NewPublisher(Config.Publisher.OutputPort, publisherBufferLen, log)
		if err != nil {
			return nil, errors.Wrap(err, "creating update publisher")
		}
		handlers = append(handlers, ret.publish)
	} else {
		log.Infof("Update publisher is DISABLED")
	}
	if Config.Audit.Enabled {
		ret.auditStore, err = audit.Open(path.Join(Config.siteDataDir, Config.Audit.DbFile), log)
		if err != nil {
			ret.close()
			return nil, err
		}
	}
	if Config.Prometheus.Enabled {
		initMetrics(ret.blacklist, ret.inFlight)
		handlers = append(handlers, updateMetrics)
		ret.metricsServer = newMetricsServer(Config.Prometheus.ScrapeTargetPort, ret.confStats)
	} else {
		log.Infof("Prometheus metrics are DISABLED")
	}

	ret.pursuer, err = pursuit.NewPursuer(pursuit.Params{
		Gateway:         ret.gw,
		Blacklist:       ret.blacklist,
		MaxPromotions:   Config.Pursuit.MaxPromotions,
		SleepAfterError: time.Duration(Config.Pursuit.SleepAfterErrSec) * time.Second,
		Log:             log,
		SummaryLog:      summaryLog,
		OnUpdate:        handlers,
	})
	if err != nil {
		ret.close()
		return nil, err
	}
	return ret, nil
}

func (p *promoter) publish(upd *pursuit.Update) {
	if err := p.publisher.PublishAsJSON(upd); err != nil {
		log.Errorf("Publisher: %v", err)
	}
}

func (p *promoter) recordStats(upd *pursuit.Update) {
	if upd.UpdType == pursuit.UPD_CONFIRM {
		p.confStats.Record(time.Duration(upd.ElapsedSec) * time.Second)
	}
}

func (p *promoter) onOutcome(out *pursuit.Outcome) {
	if p.auditStore != nil {
		p.auditStore.OnOutcome(out)
	}
}

func (p *promoter) close() {
	p.publisher.Close()
	if p.auditStore != nil {
		if err := p.auditStore.Close(); err != nil {
			log.Errorf("closing audit store: %v", err)
		}
	}
}

// run runs work and the metrics server until work ends or ctx is cancelled
func (p *promoter) run(ctx context.Context, work func(ctx context.Context) error) error {
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(workCtx)
	g.Go(func() error {
		defer cancel()
		return work(gctx)
	})
	if p.metricsServer != nil {
		g.Go(func() error {
			log.Infof("Exposing Prometheus metrics and stats on %v", p.metricsServer.Addr)
			if err := p.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return p.metricsServer.Shutdown(sctx)
		})
	}
	return g.Wait()
}

// pursueSingle pursues bundle of the transaction with single-bundle deadline
func (p *promoter) pursueSingle(txHash Hash) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		txs, err := p.gw.GetTransactions(Hashes{txHash})
		if err != nil {
			return errors.Wrapf(err, "loading transaction %v", txHash)
		}
		if len(txs) == 0 {
			return errors.Errorf("transaction %v not found", txHash)
		}
		log.Infof("------------------------Start------------------------")
		out := p.pursuer.Pursue(ctx, &txs[0], minutes(Config.Pursuit.SingleDeadlineMin))
		p.onOutcome(out)
		log.Infof("------------------------Finish------------------------")
		return nil
	}
}

// discover scans tips and listens to ZMQ inputs until ctx is cancelled
func (p *promoter) discover(ctx context.Context) error {
	scanner, err := discovery.NewScanner(discovery.Params{
		Gateway:            p.gw,
		Pursuer:            p.pursuer,
		Blacklist:          p.blacklist,
		InFlight:           p.inFlight,
		ValueThreshold:     Config.Discovery.ValueThreshold,
		MaxAge:             minutes(Config.Discovery.MaxAgeMin),
		Deadline:           minutes(Config.Discovery.DeadlineMin),
		SampleSize:         Config.Discovery.SampleSize,
		CycleInterval:      time.Duration(Config.Discovery.CycleSec) * time.Second,
		SleepAfterError:    time.Duration(Config.Pursuit.SleepAfterErrSec) * time.Second,
		MaxPursuits:        Config.Discovery.MaxPursuits,
		ConfirmedCacheSize: Config.Discovery.ConfirmedCacheSize,
		ConfirmedCacheTTL:  minutes(Config.Discovery.ConfirmedCacheTTLMin),
		Log:                log,
		OnOutcome:          []func(*pursuit.Outcome){p.onOutcome},
	})
	if err != nil {
		return err
	}
	defer scanner.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scanner.Run(gctx)
		return nil
	})
	for _, uri := range Config.Discovery.InputsZMQ {
		feed := zmqfeed.NewFeed(uri, func(tx *transaction.Transaction) {
			scanner.Consider(gctx, tx)
		}, log)
		g.Go(func() error {
			feed.RunWithReconnect(gctx, 0)
			return nil
		})
	}
	err = g.Wait()
	log.Infof("Waiting for %d running pursuits to finish", scanner.Running())
	return err
}
