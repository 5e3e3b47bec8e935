package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unioproject/tbpromoter/lib/pursuit"
	"github.com/unioproject/tbpromoter/lib/stats"
)

var (
	pursuitCounter      prometheus.Counter
	outcomeCounter      *prometheus.CounterVec
	actionCounter       *prometheus.CounterVec
	confDurationCounter prometheus.Counter
	inFlightGauge       prometheus.GaugeFunc
	blacklistGauge      prometheus.GaugeFunc
	apiErrorCounter     *prometheus.CounterVec
)

// apiErrorCount counts IOTA API errors per endpoint
type apiErrorCount struct{}

func (*apiErrorCount) CheckError(endpoint string, err error) bool {
	if err == nil {
		return false
	}
	if endpoint == "" {
		endpoint = "general"
	}
	if apiErrorCounter != nil {
		apiErrorCounter.With(prometheus.Labels{"endpoint": endpoint}).Inc()
	}
	return true
}

var AEC = &apiErrorCount{}

func initMetrics(blacklist *pursuit.Blacklist, inFlight *pursuit.InFlight) {
	pursuitCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tbpromoter_pursuit_counter",
		Help: "Increases every time pursuit of a bundle starts",
	})
	outcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tbpromoter_outcome_counter",
		Help: "Finished pursuits. Labeled by outcome",
	}, []string{"outcome"})
	actionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tbpromoter_action_counter",
		Help: "Successful promotions and reattachments",
	}, []string{"action"})
	confDurationCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tbpromoter_confirmation_duration_counter",
		Help: "Sums up durations of confirmed pursuits, seconds",
	})
	inFlightGauge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tbpromoter_in_flight",
		Help: "Bundles under pursuit",
	}, func() float64 {
		return float64(inFlight.Len())
	})
	blacklistGauge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tbpromoter_blacklisted",
		Help: "Bundles which can't be confirmed",
	}, func() float64 {
		return float64(blacklist.Len())
	})
	apiErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tbpromoter_iota_api_error_counter",
		Help: "Increases every time IOTA API returns an error",
	}, []string{"endpoint"})

	prometheus.MustRegister(pursuitCounter)
	prometheus.MustRegister(outcomeCounter)
	prometheus.MustRegister(actionCounter)
	prometheus.MustRegister(confDurationCounter)
	prometheus.MustRegister(inFlightGauge)
	prometheus.MustRegister(blacklistGauge)
	prometheus.MustRegister(apiErrorCounter)
}

func newMetricsServer(port int, confStats *stats.Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/stats", confStats.Handler)
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
}

func updateMetrics(upd *pursuit.Update) {
	switch upd.UpdType {
	case pursuit.UPD_START:
		pursuitCounter.Inc()
	case pursuit.UPD_PROMOTE:
		actionCounter.With(prometheus.Labels{"action": "promote"}).Add(float64(len(upd.Tails)))
	case pursuit.UPD_REATTACH:
		actionCounter.With(prometheus.Labels{"action": "reattach"}).Inc()
	case pursuit.UPD_CONFIRM:
		outcomeCounter.With(prometheus.Labels{"outcome": string(pursuit.StateConfirmed)}).Inc()
		confDurationCounter.Add(float64(upd.ElapsedSec))
	case pursuit.UPD_TIMEOUT:
		outcomeCounter.With(prometheus.Labels{"outcome": string(pursuit.StateTimedOut)}).Inc()
	case pursuit.UPD_DISQUALIFIED:
		outcomeCounter.With(prometheus.Labels{"outcome": string(pursuit.StateDisqualified)}).Inc()
	case pursuit.UPD_CANCELLED:
		outcomeCounter.With(prometheus.Labels{"outcome": string(pursuit.StateCancelled)}).Inc()
	}
}
