// Package stats collects confirmation durations of pursuits and serves statistics over them
package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const DefaultRetention = 24 * time.Hour

// JSON returned by the stats handler
type statsResponse struct {
	Nowis     int64     `json:"nowis"` // unix time in miliseconds
	Last24h   ConfStats `json:"24h"`
	Last1h    ConfStats `json:"1h"`
	Last10min ConfStats `json:"10min"`
}

// ConfStats durations are in minutes
type ConfStats struct {
	Since        int64   `json:"since"`      // unix time in miliseconds of the oldest sample
	NumSamples   int     `json:"numSamples"` // number of confirmations (samples) collected
	Minimum      float64 `json:"min"`
	Maximum      float64 `json:"max"`
	Mean         float64 `json:"mean"`
	Stddev       float64 `json:"stddev"`
	Percentile25 float64 `json:"p25"`
	Median       float64 `json:"median"`
	Percentile75 float64 `json:"p75"`
}

type sample struct {
	ts       time.Time
	duration time.Duration
}

// Collector keeps samples in order of recording, samples older than retention are dropped
type Collector struct {
	mutex     sync.RWMutex
	retention time.Duration
	now       func() time.Time
	samples   []sample
}

// NewCollector takes time source, time.Now if nil
func NewCollector(retention time.Duration, now func() time.Time) *Collector {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if now == nil {
		now = time.Now
	}
	return &Collector{
		retention: retention,
		now:       now,
	}
}

func (c *Collector) Record(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	nowis := c.now()
	c.samples = append(c.samples, sample{ts: nowis, duration: d})
	c.purge(nowis)
}

func (c *Collector) purge(nowis time.Time) {
	i := sort.Search(len(c.samples), func(i int) bool {
		return nowis.Sub(c.samples[i].ts) <= c.retention
	})
	if i > 0 {
		c.samples = append(c.samples[:0], c.samples[i:]...)
	}
}

// minutes of samples recorded within the window, sorted
func (c *Collector) toFloat64(window time.Duration) ([]float64, time.Time) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	nowis := c.now()
	i := sort.Search(len(c.samples), func(i int) bool {
		return nowis.Sub(c.samples[i].ts) <= window
	})
	if i == len(c.samples) {
		return nil, time.Time{}
	}
	ret := make([]float64, 0, len(c.samples)-i)
	for _, s := range c.samples[i:] {
		ret = append(ret, s.duration.Minutes())
	}
	sort.Float64s(ret)
	return ret, c.samples[i].ts
}

func (c *Collector) Stats(window time.Duration) ConfStats {
	arr, since := c.toFloat64(window)
	if len(arr) == 0 {
		return ConfStats{}
	}
	ret := ConfStats{
		Since:      since.UnixNano() / int64(time.Millisecond),
		NumSamples: len(arr),
		Minimum:    floats.Min(arr),
		Maximum:    floats.Max(arr),
	}
	ret.Mean, ret.Stddev = stat.MeanStdDev(arr, nil)
	if math.IsNaN(ret.Stddev) || math.IsInf(ret.Stddev, 0) {
		ret.Stddev = 0
	}
	ret.Percentile25 = stat.Quantile(0.25, stat.Empirical, arr, nil)
	ret.Median = stat.Quantile(0.5, stat.Empirical, arr, nil)
	ret.Percentile75 = stat.Quantile(0.75, stat.Empirical, arr, nil)

	ret.Minimum = round2(ret.Minimum)
	ret.Maximum = round2(ret.Maximum)
	ret.Mean = round2(ret.Mean)
	ret.Stddev = round2(ret.Stddev)
	ret.Percentile25 = round2(ret.Percentile25)
	ret.Median = round2(ret.Median)
	ret.Percentile75 = round2(ret.Percentile75)
	return ret
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func (c *Collector) Handler(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Nowis:     c.now().UnixNano() / int64(time.Millisecond),
		Last24h:   c.Stats(24 * time.Hour),
		Last1h:    c.Stats(time.Hour),
		Last10min: c.Stats(10 * time.Minute),
	}
	data, err := json.MarshalIndent(resp, "", "   ")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprintf(w, "Error while marshaling stats response: %v\n", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
