package stats

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNow struct {
	t time.Time
}

func (f *fakeNow) now() time.Time {
	return f.t
}

func TestStatsWindows(t *testing.T) {
	clk := &fakeNow{t: time.Unix(1540000000, 0)}
	c := NewCollector(2*time.Hour, clk.now)

	// 90 and 30 minutes ago
	c.Record(60 * time.Minute)
	clk.t = clk.t.Add(60 * time.Minute)
	c.Record(10 * time.Minute)
	clk.t = clk.t.Add(25 * time.Minute)
	for _, m := range []int{2, 4, 6} {
		c.Record(time.Duration(m) * time.Minute)
	}
	clk.t = clk.t.Add(5 * time.Minute)

	st := c.Stats(10 * time.Minute)
	assert.Equal(t, 3, st.NumSamples)
	assert.Equal(t, 2.0, st.Minimum)
	assert.Equal(t, 6.0, st.Maximum)
	assert.Equal(t, 4.0, st.Mean)
	assert.Equal(t, 4.0, st.Median)
	assert.Equal(t, 2.0, st.Stddev)

	assert.Equal(t, 4, c.Stats(time.Hour).NumSamples)
	assert.Equal(t, 5, c.Stats(24*time.Hour).NumSamples)
}

func TestRetention(t *testing.T) {
	clk := &fakeNow{t: time.Unix(1540000000, 0)}
	c := NewCollector(time.Hour, clk.now)
	c.Record(time.Minute)
	clk.t = clk.t.Add(2 * time.Hour)
	c.Record(time.Minute)
	assert.Len(t, c.samples, 1)
	assert.Equal(t, 1, c.Stats(24*time.Hour).NumSamples)
}

func TestEmptyStats(t *testing.T) {
	c := NewCollector(0, nil)
	assert.Equal(t, ConfStats{}, c.Stats(time.Hour))
}

func TestSingleSampleStddev(t *testing.T) {
	c := NewCollector(0, nil)
	c.Record(3 * time.Minute)
	st := c.Stats(time.Hour)
	assert.Equal(t, 1, st.NumSamples)
	assert.Zero(t, st.Stddev)
	assert.Equal(t, 3.0, st.Median)
}

func TestHandler(t *testing.T) {
	clk := &fakeNow{t: time.Unix(1540000000, 0)}
	c := NewCollector(0, clk.now)
	c.Record(90 * time.Second)

	w := httptest.NewRecorder()
	c.Handler(w, httptest.NewRequest("GET", "/stats", nil))
	require.Equal(t, 200, w.Code)

	var resp statsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Last10min.NumSamples)
	assert.Equal(t, 1.5, resp.Last1h.Mean)
	assert.EqualValues(t, 1540000000000, resp.Nowis)
}
