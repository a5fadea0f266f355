// Package stats provides a small set of interfaces built on and by default backed by
// go-metrics. Instruments are obtained from a StatsReceiver that can be passed down a
// call tree and scoped at each level, and rendered as Finagle-style flat JSON.
//
// Original license: github.com/rcrowley/go-metrics/blob/master/LICENSE
package stats

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
)

// For testing.
var Clock clock.Clock = clock.New()

// Overridable instrument creation.
var NewCounter func() Counter = newMetricCounter
var NewGauge func() Gauge = newMetricGauge
var NewHistogram func() Histogram = newMetricHistogram
var NewLatency func() Latency = newLatency

// To check if pretty printing is supported.
type MarshalerPretty interface {
	MarshalJSONPretty() ([]byte, error)
}

// Similar to the go-metrics registry but with most methods removed.
type StatsRegistry interface {
	// Gets an existing metric or registers the given one.
	GetOrRegister(string, interface{}) interface{}

	// Unregister the metric with the given name.
	Unregister(string)

	// Call the given function for each registered metric.
	Each(func(string, interface{}))
}

// A registry wrapper for metrics collected about the server.
//
// Hierarchical names are stored using a '/' separator. Name elements passed to any method
// have '/' replaced by "_SLASH_" before they are used, since some names are generated
// from request data.
type StatsReceiver interface {
	// Return a stats receiver that will automatically namespace elements with
	// the given scope args.
	//
	//   statsReceiver.Scope("foo", "bar").Counter("baz")  // is equivalent to
	//   statsReceiver.Counter("foo", "bar", "baz")
	//
	Scope(scope ...string) StatsReceiver

	// Returns a copy whose Latency instruments render in the given precision.
	// If the given duration is <= 1ns, we will default to ns.
	Precision(time.Duration) StatsReceiver

	// Provides an event counter
	Counter(name ...string) Counter

	// Provides a histogram of sampled durations.
	Latency(name ...string) Latency

	// Add a gauge, which holds an int64 value that can be set arbitrarily.
	Gauge(name ...string) Gauge

	// Add a histogram of arbitrary int64 samples.
	Histogram(name ...string) Histogram

	// Removes the given named stats item if it exists
	Remove(name ...string)

	// Construct a JSON string by marshaling the registry.
	Render(pretty bool) []byte
}

// DefaultStatsReceiver is a small wrapper around a Finagle-style registry.
func DefaultStatsReceiver() StatsReceiver {
	return NewCustomStatsReceiver(nil)
}

// Like DefaultStatsReceiver() but the registry is made explicit.
func NewCustomStatsReceiver(makeRegistry func() StatsRegistry) StatsReceiver {
	if makeRegistry == nil {
		makeRegistry = NewFinagleStatsRegistry
	}
	return &defaultStatsReceiver{
		registry:  makeRegistry(),
		precision: time.Nanosecond,
	}
}

type defaultStatsReceiver struct {
	registry  StatsRegistry
	precision time.Duration
	scope     []string
}

func (s *defaultStatsReceiver) Scope(scope ...string) StatsReceiver {
	return &defaultStatsReceiver{s.registry, s.precision, s.scoped(scope...)}
}

func (s *defaultStatsReceiver) Precision(precision time.Duration) StatsReceiver {
	if precision < 1 {
		precision = 1
	}
	return &defaultStatsReceiver{s.registry, precision, s.scope}
}

func (s *defaultStatsReceiver) Counter(name ...string) Counter {
	return s.registry.GetOrRegister(s.scopedName(name...), NewCounter).(Counter)
}

func (s *defaultStatsReceiver) Gauge(name ...string) Gauge {
	return s.registry.GetOrRegister(s.scopedName(name...), NewGauge).(Gauge)
}

func (s *defaultStatsReceiver) Histogram(name ...string) Histogram {
	return s.registry.GetOrRegister(s.scopedName(name...), NewHistogram).(Histogram)
}

func (s *defaultStatsReceiver) Latency(name ...string) Latency {
	// Can't do lazy instantiation since the factory return value can't be cast by the registry.
	return s.registry.GetOrRegister(s.scopedName(name...), NewLatency().Precision(s.precision)).(Latency)
}

func (s *defaultStatsReceiver) Remove(name ...string) {
	s.registry.Unregister(s.scopedName(name...))
}

func (s *defaultStatsReceiver) Render(pretty bool) []byte {
	var err error
	var bytes []byte
	if mp, ok := s.registry.(MarshalerPretty); ok && pretty {
		bytes, err = mp.MarshalJSONPretty()
	} else {
		bytes, err = json.Marshal(s.registry)
	}
	if err != nil {
		log.WithError(err).Error("stats registry cannot be marshaled")
		return []byte("{}")
	}
	return bytes
}

// Append to existing scope and scrub slashes
func (s *defaultStatsReceiver) scoped(scope ...string) []string {
	out := make([]string, 0, len(s.scope)+len(scope))
	out = append(out, s.scope...)
	for _, e := range scope {
		out = append(out, strings.Replace(e, "/", "_SLASH_", -1))
	}
	return out
}

// Append to the existing scope and convert to slash-delimited string.
func (s *defaultStatsReceiver) scopedName(scope ...string) string {
	return strings.Join(s.scoped(scope...), "/")
}

// NilStatsReceiver ignores all stats operations.
func NilStatsReceiver(scope ...string) StatsReceiver {
	return &nilStatsReceiver{}
}

type nilStatsReceiver struct{}

func (s *nilStatsReceiver) Scope(scope ...string) StatsReceiver             { return s }
func (s *nilStatsReceiver) Precision(precision time.Duration) StatsReceiver { return s }
func (s *nilStatsReceiver) Counter(name ...string) Counter {
	return &metricCounter{&metrics.NilCounter{}}
}
func (s *nilStatsReceiver) Gauge(name ...string) Gauge {
	return &metricGauge{&metrics.NilGauge{}}
}
func (s *nilStatsReceiver) Histogram(name ...string) Histogram {
	return &metricHistogram{&metrics.NilHistogram{}}
}
func (s *nilStatsReceiver) Latency(name ...string) Latency { return &nilLatency{} }
func (s *nilStatsReceiver) Remove(name ...string)          {}
func (s *nilStatsReceiver) Render(pretty bool) []byte      { return []byte("{}") }

//
// Minimally mirror go-metrics instruments.
//

type Counter interface {
	Capture() Counter
	Clear()
	Count() int64
	Inc(int64)
}
type metricCounter struct{ metrics.Counter }

func (m *metricCounter) Capture() Counter { return &metricCounter{m.Snapshot()} }
func newMetricCounter() Counter           { return &metricCounter{metrics.NewCounter()} }

type Gauge interface {
	Capture() Gauge
	Update(int64)
	Value() int64
}
type metricGauge struct{ metrics.Gauge }

func (m *metricGauge) Capture() Gauge { return &metricGauge{m.Snapshot()} }
func newMetricGauge() Gauge           { return &metricGauge{metrics.NewGauge()} }

// Viewable histogram without updates or capture.
type HistogramView interface {
	Mean() float64
	Count() int64
	Max() int64
	Min() int64
	Sum() int64
	Percentiles(ps []float64) []float64
}

type Histogram interface {
	HistogramView
	Capture() Histogram
	Update(int64)
}
type metricHistogram struct{ metrics.Histogram }

func (m *metricHistogram) Capture() Histogram { return &metricHistogram{m.Snapshot()} }
func newMetricHistogram() Histogram {
	return &metricHistogram{metrics.NewHistogram(metrics.NewUniformSample(1000))}
}

// Latency records durations between Time() and Stop() into a histogram.
type Latency interface {
	Capture() Latency
	Time() Latency //returns self.
	Stop()
	GetPrecision() time.Duration
	Precision(time.Duration) Latency //returns self.
}
type metricLatency struct {
	metrics.Histogram
	start     time.Time
	precision time.Duration
}

func (l *metricLatency) Time() Latency { l.start = Clock.Now(); return l }
func (l *metricLatency) Stop()         { l.Update(Clock.Since(l.start).Nanoseconds()) }
func (l *metricLatency) Capture() Latency {
	return &metricLatency{l.Histogram.Snapshot(), l.start, l.precision}
}
func (l *metricLatency) GetPrecision() time.Duration { return l.precision }
func (l *metricLatency) Precision(p time.Duration) Latency {
	if p < 1 {
		p = 1
	}
	l.precision = p
	return l
}
func newLatency() Latency {
	return &metricLatency{Histogram: metrics.NewHistogram(metrics.NewUniformSample(1000)), precision: time.Nanosecond}
}

type nilLatency struct{}

func (l *nilLatency) Time() Latency                   { return l }
func (l *nilLatency) Stop()                           {}
func (l *nilLatency) Capture() Latency                { return l }
func (l *nilLatency) GetPrecision() time.Duration     { return 0 }
func (l *nilLatency) Precision(time.Duration) Latency { return l }

//
// Twitter/Finagle style metrics
//
type finagleStatsRegistry struct {
	metrics.Registry
}

func NewFinagleStatsRegistry() StatsRegistry {
	return &finagleStatsRegistry{metrics.NewRegistry()}
}

type jsonMap map[string]interface{}

// MarshalJSON returns a byte slice containing a JSON representation of all
// the metrics in the Registry.
func (r *finagleStatsRegistry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.MarshalAll())
}
func (r *finagleStatsRegistry) MarshalJSONPretty() ([]byte, error) {
	return json.MarshalIndent(r.MarshalAll(), "", "  ")
}
func (r *finagleStatsRegistry) MarshalAll() jsonMap {
	data := make(jsonMap)
	r.Each(func(name string, i interface{}) {
		switch stat := i.(type) {
		case Counter:
			data[name] = stat.Count()
		case Gauge:
			data[name] = stat.Value()
		case Histogram:
			r.marshalHistogram(data, name, stat.Capture(), time.Nanosecond)
		case Latency:
			l := stat.Capture()
			r.marshalHistogram(data, name, l.(HistogramView), l.GetPrecision())
		default:
			log.Info("Unrecognized marshal instrument: ", name, i)
		}
	})
	return data
}
func (r *finagleStatsRegistry) marshalHistogram(
	data jsonMap,
	name string,
	hist HistogramView,
	precision time.Duration,
) {
	f64p := float64(precision)
	i64p := int64(precision)
	data[name+".avg"] = hist.Mean() / f64p
	data[name+".count"] = hist.Count()
	data[name+".max"] = hist.Max() / i64p
	data[name+".min"] = hist.Min() / i64p
	data[name+".sum"] = hist.Sum() / i64p

	pctls := hist.Percentiles(defaultPercentiles)
	for i, pctl := range pctls {
		data[name+"."+defaultPercentileLabels[i]] = pctl / f64p
	}
}

var defaultPercentiles = []float64{0.5, 0.9, 0.95, 0.99}
var defaultPercentileLabels = []string{"p50", "p90", "p95", "p99"}

// StartUptimeReporting updates statName with the server uptime in milliseconds until stop is closed.
func StartUptimeReporting(stat StatsReceiver, statName string, interval time.Duration, stop <-chan struct{}) {
	startTime := Clock.Now()
	ticker := Clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			upTime := Clock.Since(startTime) / time.Millisecond
			stat.Gauge(statName).Update(int64(upTime))
		}
	}
}
