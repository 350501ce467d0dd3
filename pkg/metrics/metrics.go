// Package metrics is a small Prometheus-text-format registry for the
// fetch and ingest daemons. Counters, gauges and histograms register by
// name, with labels baked into the name via WithLabels, and the whole
// registry renders on a /metrics endpoint.
package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets cover the latencies we see in practice, from sub-10ms
// graph writes up to minute-long embedding batches.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Counter only goes up.
type Counter struct{ val atomic.Int64 }

func (c *Counter) Inc()         { c.val.Add(1) }
func (c *Counter) Add(n int64)  { c.val.Add(n) }
func (c *Counter) Value() int64 { return c.val.Load() }

// Gauge holds a value that moves in both directions, like queue depth.
type Gauge struct{ val atomic.Int64 }

func (g *Gauge) Set(n int64)  { g.val.Store(n) }
func (g *Gauge) Inc()         { g.val.Add(1) }
func (g *Gauge) Dec()         { g.val.Add(-1) }
func (g *Gauge) Value() int64 { return g.val.Load() }

// Histogram records observations into fixed buckets. Counts are kept
// per bucket and accumulated cumulatively at render time.
type Histogram struct {
	mu      sync.Mutex
	bounds  []float64
	counts  []uint64
	sum     float64
	total   uint64
}

func newHistogram(bounds []float64) *Histogram {
	b := make([]float64, len(bounds))
	copy(b, bounds)
	sort.Float64s(b)
	return &Histogram{bounds: b, counts: make([]uint64, len(b))}
}

// Observe records v into the first bucket whose bound is >= v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	h.sum += v
	h.total++
	for i, b := range h.bounds {
		if v <= b {
			h.counts[i]++
			break
		}
	}
	h.mu.Unlock()
}

// Since observes the elapsed time since t in seconds.
func (h *Histogram) Since(t time.Time) {
	h.Observe(time.Since(t).Seconds())
}

func (h *Histogram) snapshot() (bounds []float64, counts []uint64, sum float64, total uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	counts = make([]uint64, len(h.counts))
	copy(counts, h.counts)
	return h.bounds, counts, h.sum, h.total
}

// Registry holds named metrics and renders them in the Prometheus text
// exposition format. Metrics render in registration order.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	help       map[string]string
	types      map[string]string
	order      []string
}

func New() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		help:       make(map[string]string),
		types:      make(map[string]string),
	}
}

func (r *Registry) track(name, typ, help string) {
	family := familyName(name)
	if _, ok := r.types[family]; !ok {
		r.order = append(r.order, family)
	}
	r.types[family] = typ
	if help != "" {
		r.help[family] = help
	}
}

// Counter returns the counter registered under name, creating it if
// needed. Pass a WithLabels name to get a distinct series per label set,
// e.g. Counter(WithLabels("abstrakt_ingest_docs_total", "source", "pubmed"), ...).
func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{}
	r.counters[name] = c
	r.track(name, "counter", help)
	return c
}

// Gauge returns the gauge registered under name, creating it if needed.
func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{}
	r.gauges[name] = g
	r.track(name, "gauge", help)
	return g
}

// Histogram returns the histogram registered under name, creating it
// with the given bucket bounds. Nil buckets means DefaultBuckets.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	h := newHistogram(buckets)
	r.histograms[name] = h
	r.track(name, "histogram", help)
	return h
}

// WithLabels bakes label pairs into a metric name:
// WithLabels("abstrakt_ingest_docs_total", "source", "pubmed")
// yields `abstrakt_ingest_docs_total{source="pubmed"}`.
// An odd number of pairs returns the name unchanged.
func WithLabels(name string, kvs ...string) string {
	if len(kvs) == 0 || len(kvs)%2 != 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i := 0; i < len(kvs); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(kvs[i])
		b.WriteString(`="`)
		b.WriteString(kvs[i+1])
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

// familyName strips any baked-in labels, leaving the metric family.
func familyName(name string) string {
	if idx := strings.IndexByte(name, '{'); idx != -1 {
		return name[:idx]
	}
	return name
}

// labelBody returns the inner label text of a series name, without
// braces, or "" for an unlabeled series.
func labelBody(name string) string {
	idx := strings.IndexByte(name, '{')
	if idx == -1 {
		return ""
	}
	return name[idx+1 : len(name)-1]
}

// seriesOf collects the registered names belonging to a family, sorted
// so rendering is deterministic.
func seriesOf[M any](metrics map[string]M, family string) []string {
	var out []string
	for n := range metrics {
		if familyName(n) == family {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Render produces the Prometheus text exposition for every registered
// metric.
func (r *Registry) Render() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, family := range r.order {
		typ := r.types[family]
		if h, ok := r.help[family]; ok {
			fmt.Fprintf(&b, "# HELP %s %s\n", family, h)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", family, typ)

		switch typ {
		case "counter":
			for _, n := range seriesOf(r.counters, family) {
				fmt.Fprintf(&b, "%s %d\n", n, r.counters[n].Value())
			}
		case "gauge":
			for _, n := range seriesOf(r.gauges, family) {
				fmt.Fprintf(&b, "%s %d\n", n, r.gauges[n].Value())
			}
		case "histogram":
			for _, n := range seriesOf(r.histograms, family) {
				r.renderHistogram(&b, family, n)
			}
		}
	}
	return b.String()
}

func (r *Registry) renderHistogram(b *strings.Builder, family, name string) {
	bounds, counts, sum, total := r.histograms[name].snapshot()
	labels := labelBody(name)

	sep, wrapped := "", ""
	if labels != "" {
		sep = "," + labels
		wrapped = "{" + labels + "}"
	}

	cumulative := uint64(0)
	for i, bound := range bounds {
		cumulative += counts[i]
		fmt.Fprintf(b, "%s_bucket{le=\"%g\"%s} %d\n", family, bound, sep, cumulative)
	}
	fmt.Fprintf(b, "%s_bucket{le=\"+Inf\"%s} %d\n", family, sep, total)
	fmt.Fprintf(b, "%s_sum%s %g\n", family, wrapped, sum)
	fmt.Fprintf(b, "%s_count%s %d\n", family, wrapped, total)
}

// Handler serves the rendered registry.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write([]byte(r.Render()))
	})
}

// Serve blocks serving /metrics on the given port.
func (r *Registry) Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

// ServeAsync runs Serve in a goroutine so daemons can expose metrics
// without managing the listener themselves.
func (r *Registry) ServeAsync(port int) {
	go func() {
		if err := r.Serve(port); err != nil {
			slog.Error("metrics server stopped", "port", port, "error", err)
		}
	}()
}
