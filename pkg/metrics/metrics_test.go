package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	r := New()
	c := r.Counter("abstrakt_ingest_docs_total", "Total documents ingested")
	if c.Value() != 0 {
		t.Fatalf("fresh counter = %d", c.Value())
	}
	c.Inc()
	c.Inc()
	c.Add(5)
	if c.Value() != 7 {
		t.Fatalf("counter = %d, want 7", c.Value())
	}
	if r.Counter("abstrakt_ingest_docs_total", "") != c {
		t.Fatal("same name must return the same counter")
	}
}

func TestGauge(t *testing.T) {
	r := New()
	g := r.Gauge("abstrakt_ingest_queue_depth", "Files waiting to process")
	g.Set(42)
	if g.Value() != 42 {
		t.Fatalf("gauge = %d, want 42", g.Value())
	}
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 43 {
		t.Fatalf("gauge = %d, want 43", g.Value())
	}
}

func TestHistogramBuckets(t *testing.T) {
	r := New()
	h := r.Histogram("abstrakt_ingest_pipeline_duration_seconds", "Per-doc pipeline time", []float64{0.1, 0.5, 1.0})
	h.Observe(0.05)
	h.Observe(0.3)
	h.Observe(0.8)
	h.Observe(2.0) // over the top bound, lands only in +Inf

	bounds, counts, sum, total := h.snapshot()
	if total != 4 {
		t.Fatalf("total = %d, want 4", total)
	}
	if len(bounds) != 3 {
		t.Fatalf("bounds = %v", bounds)
	}
	for i, want := range []uint64{1, 1, 1} {
		if counts[i] != want {
			t.Errorf("bucket %g count = %d, want %d", bounds[i], counts[i], want)
		}
	}
	if want := 0.05 + 0.3 + 0.8 + 2.0; sum != want {
		t.Fatalf("sum = %f, want %f", sum, want)
	}
}

func TestHistogramSince(t *testing.T) {
	r := New()
	h := r.Histogram("abstrakt_fetch_run_duration_seconds", "", nil)
	h.Since(time.Now().Add(-100 * time.Millisecond))
	_, _, _, total := h.snapshot()
	if total != 1 {
		t.Fatalf("total = %d, want 1", total)
	}
}

func TestWithLabels(t *testing.T) {
	got := WithLabels("abstrakt_ingest_docs_total", "source", "pubmed")
	want := `abstrakt_ingest_docs_total{source="pubmed"}`
	if got != want {
		t.Fatalf("WithLabels = %q, want %q", got, want)
	}

	got = WithLabels("abstrakt_ingest_errors_total", "stage", "embed", "kind", "timeout")
	want = `abstrakt_ingest_errors_total{stage="embed",kind="timeout"}`
	if got != want {
		t.Fatalf("WithLabels = %q, want %q", got, want)
	}

	if WithLabels("abstrakt_up") != "abstrakt_up" {
		t.Fatal("no labels must return the name unchanged")
	}
	if WithLabels("abstrakt_up", "dangling") != "abstrakt_up" {
		t.Fatal("odd label pairs must return the name unchanged")
	}
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter("abstrakt_ingest_docs_total", "Total documents ingested").Add(10)
	r.Counter(WithLabels("abstrakt_ingest_docs_total", "source", "pubmed"), "").Add(7)
	r.Counter(WithLabels("abstrakt_ingest_docs_total", "source", "medrxiv"), "").Add(3)
	r.Gauge("abstrakt_ingest_active_docs", "Currently processing documents").Set(5)
	h := r.Histogram("abstrakt_ingest_pipeline_duration_seconds", "Per-doc pipeline time", []float64{0.1, 0.5, 1.0})
	h.Observe(0.05)
	h.Observe(0.3)

	out := r.Render()

	for _, want := range []string{
		"# TYPE abstrakt_ingest_docs_total counter",
		"# TYPE abstrakt_ingest_active_docs gauge",
		"# TYPE abstrakt_ingest_pipeline_duration_seconds histogram",
		"abstrakt_ingest_docs_total 10",
		`abstrakt_ingest_docs_total{source="pubmed"} 7`,
		`abstrakt_ingest_docs_total{source="medrxiv"} 3`,
		"abstrakt_ingest_active_docs 5",
		`abstrakt_ingest_pipeline_duration_seconds_bucket{le="0.1"} 1`,
		`abstrakt_ingest_pipeline_duration_seconds_bucket{le="+Inf"} 2`,
		"abstrakt_ingest_pipeline_duration_seconds_count 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q, got:\n%s", want, out)
		}
	}
}

func TestRenderLabeledHistogram(t *testing.T) {
	r := New()
	h := r.Histogram(WithLabels("abstrakt_embed_duration_seconds", "model", "nomic-embed-text"), "", []float64{1})
	h.Observe(0.5)

	out := r.Render()
	if !strings.Contains(out, `abstrakt_embed_duration_seconds_bucket{le="1",model="nomic-embed-text"} 1`) {
		t.Errorf("labeled bucket missing:\n%s", out)
	}
	if !strings.Contains(out, `abstrakt_embed_duration_seconds_sum{model="nomic-embed-text"} 0.5`) {
		t.Errorf("labeled sum missing:\n%s", out)
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("abstrakt_fetch_articles_total", "Articles fetched").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Fatalf("content type = %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "abstrakt_fetch_articles_total 1") {
		t.Error("metric missing from handler output")
	}
}

func TestFamilyName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abstrakt_ingest_docs_total", "abstrakt_ingest_docs_total"},
		{`abstrakt_ingest_docs_total{source="pubmed"}`, "abstrakt_ingest_docs_total"},
		{`abstrakt_ingest_errors_total{stage="embed",kind="timeout"}`, "abstrakt_ingest_errors_total"},
	}
	for _, tt := range tests {
		if got := familyName(tt.in); got != tt.want {
			t.Errorf("familyName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
