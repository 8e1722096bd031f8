package prometheus

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	trustcore "github.com/RedBox-TN/Backend-sub000"
	"github.com/RedBox-TN/Backend-sub000/metrics/export/internaldefs"
)

// Source is satisfied by *trustcore.Engine.
type Source = internaldefs.Source

const contentType = "text/plain; version=0.0.4; charset=utf-8"

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

// Exporter renders a Source on demand.
type Exporter struct {
	source Source
}

func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves Render with the exposition content type.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = io.WriteString(w, p.Render())
	})
}

// Render returns the current metrics, or "" when there is nothing to report:
// engine metrics disabled and no audit loss recorded.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}
	s := p.read()
	if s.empty() {
		return ""
	}

	var b strings.Builder
	b.Grow(8192)
	w := exposition{&b}
	for _, def := range internaldefs.CounterDefs {
		w.counter(def.Name, def.Help, s.engine.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		w.latency(def, s.engine.Histograms[def.ID])
	}
	for i, def := range internaldefs.AuditCounterDefs {
		w.counter(def.Name, def.Help, s.audit[i])
	}
	return b.String()
}

// reading is one consistent pass over the source.
type reading struct {
	engine trustcore.MetricsSnapshot
	audit  []uint64
}

func (p *Exporter) read() reading {
	r := reading{
		engine: p.source.MetricsSnapshot(),
		audit:  make([]uint64, len(internaldefs.AuditCounterDefs)),
	}
	for i, def := range internaldefs.AuditCounterDefs {
		r.audit[i] = def.Read(p.source)
	}
	return r
}

func (r reading) empty() bool {
	if len(r.engine.Counters) > 0 || len(r.engine.Histograms) > 0 {
		return false
	}
	for _, v := range r.audit {
		if v > 0 {
			return false
		}
	}
	return true
}

// exposition writes families in the Prometheus text format.
type exposition struct {
	w io.Writer
}

func (e exposition) header(name, help, kind string) {
	fmt.Fprintf(e.w, "# HELP %s %s\n# TYPE %s %s\n", name, helpEscaper.Replace(help), name, kind)
}

func (e exposition) counter(name, help string, value uint64) {
	e.header(name, help, "counter")
	fmt.Fprintf(e.w, "%s %d\n", name, value)
}

// latency writes one engine histogram. The engine keeps bucket counts only,
// so _sum is always reported as 0.
func (e exposition) latency(def internaldefs.HistogramDef, raw []uint64) {
	e.header(def.Name, def.Help, "histogram")
	buckets := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
	for i, le := range internaldefs.HistogramBounds {
		fmt.Fprintf(e.w, "%s_bucket{le=%q} %d\n", def.Name, le, buckets[i])
	}
	fmt.Fprintf(e.w, "%s_count %d\n%s_sum 0\n", def.Name, buckets[len(buckets)-1], def.Name)
}
