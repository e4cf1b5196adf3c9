package observability

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// RunStats aggregates the runs of one operation.
type RunStats struct {
	Runs          int64     `json:"runs"`
	Failed        int64     `json:"failed"`
	TotalMillis   float64   `json:"total_ms"`
	MaxMillis     float64   `json:"max_ms"`
	LastFailureAt time.Time `json:"last_failure_at,omitzero"`
}

var counterSeq atomic.Uint64

// RunCounters keeps RunStats per operation and exposes them as an expvar
// map on /debug/vars.
type RunCounters struct {
	name string
	mu   sync.Mutex
	ops  map[string]*RunStats
}

// NewRunCounters publishes counters under name, or under a generated name
// when name is empty. expvar names are process-wide and must be unique.
func NewRunCounters(name string) *RunCounters {
	if name == "" {
		name = fmt.Sprintf("morphocore_runs_%d", counterSeq.Add(1))
	}
	c := &RunCounters{name: name, ops: make(map[string]*RunStats)}
	expvar.Publish(name, expvar.Func(func() any { return c.All() }))
	return c
}

// Name is the expvar key.
func (c *RunCounters) Name() string { return c.name }

// Stats returns the counters of one operation.
func (c *RunCounters) Stats(operation string) RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.ops[operation]; ok {
		return *s
	}
	return RunStats{}
}

// All copies the counters of every operation seen so far.
func (c *RunCounters) All() map[string]RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]RunStats, len(c.ops))
	for op, s := range c.ops {
		out[op] = *s
	}
	return out
}

// Observe implements MetricsRecorder. Unnamed operations are dropped.
func (c *RunCounters) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.ops[operation]
	if !ok {
		s = &RunStats{}
		c.ops[operation] = s
	}
	s.Runs++
	s.TotalMillis += ms
	if ms > s.MaxMillis {
		s.MaxMillis = ms
	}
	if !success {
		s.Failed++
		s.LastFailureAt = time.Now().UTC()
	}
}

// SpanRecord is one finished span as written to the span log.
type SpanRecord struct {
	Seq       uint64    `json:"seq"`
	Parent    uint64    `json:"parent,omitempty"`
	Operation string    `json:"operation"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Start     time.Time `json:"start"`
	Millis    float64   `json:"ms"`
}

type spanKey struct{}

// SpanLog is a Tracer appending one JSON line per finished span. Spans
// started under another span record its sequence number as parent.
type SpanLog struct {
	seq atomic.Uint64

	mu    sync.Mutex
	w     io.Writer
	spans []SpanRecord
}

// NewSpanLog writes to w; with a nil writer spans are only kept in memory.
func NewSpanLog(w io.Writer) *SpanLog {
	return &SpanLog{w: w}
}

// Spans returns the finished spans in completion order.
func (l *SpanLog) Spans() []SpanRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]SpanRecord(nil), l.spans...)
}

// Start implements Tracer.
func (l *SpanLog) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	rec := SpanRecord{Seq: l.seq.Add(1), Operation: operation, Start: time.Now().UTC()}
	if parent, ok := ctx.Value(spanKey{}).(uint64); ok {
		rec.Parent = parent
	}
	return context.WithValue(ctx, spanKey{}, rec.Seq), &logSpan{log: l, rec: rec}
}

type logSpan struct {
	log *SpanLog
	rec SpanRecord
}

func (s *logSpan) End(err error) {
	s.rec.Millis = float64(time.Since(s.rec.Start)) / float64(time.Millisecond)
	s.rec.OK = err == nil
	if err != nil {
		s.rec.Error = err.Error()
	}
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	s.log.spans = append(s.log.spans, s.rec)
	if s.log.w == nil {
		return
	}
	line, jerr := json.Marshal(s.rec)
	if jerr != nil {
		return
	}
	_, _ = s.log.w.Write(append(line, '\n'))
}
