// Package telemetry is a low-overhead span tracer over op lifecycles,
// retargeted from the teacher's per-HTTP-request tracer (which sampled
// requests and wrote slow-request/full-trace JSON lines) onto
// pkg/opmgr's START/END events instead. The sampling, background-writer
// and slow-fallback shape is carried from pkg/telemetry/telemetry.go
// (teacher); the HTTP middleware/status-recorder surface is dropped
// since parafs has no HTTP request path to instrument (the wire
// transport is an explicit Non-goal).
package telemetry

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"parafs/pkg/op"
	"parafs/pkg/opmgr"
	"parafs/pkg/state"
)

var (
	writerOnce    sync.Once
	writerCh      chan []byte
	spanCtr       uint64
	sampleRate    = 0.01
	slowThreshold = 50 * time.Millisecond
)

// Span is one named interval within an op's service lifecycle.
type Span struct {
	ID       string                 `json:"id"`
	OpID     int64                  `json:"op_id"`
	Name     string                 `json:"name"`
	StartMs  int64                  `json:"start_ms"`
	Duration int64                  `json:"duration_ms"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

type spanState struct {
	name      string
	startTime time.Time
	data      map[string]interface{}
}

var activeSpans sync.Map // map[string]*spanState, keyed by span id

func initWriter() {
	writerOnce.Do(func() {
		writerCh = make(chan []byte, 1024)
		dir := filepath.Join(state.PathsVar.State, "telemetry")
		_ = os.MkdirAll(dir, 0o755)
		f, err := os.OpenFile(filepath.Join(dir, "spans.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return
		}
		go func() {
			for b := range writerCh {
				f.Write(b)
				f.Write([]byte("\n"))
			}
		}()
	})
}

func genSpanID() string {
	n := atomic.AddUint64(&spanCtr, 1)
	return time.Now().UTC().Format("150405.000000") + "-" + itoa(n)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func shouldSample() bool { return rand.Float64() < sampleRate }

// StartSpan begins a named span and returns a func to end it. Ends are
// always recorded if the span ran longer than slowThreshold, even when
// the surrounding op was not sampled for a full trace.
func StartSpan(ctx context.Context, name string) func() {
	id := genSpanID()
	st := &spanState{name: name, startTime: time.Now(), data: map[string]interface{}{}}
	activeSpans.Store(id, st)
	sampled := shouldSample()
	return func() {
		activeSpans.Delete(id)
		dur := time.Since(st.startTime)
		if !sampled && dur < slowThreshold {
			return
		}
		initWriter()
		span := Span{ID: id, Name: name, StartMs: st.startTime.UnixMilli(), Duration: dur.Milliseconds(), Data: st.data}
		b, err := json.Marshal(span)
		if err != nil {
			return
		}
		select {
		case writerCh <- b:
		default:
		}
	}
}

// SetSpanData attaches a key/value to the span previously started with id.
func SetSpanData(spanID string, key string, value interface{}) {
	v, ok := activeSpans.Load(spanID)
	if !ok {
		return
	}
	st := v.(*spanState)
	st.data[key] = value
}

// SetSampleRate overrides the fraction of ops that get a full span trace
// regardless of duration.
func SetSampleRate(r float64) { sampleRate = r }

// SetSlowThreshold overrides the duration above which a span is recorded
// even when not sampled.
func SetSlowThreshold(d time.Duration) { slowThreshold = d }

// AttachToManager registers an opmgr.EventHandler that emits one span per
// serviced op, named "op.service", without the manager importing this
// package. This is pkg/opmgr's AddEventHandler contract put to use.
func AttachToManager(m *opmgr.Manager) {
	var mu sync.Mutex
	ends := map[int64]func(){}
	m.AddEventHandler(func(kind opmgr.EventKind, o *op.Op) {
		switch kind {
		case opmgr.EventStart:
			end := StartSpan(context.Background(), "op.service")
			mu.Lock()
			ends[o.ID] = end
			mu.Unlock()
		case opmgr.EventEnd:
			mu.Lock()
			end, ok := ends[o.ID]
			delete(ends, o.ID)
			mu.Unlock()
			if ok {
				end()
			}
		}
	})
}
