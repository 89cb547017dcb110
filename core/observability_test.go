package core

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level string
	msg   string
	args  map[string]any
}

type captureLogger struct {
	mu      sync.Mutex
	records []capturedLog
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return l
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := map[string]any{}
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, capturedLog{level: level, msg: msg, args: fields})
}

func (l *captureLogger) last() capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) == 0 {
		return capturedLog{}
	}
	return l.records[len(l.records)-1]
}

func TestObserver_Success(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := &captureLogger{}
	observer := NewObserver("hooks.test", nil, logger, metrics)

	observer.Observe(context.Background(), time.Now().Add(-10*time.Millisecond), "Deliver Now", nil, map[string]any{
		"webhook_id": "wh_1",
	})

	if len(metrics.counters) != 1 || metrics.counters[0].name != "hooks.deliver_now.total" {
		t.Fatalf("expected normalized counter name, got %#v", metrics.counters)
	}
	if metrics.counters[0].tags["status"] != "success" || metrics.counters[0].tags["webhook_id"] != "wh_1" {
		t.Fatalf("unexpected counter tags %#v", metrics.counters[0].tags)
	}
	if len(metrics.histograms) != 1 || metrics.histograms[0].name != "hooks.deliver_now.duration_ms" {
		t.Fatalf("expected duration histogram, got %#v", metrics.histograms)
	}
	record := logger.last()
	if record.level != "info" || record.msg != "deliver_now succeeded" {
		t.Fatalf("unexpected log record %#v", record)
	}
	if record.args["webhook_id"] != "wh_1" {
		t.Fatalf("expected fields to be passed as args, got %#v", record.args)
	}
}

func TestObserver_FailureUsesPrefix(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := &captureLogger{}
	observer := NewObserver("hooks.test", nil, logger, metrics)
	observer.Prefix = "custom"

	observer.Observe(context.Background(), time.Now(), "receive", stderrors.New("boom"), nil)

	if metrics.counters[0].name != "custom.receive.total" || metrics.counters[0].tags["status"] != "failure" {
		t.Fatalf("unexpected failure counter %#v", metrics.counters[0])
	}
	record := logger.last()
	if record.level != "error" || record.msg != "receive failed" || record.args["error"] != "boom" {
		t.Fatalf("unexpected failure log %#v", record)
	}
}

func TestObserver_ZeroValueIsSafe(t *testing.T) {
	var observer Observer
	observer.Observe(context.Background(), time.Now(), "", nil, nil)
	observer.Log(context.Background(), "warn", "nothing", nil)
}

func TestNewObserver_ResolvesProviderLogger(t *testing.T) {
	logger := &captureLogger{}
	observer := NewObserver("hooks.test", glog.ProviderFromLogger(logger), nil, nil)
	if observer.Metrics == nil {
		t.Fatalf("expected nop metrics recorder")
	}
	if observer.Logger == nil {
		t.Fatalf("expected logger resolved from provider")
	}
}
