package stats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestPrecisionChange(t *testing.T) {
	stat := DefaultStatsReceiver().(*defaultStatsReceiver)
	if stat.precision != time.Nanosecond {
		t.Fatal("Default precision should be nanos.")
	}

	statp := stat.Precision(time.Millisecond).(*defaultStatsReceiver)
	if stat.precision != time.Nanosecond {
		t.Fatal("Default precision should still nanos.")
	}
	if statp.precision != time.Millisecond {
		t.Fatal("New stat precision should be millis.")
	}
}

func TestScopeChange(t *testing.T) {
	stat := DefaultStatsReceiver().(*defaultStatsReceiver)
	if len(stat.scope) != 0 {
		t.Fatal("Default scope should be empty.")
	}

	statp := stat.Scope("a/b", "c").(*defaultStatsReceiver)
	if len(stat.scope) != 0 {
		t.Fatal("Default scope should still empty.")
	}
	if len(statp.scope) != 2 || statp.scope[0] != "a_SLASH_b" || statp.scope[1] != "c" {
		t.Fatal("Invalid scope value: ", statp.scope)
	}
	if statp.scopedName("d") != "a_SLASH_b/c/d" {
		t.Fatal("Invalid scope name: " + statp.scopedName("d"))
	}
}

func TestRender(t *testing.T) {
	mock := clock.NewMock()
	Clock = mock
	defer func() { Clock = clock.New() }()

	stat := DefaultStatsReceiver().Scope("listener")
	stat.Counter(ListenerRequestCounter, "run").Inc(3)
	stat.Gauge(ListenerBusyGauge).Update(2)
	l := stat.Precision(time.Millisecond).Latency(ListenerRequestLatency_ms, "run").Time()
	mock.Add(5 * time.Millisecond)
	l.Stop()

	var out map[string]interface{}
	if err := json.Unmarshal(stat.Render(false), &out); err != nil {
		t.Fatalf("render produced invalid json: %v", err)
	}
	if out["listener/requests/run"] != float64(3) {
		t.Fatalf("expected counter 3, got %v", out["listener/requests/run"])
	}
	if out["listener/busyListeners"] != float64(2) {
		t.Fatalf("expected gauge 2, got %v", out["listener/busyListeners"])
	}
	if out["listener/requestLatency_ms/run.max"] != float64(5) {
		t.Fatalf("expected latency max 5ms, got %v", out["listener/requestLatency_ms/run.max"])
	}
}

func TestNilReceiver(t *testing.T) {
	stat := NilStatsReceiver()
	stat.Counter("x").Inc(1)
	stat.Latency("y").Time().Stop()
	if string(stat.Render(true)) != "{}" {
		t.Fatalf("nil receiver should render empty object")
	}
}
