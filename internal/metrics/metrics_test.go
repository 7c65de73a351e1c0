package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetGauge().GetValue()
}

func TestSetPosition(t *testing.T) {
	SetPosition("ATOM/DOT", "SHORT_A_LONG_B")
	if v := gaugeValue(t, PositionOpen.WithLabelValues("ATOM/DOT", "SHORT_A_LONG_B")); v != 1 {
		t.Fatalf("short gauge = %v", v)
	}
	if v := gaugeValue(t, PositionOpen.WithLabelValues("ATOM/DOT", "LONG_A_SHORT_B")); v != 0 {
		t.Fatalf("long gauge = %v", v)
	}
	SetPosition("ATOM/DOT", "NONE")
	if v := gaugeValue(t, PositionOpen.WithLabelValues("ATOM/DOT", "SHORT_A_LONG_B")); v != 0 {
		t.Fatalf("flat short gauge = %v", v)
	}
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	CyclesTotal.WithLabelValues("ok").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `pairbot_cycles_total{result="ok"}`) {
		t.Fatalf("cycles counter missing from exposition")
	}
}
