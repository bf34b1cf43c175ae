package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetrics_ExportedThroughHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.StreamConnects.Inc()
	m.FramesReceived.WithLabelValues("Message").Add(2)
	m.GaugeFunc("pending_deletions", "Pending deletions.", func() float64 { return 3 })

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		"persona_bridge_stream_connects_total 1",
		`persona_bridge_frames_received_total{type="Message"} 2`,
		"persona_bridge_pending_deletions 3",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}
}

func TestMetrics_NopIsUsable(t *testing.T) {
	m := OrNop(nil)
	m.MessagesSent.Inc()
	m.GaugeFunc("ignored", "Not registered.", func() float64 { return 1 })
	if OrNop(m) != m {
		t.Error("OrNop should return the given metrics")
	}
}
