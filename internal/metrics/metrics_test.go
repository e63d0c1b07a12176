package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRecorder_Disabled(t *testing.T) {
	var nilRecorder *Recorder
	nilRecorder.ObservePass("apply", "ok", time.Second)
	nilRecorder.CountAction("example.com", "CREATE", "applied")
	nilRecorder.CountWrite("hosts")

	r := NewRecorder()
	r.ObservePass("apply", "ok", time.Second)
	r.CountWrite("hosts")
}

func TestRecorder_Handler(t *testing.T) {
	registry := prometheus.NewRegistry()
	r := NewRecorder()
	r.SetupAndRegisterCollectors(registry)

	r.ObservePass("apply", "ok", 150*time.Millisecond)
	r.CountAction("example.com", "CREATE", "applied")
	r.CountAction("example.com", "CREATE", "applied")
	r.CountWrite("conf")

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`yk_dns_sync_passes_total{mode="apply",result="ok"} 1`,
		`yk_dns_sync_actions_total{kind="CREATE",status="applied",zone="example.com"} 2`,
		`yk_dns_sync_artifact_writes_total{file="conf"} 1`,
		`yk_dns_sync_pass_duration_seconds_count 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
