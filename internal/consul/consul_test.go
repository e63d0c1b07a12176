package consul

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
)

// fakeConsul serves the handful of HTTP endpoints the client uses.
type fakeConsul struct {
	mu       sync.Mutex
	index    uint64
	services map[string][]string
	kv       map[string]string
	puts     []string
	failures int // number of catalog queries to fail before answering
}

func (f *fakeConsul) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		f.mu.Lock()
		idx := f.index
		f.mu.Unlock()
		w.Header().Set("X-Consul-Index", strconv.FormatUint(idx, 10))
		w.Header().Set("X-Consul-LastContact", "0")
		w.Header().Set("X-Consul-KnownLeader", "true")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/v1/agent/self", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]map[string]any{"Config": {"Datacenter": "dc1"}})
	})
	mux.HandleFunc("/v1/catalog/datacenters", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []string{"dc1", "dc2"})
	})
	mux.HandleFunc("/v1/catalog/services", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		if f.failures > 0 {
			f.failures--
			f.mu.Unlock()
			http.Error(w, "no leader", http.StatusInternalServerError)
			return
		}
		services := f.services
		f.mu.Unlock()
		writeJSON(w, services)
	})
	mux.HandleFunc("/v1/catalog/service/web", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"ServiceName": "web", "ServiceAddress": "10.0.0.5", "Address": "192.168.1.5", "ServiceTags": []string{"dns=example.com"}},
			{"ServiceName": "web", "ServiceAddress": "", "Address": "192.168.1.6", "ServiceTags": []string{"dns=example.com", "vhost=www"}},
		})
	})
	mux.HandleFunc("/v1/kv/", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path[len("/v1/kv/"):]
		if r.Method == http.MethodPut {
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.kv[key] = string(body)
			f.puts = append(f.puts, key)
			f.mu.Unlock()
			writeJSON(w, true)
			return
		}
		f.mu.Lock()
		_, ok := f.kv[key]
		f.mu.Unlock()
		if !ok {
			w.Header().Set("X-Consul-Index", "1")
			w.Header().Set("X-Consul-LastContact", "0")
			w.Header().Set("X-Consul-KnownLeader", "true")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, []map[string]any{{"Key": key, "Value": []byte(f.kv[key])}})
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeConsul, dc string) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	c, err := New(logr.Discard(), srv.URL, dc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Backoff = wait.Backoff{Duration: time.Millisecond, Factor: 1, Steps: 1 << 30}
	return c
}

func TestValidateDatacenter(t *testing.T) {
	f := &fakeConsul{kv: map[string]string{}}

	dc, err := newTestClient(t, f, "").ValidateDatacenter(context.Background())
	if err != nil || dc != "dc1" {
		t.Errorf("expected agent datacenter dc1, got %q (%v)", dc, err)
	}

	if dc, err := newTestClient(t, f, "dc2").ValidateDatacenter(context.Background()); err != nil || dc != "dc2" {
		t.Errorf("expected dc2, got %q (%v)", dc, err)
	}

	if _, err := newTestClient(t, f, "mars").ValidateDatacenter(context.Background()); err == nil {
		t.Error("expected error for unknown datacenter")
	}
}

func TestServicesAndInstances(t *testing.T) {
	f := &fakeConsul{index: 7, kv: map[string]string{}, services: map[string][]string{
		"web":    {"dns=example.com"},
		"consul": {},
	}}
	c := newTestClient(t, f, "")

	services, err := c.Services(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(services) != 2 || services[0] != "consul" || services[1] != "web" {
		t.Errorf("Services() = %v", services)
	}

	instances, err := c.Instances(context.Background(), "web")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(instances))
	}
	if instances[0].Addr() != "10.0.0.5" {
		t.Errorf("expected service address, got %q", instances[0].Addr())
	}
	if instances[1].Addr() != "192.168.1.6" {
		t.Errorf("expected node address fallback, got %q", instances[1].Addr())
	}
}

func TestNotify(t *testing.T) {
	f := &fakeConsul{kv: map[string]string{}}
	c := newTestClient(t, f, "")

	if err := c.Notify(context.Background(), "dns/updated"); err != nil {
		t.Fatal(err)
	}
	if f.kv["dns/updated"] != NotifyValue {
		t.Errorf("expected %q written, got %q", NotifyValue, f.kv["dns/updated"])
	}
}

func TestWatchServices_FiresOnIndexChange(t *testing.T) {
	f := &fakeConsul{index: 1, kv: map[string]string{}, services: map[string][]string{"web": nil}, failures: 2}
	c := newTestClient(t, f, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired int
	err := c.WatchServices(ctx, func(context.Context) error {
		fired++
		switch fired {
		case 1:
			f.mu.Lock()
			f.index = 5
			f.mu.Unlock()
		case 2:
			cancel()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WatchServices: %v", err)
	}
	if fired != 2 {
		t.Errorf("expected 2 fires (first response and index change), got %d", fired)
	}
}

func TestWatchKey_MissingKeyStillFires(t *testing.T) {
	f := &fakeConsul{kv: map[string]string{}}
	c := newTestClient(t, f, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired int
	err := c.WatchKey(ctx, "dns/trigger", func(context.Context) error {
		fired++
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("WatchKey: %v", err)
	}
	if fired != 1 {
		t.Errorf("expected the first response to fire, got %d", fired)
	}
}

func TestWatchServices_FiresWhenIndexGoesBackwards(t *testing.T) {
	f := &fakeConsul{index: 9, kv: map[string]string{}, services: map[string][]string{"web": nil}}
	c := newTestClient(t, f, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired int
	err := c.WatchServices(ctx, func(context.Context) error {
		fired++
		switch fired {
		case 1:
			// Snapshot restored on the server side.
			f.mu.Lock()
			f.index = 3
			f.mu.Unlock()
		case 2:
			cancel()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WatchServices: %v", err)
	}
	if fired != 2 {
		t.Errorf("expected a fire after the index went backwards, got %d fires", fired)
	}
}

func TestWaitIndex(t *testing.T) {
	tests := []struct {
		name       string
		prev, next uint64
		want       uint64
	}{
		{"first response", 0, 7, 7},
		{"unchanged", 7, 7, 7},
		{"moved forward", 7, 12, 12},
		{"went backwards", 12, 4, 0},
		{"zero is clamped", 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := waitIndex(tt.prev, tt.next); got != tt.want {
				t.Errorf("waitIndex(%d, %d) = %d, want %d", tt.prev, tt.next, got, tt.want)
			}
		})
	}
}
