package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilCollectorsAreNoops(t *testing.T) {
	var c *Collectors
	c.FrameDone(time.Millisecond)
	c.FrameFailed()
	c.Dispatch("update", "positions")
	c.Skip("update", "loading")
	c.Rebuild()
	c.ResourceSets(1, 2)
	c.NodeStates("update", []string{"loading"}, nil)
	c.ConfigReload(nil)
}

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.FrameDone(2 * time.Millisecond)
	c.FrameDone(3 * time.Millisecond)
	c.Dispatch("update", "velocities")
	c.Dispatch("update", "velocities")
	c.Dispatch("render", "clear")
	c.Skip("render", "no_bind_group")
	c.Rebuild()
	c.ResourceSets(3, 1)
	c.ConfigReload(nil)
	c.ConfigReload(errors.New("bad"))

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"frames", testutil.ToFloat64(c.frames), 2},
		{"velocities", testutil.ToFloat64(c.dispatches.WithLabelValues("update", "velocities")), 2},
		{"clear", testutil.ToFloat64(c.dispatches.WithLabelValues("render", "clear")), 1},
		{"skipped", testutil.ToFloat64(c.skipped.WithLabelValues("render", "no_bind_group")), 1},
		{"rebuilds", testutil.ToFloat64(c.rebuilds), 1},
		{"live sets", testutil.ToFloat64(c.liveSets), 3},
		{"retired", testutil.ToFloat64(c.retired), 1},
		{"reload ok", testutil.ToFloat64(c.configReloads.WithLabelValues("ok")), 1},
		{"reload error", testutil.ToFloat64(c.configReloads.WithLabelValues("error")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestNodeStatesResetsMissing(t *testing.T) {
	c := New(prometheus.NewRegistry())
	states := []string{"loading", "ready"}

	c.NodeStates("render", states, map[string]int{"loading": 2})
	c.NodeStates("render", states, map[string]int{"ready": 2})

	if got := testutil.ToFloat64(c.pipelineState.WithLabelValues("render", "loading")); got != 0 {
		t.Errorf("loading = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.pipelineState.WithLabelValues("render", "ready")); got != 2 {
		t.Errorf("ready = %v, want 2", got)
	}
}

func TestNewServerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.Rebuild()

	srv := httptest.NewServer(NewServer("", reg).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "particlelife_resource_rebuilds_total 1") {
		t.Errorf("metrics output missing rebuild counter:\n%s", body)
	}
}
