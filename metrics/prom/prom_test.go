package prom_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mdbox"
	"github.com/hupe1980/mdbox/cow"
	"github.com/hupe1980/mdbox/events"
	"github.com/hupe1980/mdbox/metrics/prom"
)

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prom.New(reg)

	c.RecordAddEvents(10, 2, time.Millisecond, nil)
	c.RecordAddEvents(0, 0, time.Millisecond, errors.New("boom"))
	c.RecordSplit(3, time.Millisecond, nil)
	c.RecordPageOut(4096, nil)
	c.RecordPageIn(0, errors.New("read"))
	c.RecordCacheLookup("y", true)
	c.RecordCacheLookup("y", false)
	c.RecordCacheLookup("y", false)

	expected := `
# HELP mdbox_histogram_cache_lookups_total Histogram cache lookups by kind and result
# TYPE mdbox_histogram_cache_lookups_total counter
mdbox_histogram_cache_lookups_total{kind="y",result="hit"} 1
mdbox_histogram_cache_lookups_total{kind="y",result="miss"} 2
# HELP mdbox_paging_bytes_total Event bytes moved between memory and the page file
# TYPE mdbox_paging_bytes_total counter
mdbox_paging_bytes_total{direction="out"} 4096
# HELP mdbox_paging_errors_total Failed page file transfers
# TYPE mdbox_paging_errors_total counter
mdbox_paging_errors_total{direction="in"} 1
# HELP mdbox_tree_grid_boxes_created_total Leaves converted to grid boxes
# TYPE mdbox_tree_grid_boxes_created_total counter
mdbox_tree_grid_boxes_created_total 3
# HELP mdbox_workspace_events_total Events passed to AddEvents by result
# TYPE mdbox_workspace_events_total counter
mdbox_workspace_events_total{result="added"} 10
mdbox_workspace_events_total{result="dropped"} 2
mdbox_workspace_events_total{result="error"} 1
`
	err := promtest.GatherAndCompare(reg, strings.NewReader(expected),
		"mdbox_histogram_cache_lookups_total",
		"mdbox_paging_bytes_total",
		"mdbox_paging_errors_total",
		"mdbox_tree_grid_boxes_created_total",
		"mdbox_workspace_events_total",
	)
	require.NoError(t, err)
	n, err := promtest.GatherAndCount(reg, "mdbox_tree_split_duration_seconds", "mdbox_workspace_add_events_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCollector_Workspaces(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prom.New(reg)

	ws := mdbox.New(mdbox.WithMetricsCollector(c))
	defer ws.Close()
	require.NoError(t, ws.Initialize([]mdbox.Dimension{{Name: "x", Min: 0, Max: 1}}, mdbox.Config{
		SplitInto: 2, SplitThreshold: 2, MaxDepth: 3, EventKind: "lean",
	}))
	_, err := ws.AddEvents([]mdbox.Event{
		mdbox.NewEvent(1, 1, 0.1),
		mdbox.NewEvent(1, 1, 0.6),
		mdbox.NewEvent(1, 1, 0.7),
		mdbox.NewEvent(1, 1, 1.5),
	})
	require.NoError(t, err)
	require.NoError(t, ws.SplitAllIfNeeded(context.Background(), nil))

	ew, err := events.New(1, cow.FromSlice([]float64{0, 1}), events.WithMetricsCollector(c))
	require.NoError(t, err)
	defer ew.Close()
	_ = ew.ReadY(0)
	_ = ew.ReadY(0)

	expected := `
# HELP mdbox_histogram_cache_lookups_total Histogram cache lookups by kind and result
# TYPE mdbox_histogram_cache_lookups_total counter
mdbox_histogram_cache_lookups_total{kind="y",result="hit"} 1
mdbox_histogram_cache_lookups_total{kind="y",result="miss"} 1
# HELP mdbox_tree_grid_boxes_created_total Leaves converted to grid boxes
# TYPE mdbox_tree_grid_boxes_created_total counter
mdbox_tree_grid_boxes_created_total 1
# HELP mdbox_tree_splits_total Split passes by status
# TYPE mdbox_tree_splits_total counter
mdbox_tree_splits_total{status="success"} 1
# HELP mdbox_workspace_events_total Events passed to AddEvents by result
# TYPE mdbox_workspace_events_total counter
mdbox_workspace_events_total{result="added"} 3
mdbox_workspace_events_total{result="dropped"} 1
`
	require.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected),
		"mdbox_histogram_cache_lookups_total",
		"mdbox_tree_grid_boxes_created_total",
		"mdbox_tree_splits_total",
		"mdbox_workspace_events_total",
	))
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom.New(reg)
	assert.Panics(t, func() { prom.New(reg) })
}
