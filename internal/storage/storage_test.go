package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"metricgovernor/internal/limiter"
	"metricgovernor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testReport builds a report from a limiter that has seen a few submissions.
func testReport(t *testing.T, source string, minute int) *models.StatusReport {
	t.Helper()

	l, err := limiter.New([]string{"name"}, []string{"instance"}, 2, limiter.DefaultAtoms())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		l.Check(limiter.Attributes{"name": "cpu", "instance": fmt.Sprintf("host-%d", i)})
	}

	report := models.NewStatusReport(source, "instance-1", []limiter.Status{l.Status()}, baseTime.Add(time.Duration(minute)*time.Minute))
	report.ID = fmt.Sprintf("%s-%d", source, minute)
	return report
}

func reportIDs(reports []*models.StatusReport) []string {
	ids := make([]string, 0, len(reports))
	for _, r := range reports {
		ids = append(ids, r.ID)
	}
	return ids
}

// runStorageContract exercises behaviour every backend must share. newStorage
// must return an empty store with the given retention.
func runStorageContract(t *testing.T, newStorage func(t *testing.T, retention int) Storage) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		s := newStorage(t, 0)

		reports, err := s.Reports(ctx, "", 0)
		require.NoError(t, err)
		assert.NotNil(t, reports)
		assert.Empty(t, reports)

		_, err = s.LatestReport(ctx, "default")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.NoError(t, s.Ping(ctx))
	})

	t.Run("round trip", func(t *testing.T) {
		s := newStorage(t, 0)
		report := testReport(t, "default", 0)
		require.NoError(t, s.SaveReport(ctx, report))

		got, err := s.LatestReport(ctx, "default")
		require.NoError(t, err)
		assert.Equal(t, report.ID, got.ID)
		assert.Equal(t, report.Source, got.Source)
		assert.Equal(t, report.InstanceID, got.InstanceID)
		assert.True(t, report.CollectedAt.Equal(got.CollectedAt))
		require.Len(t, got.Limiters, 1)

		status := got.Limiters[0]
		assert.Equal(t, []string{"name"}, status.Definition.Scope)
		assert.Equal(t, []string{"instance"}, status.Definition.Selection)
		require.NotNil(t, status.Definition.Limit)
		assert.Equal(t, 2, *status.Definition.Limit)
		assert.Equal(t, 1, status.Trace.ScopeCardinal)
		assert.Equal(t, int64(1), status.Trace.BlockedMetrics)
		assert.Equal(t, 1, status.Trace.ScopeOverflowCardinal)
		assert.Equal(t, []any{"cpu"}, status.Trace.MaxSelectionScope)
		assert.Equal(t, 2, status.Trace.MaxSelectionCardinal)
	})

	t.Run("newest first with source filter and limit", func(t *testing.T) {
		s := newStorage(t, 0)
		require.NoError(t, s.SaveReport(ctx, testReport(t, "a", 0)))
		require.NoError(t, s.SaveReport(ctx, testReport(t, "b", 1)))
		require.NoError(t, s.SaveReport(ctx, testReport(t, "a", 2)))
		require.NoError(t, s.SaveReport(ctx, testReport(t, "a", 3)))

		tests := []struct {
			name     string
			source   string
			limit    int
			expected []string
		}{
			{name: "all sources", source: "", limit: 0, expected: []string{"a-3", "a-2", "b-1", "a-0"}},
			{name: "one source", source: "a", limit: 0, expected: []string{"a-3", "a-2", "a-0"}},
			{name: "limited", source: "a", limit: 2, expected: []string{"a-3", "a-2"}},
			{name: "all sources limited", source: "", limit: 1, expected: []string{"a-3"}},
			{name: "unknown source", source: "c", limit: 0, expected: []string{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				reports, err := s.Reports(ctx, tt.source, tt.limit)
				require.NoError(t, err)
				assert.Equal(t, tt.expected, reportIDs(reports))
			})
		}

		latest, err := s.LatestReport(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, "b-1", latest.ID)

		latest, err = s.LatestReport(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "a-3", latest.ID)
	})

	t.Run("retention per source", func(t *testing.T) {
		s := newStorage(t, 2)
		for i := 0; i < 4; i++ {
			require.NoError(t, s.SaveReport(ctx, testReport(t, "a", i)))
		}
		require.NoError(t, s.SaveReport(ctx, testReport(t, "b", 10)))

		reports, err := s.Reports(ctx, "a", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"a-3", "a-2"}, reportIDs(reports))

		reports, err = s.Reports(ctx, "b", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"b-10"}, reportIDs(reports))
	})
}

func TestMemoryStorage(t *testing.T) {
	runStorageContract(t, func(t *testing.T, retention int) Storage {
		s, err := NewMemoryStorage(Config{Retention: retention})
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStorage(Config{})
	require.NoError(t, err)

	report := testReport(t, "default", 0)
	require.NoError(t, s.SaveReport(ctx, report))
	report.Limiters[0].Trace.BlockedMetrics = 99

	got, err := s.LatestReport(ctx, "default")
	require.NoError(t, err)
	got.Limiters[0].Trace.ScopeCardinal = 42

	again, err := s.LatestReport(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Limiters[0].Trace.BlockedMetrics)
	assert.Equal(t, 1, again.Limiters[0].Trace.ScopeCardinal)
}

func TestTrimRetention(t *testing.T) {
	history := []*models.StatusReport{
		{ID: "a-0", Source: "a"},
		{ID: "b-0", Source: "b"},
		{ID: "a-1", Source: "a"},
		{ID: "a-2", Source: "a"},
	}

	trimmed := trimRetention(history, "a", 2)
	assert.Equal(t, []string{"b-0", "a-1", "a-2"}, reportIDs(trimmed))

	untouched := trimRetention([]*models.StatusReport{{ID: "a-0", Source: "a"}}, "a", 0)
	assert.Len(t, untouched, 1)
}
