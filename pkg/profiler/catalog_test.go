package profiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuiteLookup(t *testing.T) {
	for _, name := range []string{"default", "global_access", "shared_access", "atomic_access", "cache_hit_rate", "device_utilization"} {
		s, err := Suite(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name())
		assert.Positive(t, s.Len(), name)
		for _, id := range s.IDs() {
			_, err := Describe(id)
			assert.NoError(t, err, "suite %s references %s", name, id)
		}
	}

	def, err := Suite("default")
	require.NoError(t, err)
	assert.Equal(t, 1, def.Len())
}

func TestSuiteNotFoundListsValidNames(t *testing.T) {
	_, err := Suite("l3_cache")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSuiteNotFound))

	var lookup *LookupError
	require.True(t, errors.As(err, &lookup))
	assert.Equal(t, "l3_cache", lookup.Name)
	assert.Equal(t, SuiteNames(), lookup.Valid)
	assert.Contains(t, err.Error(), "global_access")
}

func TestDescribeUnknownMetric(t *testing.T) {
	_, err := Describe("sm__nonexistent.sum")
	assert.ErrorIs(t, err, ErrUnknownMetric)

	m, err := Describe("lts__t_sector_hit_rate.pct")
	require.NoError(t, err)
	assert.Equal(t, " L2.hit ", m.Label())
}

func TestSuiteOrderIsColumnOrder(t *testing.T) {
	s, err := Suite("cache_hit_rate")
	require.NoError(t, err)
	assert.Equal(t, []string{"l1tex__t_sector_hit_rate.pct", "lts__t_sector_hit_rate.pct"}, s.IDs())
	assert.Equal(t, []string{" L1.hit ", " L2.hit "}, s.Labels())
}

func TestMetricsCopyDoesNotAliasSuite(t *testing.T) {
	s, err := Suite("cache_hit_rate")
	require.NoError(t, err)
	ms := s.Metrics()
	ms[0] = DRAMBytesSum
	assert.Equal(t, "l1tex__t_sector_hit_rate.pct", s.IDs()[0])
}

func TestRender(t *testing.T) {
	assert.Equal(t, "    2.000 MB ", DRAMBytesSum.Render(2*1024*1024))
	assert.Equal(t, "  87.50 % ", L1HitRate.Render(87.5))
}

func TestResolveSuite(t *testing.T) {
	cases := []struct {
		selector string
		wantName string
		wantIDs  []string
		wantErr  error
	}{
		{selector: "", wantName: "time_only"},
		{selector: "time_only", wantName: "time_only"},
		{selector: "device_utilization", wantName: "device_utilization"},
		{selector: "l1tex__t_sector_hit_rate.pct, dram__bytes.sum", wantName: "custom",
			wantIDs: []string{"l1tex__t_sector_hit_rate.pct", "dram__bytes.sum"}},
		{selector: "no_such_suite", wantErr: ErrSuiteNotFound},
		{selector: "dram__bytes.sum,bogus.metric", wantErr: ErrUnknownMetric},
		{selector: ",", wantErr: ErrUnknownMetric},
		{selector: " , ,", wantErr: ErrUnknownMetric},
	}

	for _, tc := range cases {
		t.Run(tc.selector, func(t *testing.T) {
			s, err := ResolveSuite(tc.selector)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				var le *LookupError
				assert.ErrorAs(t, err, &le)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantName, s.Name())
			if tc.wantIDs != nil {
				assert.Equal(t, tc.wantIDs, s.IDs())
			}
		})
	}
}
