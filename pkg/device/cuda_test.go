//go:build cuda

package device

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCUDA(t *testing.T) *CUDA {
	t.Helper()
	d, err := NewCUDA(0)
	if err != nil {
		t.Skipf("no usable GPU: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestCUDALaunchIsRecorded(t *testing.T) {
	d := openTestCUDA(t)
	d.Launch("spin", 0.1)

	require.NoError(t, d.Synchronize())
	recs, err := d.FetchRecords()
	require.NoError(t, err)
	assert.Equal(t, 0, d.Failed())
	assert.NotEmpty(t, recs)
}

func TestCUDARejectedLaunchIsCounted(t *testing.T) {
	d := openTestCUDA(t)
	d.Launch("spin", math.NaN())

	assert.Equal(t, 1, d.Failed())
}
