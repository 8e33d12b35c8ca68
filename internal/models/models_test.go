package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQATestsScan(t *testing.T) {
	var q QATests
	require.NoError(t, q.Scan([]byte(`{"snr": {"status": "NORMAL"}, "ccd": "FAILURE"}`)))
	assert.Equal(t, QATests{"FAILURE", map[string]any{"status": "NORMAL"}}, q)

	require.NoError(t, q.Scan(`[{"a": "None"}]`))
	assert.Len(t, q, 1)

	require.NoError(t, q.Scan(nil))
	assert.Nil(t, q)

	require.NoError(t, q.Scan([]byte(`null`)))
	assert.Nil(t, q)

	assert.Error(t, q.Scan(42))
	assert.Error(t, q.Scan([]byte(`{`)))
}

func TestRuntime(t *testing.T) {
	start := time.Date(2020, 5, 6, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour + 3*time.Minute + 7*time.Second)

	got := Runtime(&start, &end)
	require.NotNil(t, got)
	assert.Equal(t, "1:03:07", *got)
	assert.Nil(t, Runtime(&start, nil))
	assert.Nil(t, Runtime(&end, &start))
}

func TestExposureDateMJD(t *testing.T) {
	obs := time.Date(1970, 1, 2, 12, 0, 0, 0, time.UTC)
	mjd := Exposure{DateObs: &obs}.DateMJD()
	require.NotNil(t, mjd)
	assert.InDelta(t, 40588.5, *mjd, 1e-9)
	assert.Nil(t, Exposure{}.DateMJD())
}
