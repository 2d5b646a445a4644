package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dccl/go-dccl/internal/metrics"
)

func TestPrometheus_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheus(reg)
	require.NoError(t, rec.Register())
	require.NoError(t, rec.Register())

	rec.ObserveEncode("position", 7, time.Microsecond, nil)
	rec.ObserveEncode("position", 7, time.Microsecond, nil)
	rec.ObserveDecode("position", 7, time.Microsecond, nil)
	rec.ObserveDecode("unknown", 3, time.Microsecond, errors.New("boom"))

	count, err := testutil.GatherAndCount(reg, "dccl_codec_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "dccl_codec_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(reg, "dccl_codec_message_size_bytes")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNoop(t *testing.T) {
	var rec metrics.Recorder = metrics.Noop{}
	assert.NotPanics(t, func() {
		rec.ObserveEncode("x", 1, time.Second, nil)
		rec.ObserveDecode("x", 1, time.Second, errors.New("x"))
	})
}
