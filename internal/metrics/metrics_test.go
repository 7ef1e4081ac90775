package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAppMetrics_Frames(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)

	m.ObserveFrameIn("open", 12)
	m.ObserveFrameIn("transfer", 23)
	m.ObserveFrameIn("transfer", 23)
	m.ObserveFrameOut("open", 40)
	m.FrameErrors.WithLabelValues("malformed").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesIn.WithLabelValues("transfer")))
	assert.Equal(t, 58.0, testutil.ToFloat64(m.FrameBytesIn))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesOut.WithLabelValues("open")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.FrameBytesOut))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FrameErrors.WithLabelValues("malformed")))
}

func TestNewAppMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := NewRegistry()
	NewAppMetrics(reg)
	assert.Panics(t, func() { NewAppMetrics(reg) })
}
