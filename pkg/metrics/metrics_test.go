package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "")

	p.RecordInvocation("advanced", 120*time.Millisecond)
	p.RecordInvocation("advanced", 80*time.Millisecond)
	p.RecordInvocation("pending", 10*time.Millisecond)
	p.RecordError("transient")
	p.SetDeadline(1110)
	p.RecordNotify(true)
	p.RecordNotify(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.invocations.WithLabelValues("advanced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.invocations.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.errors.WithLabelValues("transient")))
	assert.Equal(t, 1110.0, testutil.ToFloat64(p.deadline))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.notify.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.notify.WithLabelValues("failure")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "txtclock_agent_invocations_total")
	assert.Contains(t, names, "txtclock_agent_invocation_seconds")
	assert.Contains(t, names, "txtclock_record_deadline_seconds")
}

func TestPrometheus_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "custom")
	assert.NotPanics(t, func() {
		p.RecordError("fatal")
		p.RecordError("fatal")
	})
	assert.Equal(t, 1, testutil.CollectAndCount(p.errors))
}

func TestNop(t *testing.T) {
	var c Collector = Nop{}
	assert.NotPanics(t, func() {
		c.RecordInvocation("created", time.Second)
		c.RecordError("integrity")
		c.SetDeadline(1)
		c.RecordNotify(true)
	})
}
