package clock

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/txtclock/pkg/model"
)

func TestDue_Boundary(t *testing.T) {
	const deadline = 1000
	assert.False(t, Due(deadline-1, deadline), "one second early must not be due")
	assert.True(t, Due(deadline, deadline), "exactly at the deadline must be due")
	assert.True(t, Due(deadline+1, deadline))
}

func TestAdvance_NotDue(t *testing.T) {
	prev := int64(940)
	r := model.StateRecord{ID: "other", Deadline: 1000, PreviousDeadline: &prev}
	before := r

	assert.False(t, Advance(&r, 999, 0, "me"))
	assert.Equal(t, before, r, "a record that is not due must be left untouched")
}

func TestAdvance_Example(t *testing.T) {
	r := model.StateRecord{ID: "other", Deadline: 1000}
	require.True(t, Advance(&r, 1050, 0, "me"))
	assert.Equal(t, int64(1110), r.Deadline)
	require.NotNil(t, r.PreviousDeadline)
	assert.Equal(t, int64(1000), *r.PreviousDeadline)
	assert.Equal(t, "me", r.ID)
}

func TestAdvance_JitterWindow(t *testing.T) {
	const maxJitter = 10 * time.Second
	src := RandomJitter{Max: maxJitter}
	for i := 0; i < 200; i++ {
		r := model.StateRecord{Deadline: 1000}
		require.True(t, Advance(&r, 1050, src.Jitter(), "me"))
		assert.GreaterOrEqual(t, r.Deadline, int64(1050+60))
		assert.LessOrEqual(t, r.Deadline, int64(1050+60+10))
	}
}

func TestAdvance_NegativeJitterClamped(t *testing.T) {
	r := model.StateRecord{Deadline: 1000}
	require.True(t, Advance(&r, 1000, -30, "me"))
	assert.Equal(t, int64(1060), r.Deadline)
}

func TestAdvance_Monotonic(t *testing.T) {
	r := model.NewStateRecord("me", 0)
	now := int64(0)
	last := r.Deadline
	for i := 0; i < 500; i++ {
		now += int64(i%97) + 1
		before := r.Deadline
		if Advance(&r, now, int64(i%7), "me") {
			assert.Greater(t, r.Deadline, before)
			assert.Equal(t, before, *r.PreviousDeadline)
		}
		assert.GreaterOrEqual(t, r.Deadline, last)
		last = r.Deadline
	}
}

func TestRandomJitter_ZeroMax(t *testing.T) {
	assert.Equal(t, int64(0), RandomJitter{}.Jitter())
	assert.Equal(t, int64(0), RandomJitter{Max: 500 * time.Millisecond}.Jitter())
}

func TestFixedSources(t *testing.T) {
	assert.Equal(t, int64(7), FixedJitter(7).Jitter())
	assert.Equal(t, "AGENT", FixedIdentity("AGENT").NewIdentity())
}

func TestUUIDIdentity(t *testing.T) {
	a := UUIDIdentity{}.NewIdentity()
	b := UUIDIdentity{}.NewIdentity()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}
