package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func TestNewStateRecord(t *testing.T) {
	r := NewStateRecord("AGENT", 1000)
	assert.Equal(t, "AGENT", r.ID)
	assert.Equal(t, int64(1000), r.Deadline)
	require.NotNil(t, r.PreviousDeadline)
	assert.Equal(t, int64(0), *r.PreviousDeadline)
	assert.False(t, r.HasHandle())
}

func TestMarshal_WireFields(t *testing.T) {
	r := StateRecord{ID: "AGENT", Deadline: 1060, PreviousDeadline: int64p(1000), EntryHandle: "rec-1"}
	s, err := r.Marshal()
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &fields))
	assert.Len(t, fields, 3, "payload must carry exactly id, timer, timerold")
	assert.Equal(t, "AGENT", fields["id"])
	assert.EqualValues(t, 1060, fields["timer"])
	assert.EqualValues(t, 1000, fields["timerold"])
	assert.NotContains(t, s, "rec-1", "entry handle must not be serialized")
}

func TestMarshal_NullPrevious(t *testing.T) {
	s, err := StateRecord{ID: "AGENT", Deadline: 5}.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"AGENT","timer":5,"timerold":null}`, s)
}

func TestParseStateRecord_RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"with previous", `{"id":"ABCDEFGHIJ","timer":1641466583,"timerold":1641466523}`},
		{"null previous", `{"id":"ABCDEFGHIJ","timer":1641466583,"timerold":null}`},
		{"zero previous", `{"id":"ABCDEFGHIJ","timer":1000,"timerold":0}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := ParseStateRecord(tc.in)
			require.NoError(t, err)
			out, err := r.Marshal()
			require.NoError(t, err)
			assert.JSONEq(t, tc.in, out)

			again, err := ParseStateRecord(out)
			require.NoError(t, err)
			assert.Equal(t, r, again)
		})
	}
}

func TestParseStateRecord_LegacyEntryID(t *testing.T) {
	// Older agents serialized the whole agent including its entry id.
	r, err := ParseStateRecord(`{"id": "QWERTYUIOP", "timer": 1060, "timerold": 1000, "entryid": "abc123"}`)
	require.NoError(t, err)
	assert.Equal(t, "abc123", r.EntryHandle)
	assert.Equal(t, int64(1060), r.Deadline)
	assert.Equal(t, int64(1000), r.Previous())

	out, err := r.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, out, "entryid")
}

func TestParseStateRecord_QuotedTXT(t *testing.T) {
	r, err := ParseStateRecord(`"{\"id\":\"AGENT\",\"timer\":10,\"timerold\":5}"`)
	require.NoError(t, err)
	assert.Equal(t, "AGENT", r.ID)
	assert.Equal(t, int64(10), r.Deadline)
	assert.Equal(t, int64(5), r.Previous())
}

func TestParseStateRecord_Malformed(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"blank quotes", `""`},
		{"not json", "v=spf1 include:_spf.example.com ~all"},
		{"json null", "null"},
		{"array", `[1,2,3]`},
		{"missing id", `{"timer":10,"timerold":5}`},
		{"missing timer", `{"id":"AGENT","timerold":5}`},
		{"null timer", `{"id":"AGENT","timer":null}`},
		{"string timer", `{"id":"AGENT","timer":"10"}`},
		{"fractional timer", `{"id":"AGENT","timer":10.5}`},
		{"negative timer", `{"id":"AGENT","timer":-1}`},
		{"truncated", `{"id":"AGENT","timer":10`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseStateRecord(tc.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestPrevious_Null(t *testing.T) {
	assert.Equal(t, int64(0), StateRecord{}.Previous())
}

func TestNewLivenessPayload(t *testing.T) {
	r := StateRecord{ID: "AGENT", Deadline: 1110, PreviousDeadline: int64p(1000), EntryHandle: "rec-1"}
	p := NewLivenessPayload(r)

	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"AGENT","name":"AGENT","timer":1110,"timerold":1000,"passcode":1641466583}`, string(b))
}

func TestStateRecordString(t *testing.T) {
	assert.Equal(t, `id=A timer=3 timerold=null entry=""`, StateRecord{ID: "A", Deadline: 3}.String())
	assert.Equal(t, `id=A timer=3 timerold=1 entry="h"`,
		StateRecord{ID: "A", Deadline: 3, PreviousDeadline: int64p(1), EntryHandle: "h"}.String())
}
