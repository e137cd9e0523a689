package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreSetToggleIdempotence(t *testing.T) {
	c := Cond("rsi_trend", "up")
	var s CoreSet

	assert.True(t, s.Toggle(c))
	assert.True(t, s.Contains(c))
	assert.False(t, s.Toggle(c))
	assert.False(t, s.Contains(c))
	assert.Zero(t, s.Len())

	s.Toggle(c)
	s.Toggle(c)
	assert.Zero(t, s.Len(), "toggling twice restores the original set")
}

func TestCoreSetKeepsInsertionOrder(t *testing.T) {
	s := NewCoreSet(Cond("c", "3"), Cond("a", "1"), Cond("b", "2"), Cond("a", "1"))
	require.Equal(t, 3, s.Len())

	s.Remove(Cond("a", "1"))
	s.Add(Cond("a", "1"))

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `[["c","3"],["b","2"],["a","1"]]`, string(b))
}

func TestCoreSetEqualityIsExact(t *testing.T) {
	s := NewCoreSet(Cond("rsi_trend", "up"))
	assert.False(t, s.Contains(Cond("rsi_trend", "UP")))
	assert.False(t, s.Contains(Cond("RSI_TREND", "up")))
}

func TestCoreSetCloneIndependent(t *testing.T) {
	s := NewCoreSet(Cond("a", "1"))
	cp := s.Clone()
	cp.Add(Cond("b", "2"))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, cp.Len())
}

func TestEmptyCoreSetMarshalsAsArray(t *testing.T) {
	b, err := json.Marshal(CoreSet{})
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(b))

	b, err = json.Marshal(ConditionSet{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"core":[],"pairs":[],"threshold":0,"anti_filters":{"require_closed_candle":false,"hysteresis_bars":0,"min_pair_hits":0,"exclusive_blockers":false}}`, string(b))
}
