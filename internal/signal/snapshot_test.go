package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

func TestSnapshot_RoundTripKeepsArming(t *testing.T) {
	r := newRig(t)
	r.feed("X", down, bear)
	r.feed("X", up, bear) // arm trend BULLISH
	r.feed("Y", up, bull)
	r.feed("Y", down, bear) // OPEN BEARISH

	data, err := r.engine.SnapshotJSON()
	require.NoError(t, err)

	restored := NewEngine("test-engine", r.src)
	n, err := restored.RestoreJSON(data)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, r.engine.States(), restored.States())

	x, ok := restored.State("X")
	require.True(t, ok)
	require.NotNil(t, x.ArmedTrend)
	assert.Equal(t, model.Bullish, x.ArmedTrend.Direction)

	y, _ := restored.State("Y")
	assert.Equal(t, model.PositionBearish, y.Position)
}

func TestSnapshot_RestoredArmingCompletes(t *testing.T) {
	r := newRig(t)
	r.feed("X", down, bear)
	r.feed("X", up, bear)

	snap := r.engine.Snapshot()

	r2 := newRig(t)
	r2.src = r.src
	r2.engine = NewEngine("test-engine", r.src)
	r2.step["X"] = r.step["X"]
	_, err := r2.engine.Restore(snap)
	require.NoError(t, err)

	sig := r2.feed("X", up, bull)
	require.NotNil(t, sig)
	assert.Equal(t, model.TriggerConfluence, sig.Trigger)
}

func TestSnapshot_RejectsMismatch(t *testing.T) {
	e := NewEngine("a", newScriptSource())

	_, err := e.Restore(&EngineSnapshot{EngineID: "b", Version: snapshotVersion})
	assert.Error(t, err)

	_, err = e.Restore(&EngineSnapshot{EngineID: "a", Version: snapshotVersion + 1})
	assert.Error(t, err)

	_, err = e.RestoreJSON([]byte("{not json"))
	assert.Error(t, err)

	n, err := e.RestoreJSON(nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestSnapshot_JSONShape(t *testing.T) {
	r := newRig(t)
	r.feed("X", down, bear)
	r.feed("X", up, bear)

	data, err := r.engine.SnapshotJSON()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "test-engine", raw["engine_id"])
	syms := raw["symbols"].([]any)
	require.Len(t, syms, 1)
	x := syms[0].(map[string]any)
	assert.Equal(t, "FLAT", x["position"])
	assert.Contains(t, x, "armed_trend")
	assert.NotContains(t, x, "armed_oscillator")
}
