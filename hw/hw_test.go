package hw

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	Register("test-backend", func(cfg BackendConfig) (Instrument, error) {
		return Instrument{Stage: &MockStage{}}, nil
	})

	assert.Contains(t, Backends(), "test-backend")

	inst, err := Open("test-backend", BackendConfig{})
	require.NoError(t, err)
	assert.NotNil(t, inst.Stage)

	_, err = Open("no-such-backend", BackendConfig{})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	assert.Panics(t, func() {
		Register("test-backend", func(BackendConfig) (Instrument, error) { return Instrument{}, nil })
	})
}

func TestStageTypes(t *testing.T) {
	pos := StagePosition{1.1, 1.2, 1.3, 20, 1.5}
	assert.Equal(t, 20.0, pos.TiltX())

	st := StageStatus{Rest, Rest, Rest, Moving, Rest}
	assert.True(t, st.TiltXMoving())
	assert.Equal(t, "moving", st[AxisTiltX].String())
	assert.Equal(t, "tiltX", AxisTiltX.String())

	assert.True(t, ApertureEDS.Valid())
	assert.False(t, ApertureKind(0).Valid())
	assert.False(t, ApertureKind(7).Valid())
}

type closingStage struct {
	MockStage
	closed bool
}

func (c *closingStage) Close() error {
	c.closed = true
	return nil
}

func TestInstrumentClose(t *testing.T) {
	stage := &closingStage{}
	inst := Instrument{Stage: stage}

	require.NoError(t, inst.Close())
	assert.True(t, stage.closed)

	assert.NoError(t, Instrument{}.Close())
}

func TestMagnificationJSON(t *testing.T) {
	data, err := json.Marshal(Magnification{Value: 15000, Unit: "X", Name: "X15k"})
	require.NoError(t, err)
	assert.JSONEq(t, `[15000, "X", "X15k"]`, string(data))

	var m Magnification
	require.NoError(t, json.Unmarshal([]byte(`[200, "mm", "200mm"]`), &m))
	assert.Equal(t, Magnification{Value: 200, Unit: "mm", Name: "200mm"}, m)

	assert.Error(t, json.Unmarshal([]byte(`[200, "mm"]`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"Value": 1}`), &m))
}

func TestFunctionModeJSON(t *testing.T) {
	data, err := json.Marshal(FunctionMode{Index: 4, Name: "DIFF"})
	require.NoError(t, err)
	assert.JSONEq(t, `[4, "DIFF"]`, string(data))

	var f FunctionMode
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, FunctionMode{Index: 4, Name: "DIFF"}, f)

	assert.Error(t, json.Unmarshal([]byte(`["x", "DIFF"]`), &f))
}
