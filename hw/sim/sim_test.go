package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epoc-ed/go-simpletem/hw"
	"github.com/epoc-ed/go-simpletem/logger"
)

func newTestMicroscope(t *testing.T, opts ...Option) (*Microscope, hw.Instrument) {
	t.Helper()

	opts = append([]Option{WithLogger(logger.NewNopMockLogger()), WithTick(2 * time.Millisecond)}, opts...)
	m, err := New(opts...)
	require.NoError(t, err)

	return m, m.Instrument()
}

func TestDefaults(t *testing.T) {
	assert := assert.New(t)
	_, inst := newTestMicroscope(t)

	pos, err := inst.Stage.Position()
	require.NoError(t, err)
	assert.Equal(hw.StagePosition{1.1, 1.2, 1.3, 0, 1.5}, pos)

	st, err := inst.Stage.Status()
	require.NoError(t, err)
	assert.Equal(hw.StageStatus{}, st)

	mag, err := inst.Optics.Magnification()
	require.NoError(t, err)
	assert.Equal(hw.Magnification{Value: 15000, Unit: "X", Name: "X15k"}, mag)

	cl3, err := inst.Lens.Value(hw.LensCL3)
	require.NoError(t, err)
	assert.Equal(uint16(0xFF00), cl3)

	ils, err := inst.Deflector.Value(hw.DeflectorILs)
	require.NoError(t, err)
	assert.Equal(hw.XY{21000, 22000}, ils)

	hole, err := inst.Aperture.HoleIndex(hw.ApertureOLA)
	require.NoError(t, err)
	assert.Zero(hole)
}

func TestOptions(t *testing.T) {
	_, err := New(WithDriveRates())
	assert.Error(t, err)

	_, err = New(WithDriveRates(10, 0))
	assert.Error(t, err)

	_, err = New(WithTiltLimit(-1))
	assert.Error(t, err)

	_, err = New(WithTick(0))
	assert.Error(t, err)
}

func TestTiltTo_TakesTimeProportionalToRate(t *testing.T) {
	_, inst := newTestMicroscope(t, WithDriveRates(100, 50))

	begin := time.Now()
	require.NoError(t, inst.Stage.TiltTo(10))
	fast := time.Since(begin)

	require.NoError(t, inst.Stage.SetDriveRate(1))
	begin = time.Now()
	require.NoError(t, inst.Stage.TiltTo(0))
	slow := time.Since(begin)

	assert.GreaterOrEqual(t, fast, 90*time.Millisecond)
	assert.GreaterOrEqual(t, slow, 190*time.Millisecond)

	pos, err := inst.Stage.Position()
	require.NoError(t, err)
	assert.InDelta(t, 0, pos.TiltX(), 1e-9)
}

func TestTiltBy_Relative(t *testing.T) {
	_, inst := newTestMicroscope(t, WithDriveRates(500))

	require.NoError(t, inst.Stage.TiltBy(5))
	require.NoError(t, inst.Stage.TiltBy(-3.5))

	pos, err := inst.Stage.Position()
	require.NoError(t, err)
	assert.InDelta(t, 1.5, pos.TiltX(), 1e-9)
}

func TestStop_LeavesPartialAngle(t *testing.T) {
	_, inst := newTestMicroscope(t, WithDriveRates(50))

	done := make(chan error, 1)
	go func() { done <- inst.Stage.TiltTo(30) }()

	assert.Eventually(t, func() bool {
		st, _ := inst.Stage.Status()
		return st.TiltXMoving()
	}, time.Second, time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, inst.Stage.Stop())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, hw.ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("rotation did not end after Stop")
	}

	st, err := inst.Stage.Status()
	require.NoError(t, err)
	assert.Equal(t, hw.Rest, st[hw.AxisTiltX])

	pos, err := inst.Stage.Position()
	require.NoError(t, err)
	assert.Greater(t, pos.TiltX(), 0.0)
	assert.Less(t, pos.TiltX(), 30.0)
}

func TestStop_NoopAtRest(t *testing.T) {
	_, inst := newTestMicroscope(t)

	require.NoError(t, inst.Stage.Stop())

	st, err := inst.Stage.Status()
	require.NoError(t, err)
	assert.Equal(t, hw.StageStatus{}, st)
}

func TestTilt_HardwareLimit(t *testing.T) {
	_, inst := newTestMicroscope(t, WithDriveRates(500), WithTiltLimit(60))

	err := inst.Stage.TiltTo(75)
	assert.ErrorIs(t, err, hw.ErrHardwareLimit)

	st, err := inst.Stage.Status()
	require.NoError(t, err)
	assert.Equal(t, hw.HardwareLimitError, st[hw.AxisTiltX])

	require.NoError(t, inst.Stage.TiltTo(1))
	st, err = inst.Stage.Status()
	require.NoError(t, err)
	assert.Equal(t, hw.Rest, st[hw.AxisTiltX])
}

func TestReadsStayResponsiveDuringTilt(t *testing.T) {
	_, inst := newTestMicroscope(t, WithDriveRates(20))

	go func() { _ = inst.Stage.TiltTo(5) }()
	defer func() { _ = inst.Stage.Stop() }()

	assert.Eventually(t, func() bool {
		st, _ := inst.Stage.Status()
		return st.TiltXMoving()
	}, time.Second, time.Millisecond)

	begin := time.Now()
	require.NoError(t, inst.Stage.MoveRel(hw.AxisZ, 400))
	_, err := inst.Stage.Position()
	require.NoError(t, err)
	assert.Less(t, time.Since(begin), 50*time.Millisecond)

	pos, err := inst.Stage.Position()
	require.NoError(t, err)
	assert.InDelta(t, 401.3, pos[hw.AxisZ], 1e-9)
}

func TestMoveRel_RejectsTiltAxis(t *testing.T) {
	_, inst := newTestMicroscope(t)
	assert.Error(t, inst.Stage.MoveRel(hw.AxisTiltX, 1))
}

func TestDriveRateRoundTrip(t *testing.T) {
	_, inst := newTestMicroscope(t)

	for k := range hw.DefaultDriveRates {
		require.NoError(t, inst.Stage.SetDriveRate(k))
		got, err := inst.Stage.DriveRate()
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	assert.ErrorIs(t, inst.Stage.SetDriveRate(len(hw.DefaultDriveRates)), hw.ErrInvalidDriveRate)
	assert.ErrorIs(t, inst.Stage.SetDriveRate(-1), hw.ErrInvalidDriveRate)
}

func TestOpticsSelectors(t *testing.T) {
	assert := assert.New(t)
	_, inst := newTestMicroscope(t)

	require.NoError(t, inst.Optics.SelectFunctionMode(4))
	fm, err := inst.Optics.FunctionMode()
	require.NoError(t, err)
	assert.Equal(hw.FunctionMode{Index: 4, Name: "DIFF"}, fm)

	require.NoError(t, inst.Optics.SetSelector(0))
	mag, err := inst.Optics.Magnification()
	require.NoError(t, err)
	assert.Equal(hw.Magnification{Value: 100, Unit: "mm", Name: "100mm"}, mag)

	assert.Error(inst.Optics.SetSelector(99))
	assert.ErrorIs(inst.Optics.SelectFunctionMode(9), hw.ErrInvalidFunctionMode)
}

func TestDeflectorAndLens(t *testing.T) {
	m, inst := newTestMicroscope(t)

	require.NoError(t, inst.Deflector.SetBeamBlank(true))
	on, err := inst.Deflector.BeamBlank()
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, inst.Deflector.SetValue(hw.DeflectorILs, hw.XY{24000, 25000}))
	v, err := inst.Deflector.Value(hw.DeflectorILs)
	require.NoError(t, err)
	assert.Equal(t, hw.XY{24000, 25000}, v)

	require.NoError(t, inst.Lens.SetILFocus(32000))
	assert.Equal(t, uint16(32000), m.ILFocus())

	_, err = inst.Aperture.HoleIndex(hw.ApertureKind(0))
	assert.ErrorIs(t, err, hw.ErrInvalidAperture)
}

func TestRegisteredBackend(t *testing.T) {
	inst, err := hw.Open(BackendName, hw.BackendConfig{DriveRates: []float64{100}, Logger: logger.NewNopMockLogger()})
	require.NoError(t, err)
	require.NotNil(t, inst.Stage)

	assert.ErrorIs(t, inst.Stage.SetDriveRate(1), hw.ErrInvalidDriveRate)
}
