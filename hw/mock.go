package hw

import (
	"github.com/stretchr/testify/mock"
)

// MockStage is a testify mock of Stage.
type MockStage struct {
	mock.Mock
}

var _ Stage = (*MockStage)(nil)

func (m *MockStage) Position() (StagePosition, error) {
	args := m.Called()
	return args.Get(0).(StagePosition), args.Error(1)
}

func (m *MockStage) Status() (StageStatus, error) {
	args := m.Called()
	return args.Get(0).(StageStatus), args.Error(1)
}

func (m *MockStage) MoveRel(axis Axis, delta float64) error {
	return m.Called(axis, delta).Error(0)
}

func (m *MockStage) TiltTo(angle float64) error {
	return m.Called(angle).Error(0)
}

func (m *MockStage) TiltBy(delta float64) error {
	return m.Called(delta).Error(0)
}

func (m *MockStage) DriveRate() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

func (m *MockStage) SetDriveRate(index int) error {
	return m.Called(index).Error(0)
}

func (m *MockStage) MeasurementMethod() (MeasurementMethod, error) {
	args := m.Called()
	return args.Get(0).(MeasurementMethod), args.Error(1)
}

func (m *MockStage) Stop() error {
	return m.Called().Error(0)
}
