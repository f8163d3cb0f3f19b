package stats

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockStatsUpdater struct {
	mock.Mock
}

func (m *MockStatsUpdater) Incr(name string) {
	m.Called(name)
}
func (m *MockStatsUpdater) Decr(name string) {
	m.Called(name)
}
func (m *MockStatsUpdater) RegisterMetric(name string) {
	m.Called(name)
}
func (m *MockStatsUpdater) MessageStored(participantType string) {
	m.Called(participantType)
}
func (m *MockStatsUpdater) ObserveRequest(method string, status int, d time.Duration) {
	m.Called(method, status, d)
}
