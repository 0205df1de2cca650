package testutils

import (
	"github.com/stretchr/testify/mock"
)

// MockWriter implements the control file writer consumed by cpufreq
// domains.
type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) Write(path string, value string) error {
	return m.Called(path, value).Error(0)
}

// StaticCoreSet is a fixed membership set for tests.
type StaticCoreSet map[uint]bool

func (s StaticCoreSet) Contains(cpu uint) bool {
	return s[cpu]
}
