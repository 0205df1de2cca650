package cpufreq

import (
	"errors"
	"time"

	"golang.org/x/exp/constraints"
)

const (
	// DefaultSysfsRoot is where the kernel exposes frequency scaling
	// policies.
	DefaultSysfsRoot = "/sys/devices/system/cpu/cpufreq"

	policyDirPrefix = "policy"

	availableFrequenciesFile = "scaling_available_frequencies"
	affectedCPUsFile         = "affected_cpus"
	currentFrequencyFile     = "scaling_cur_freq"
	minFrequencyFile         = "scaling_min_freq"
	maxFrequencyFile         = "scaling_max_freq"

	verifyPeriod = 3 * time.Second
)

var (
	ErrInvalidPolicyName     = errors.New("policy directory name is invalid")
	ErrUnreadableFrequencies = errors.New("failed to read available frequencies")
	ErrEmptyFrequencyTable   = errors.New("frequency table is empty")
	ErrUnreadableAffinity    = errors.New("failed to read affected cpus")
	ErrInvalidCoreIndex      = errors.New("affected cpu index is invalid")
	ErrNoFrequencies         = errors.New("no frequencies available")
	ErrBypassUnbound         = errors.New("bypass flag not bound")
)

// Func definitions for unit testing
var nowFunc = time.Now

// Writer performs a single scoped write to a control file. Retry and
// workaround handling for flaky kernel interfaces belongs to the
// implementation; callers treat a write as atomic-or-failed.
type Writer interface {
	Write(path string, value string) error
}

// CoreSet reports membership of logical core indices.
type CoreSet interface {
	Contains(cpu uint) bool
}

func clamp[T constraints.Ordered](value, low, high T) T {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
