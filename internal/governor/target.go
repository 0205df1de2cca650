package governor

import (
	"github.com/PKQandBaaad/fas-rs-next/internal/cpufreq"
	"github.com/PKQandBaaad/fas-rs-next/internal/usage"
)

// TargetSource decides the frequency to request for a domain this tick.
type TargetSource interface {
	Target(domain *cpufreq.Domain, snapshot *usage.Snapshot) int
}

// busynessTarget scales the requested frequency linearly with the
// busiest core of the domain: an idle domain is pushed toward its
// minimum, a saturated one toward its maximum.
type busynessTarget struct{}

func NewBusynessTarget() TargetSource {
	return busynessTarget{}
}

func (busynessTarget) Target(domain *cpufreq.Domain, snapshot *usage.Snapshot) int {
	peak := 0
	for _, cpu := range domain.AffectedCPUs() {
		if busyness, found := snapshot.Busyness[cpu]; found && busyness > peak {
			peak = busyness
		}
	}

	freqs := domain.Frequencies()
	return FrequencyFromPercent(freqs[0], freqs[len(freqs)-1], peak)
}

// FrequencyFromPercent maps a 0-100 load percentage onto the inclusive
// frequency range.
func FrequencyFromPercent(minFreq, maxFreq, percent int) int {
	return minFreq + (maxFreq-minFreq)*percent/100
}
