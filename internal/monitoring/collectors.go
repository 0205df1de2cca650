package monitoring

import (
	"strconv"

	"github.com/go-logr/logr"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/PKQandBaaad/fas-rs-next/internal/cpufreq"
)

const (
	promNamespace    string = "freqgov"
	cpufreqSubsystem string = "cpufreq"
)

type collectorImpl struct {
	collectFunc  func(ch chan<- prom.Metric)
	describeFunc func(ch chan<- *prom.Desc)
}

func (c collectorImpl) Collect(ch chan<- prom.Metric) {
	c.collectFunc(ch)
}

func (c collectorImpl) Describe(ch chan<- *prom.Desc) {
	c.describeFunc(ch)
}

// NewDomainCollector builds a prometheus Collector over the live domain
// set. domains is called on every scrape so rescans are picked up.
// Collection never interferes with control: an unreadable hardware
// frequency only drops that one sample.
func NewDomainCollector(domains func() []*cpufreq.Domain, log logr.Logger) prom.Collector {
	targetDesc := prom.NewDesc(
		prom.BuildFQName(promNamespace, cpufreqSubsystem, "target_khz"),
		"Last frequency requested for the policy.",
		[]string{"policy"},
		nil,
	)
	currentDesc := prom.NewDesc(
		prom.BuildFQName(promNamespace, cpufreqSubsystem, "current_khz"),
		"Hardware reported frequency for the policy.",
		[]string{"policy"},
		nil,
	)
	mismatchDesc := prom.NewDesc(
		prom.BuildFQName(promNamespace, cpufreqSubsystem, "verify_mismatches_total"),
		"Verification checks where hardware diverged from the requested band.",
		[]string{"policy"},
		nil,
	)

	return collectorImpl{
		describeFunc: func(ch chan<- *prom.Desc) {
			ch <- targetDesc
			ch <- currentDesc
			ch <- mismatchDesc
		},
		collectFunc: func(ch chan<- prom.Metric) {
			for _, domain := range domains() {
				policy := strconv.Itoa(domain.PolicyID())

				ch <- prom.MustNewConstMetric(
					targetDesc, prom.GaugeValue, float64(domain.CurrentTarget()), policy)
				ch <- prom.MustNewConstMetric(
					mismatchDesc, prom.CounterValue, float64(domain.MismatchCount()), policy)

				if current, err := domain.ReadFreq(); err == nil {
					ch <- prom.MustNewConstMetric(
						currentDesc, prom.GaugeValue, float64(current), policy)
				} else {
					log.V(5).Info("not collecting hardware frequency", "policy", policy, "error", err.Error())
				}
			}
		},
	}
}
