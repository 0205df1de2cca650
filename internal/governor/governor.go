package governor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/PKQandBaaad/fas-rs-next/internal/bypass"
	"github.com/PKQandBaaad/fas-rs-next/internal/cpufreq"
	"github.com/PKQandBaaad/fas-rs-next/internal/usage"
)

// Func definitions for unit testing
var (
	discoverDomainsFunc = cpufreq.Discover
	testHookStopLoop    func() bool
)

type usageSampler interface {
	Sample(topCores int) (*usage.Snapshot, error)
}

// Governor runs the fixed-cadence control loop over every discovered
// frequency scaling domain.
type Governor interface {
	Start(ctx context.Context) error
	UpdateOpts(opts *Opts)
	Rescan() error
	Domains() []*cpufreq.Domain
}

type governorImpl struct {
	sysfsRoot string
	writer    cpufreq.Writer
	sampler   usageSampler
	target    TargetSource
	bypass    *bypass.Table
	domains   sync.Map
	opts      atomic.Pointer[Opts]
	logger    logr.Logger
}

func New(sysfsRoot string, writer cpufreq.Writer, table *bypass.Table, opts *Opts, log logr.Logger) Governor {
	governor := &governorImpl{
		sysfsRoot: sysfsRoot,
		writer:    writer,
		sampler:   usage.NewTracker(log),
		target:    NewBusynessTarget(),
		bypass:    table,
		logger:    log.WithName("governor"),
	}
	governor.opts.Store(opts)

	return governor
}

// Rescan reconciles the tracked domain set with the policy directories
// currently present. New domains are bound to their bypass flag before
// they can tick; removed domains are reset to the full hardware range.
// Call before Start or between ticks, never concurrently with one.
func (g *governorImpl) Rescan() error {
	discovered, err := discoverDomainsFunc(g.sysfsRoot, g.logger)
	if err != nil {
		return err
	}

	incoming := map[int]struct{}{}
	for _, domain := range discovered {
		incoming[domain.PolicyID()] = struct{}{}

		// an already tracked domain keeps its target and verification
		// state
		if _, found := g.domains.Load(domain.PolicyID()); found {
			continue
		}

		domain.BindBypass(g.bypass.Flag(domain.PolicyID()))
		g.logger.V(5).Info("tracking cpufreq domain",
			"policy", domain.PolicyID(), "cpus", domain.AffectedCPUs())
		g.domains.Store(domain.PolicyID(), domain)
	}

	for _, policyID := range g.policyIDs() {
		if _, contains := incoming[policyID]; !contains {
			if value, found := g.domains.LoadAndDelete(policyID); found {
				domain := value.(*cpufreq.Domain)
				g.logger.V(5).Info("releasing removed domain", "policy", policyID)
				if err := domain.Reset(g.writer); err != nil {
					g.logger.Error(err, "failed to reset removed domain", "policy", policyID)
				}
			}
		}
	}

	return nil
}

func (g *governorImpl) Start(ctx context.Context) error {
	g.logger.V(5).Info("starting control loop")

	for {
		if testHookStopLoop != nil {
			if testHookStopLoop() {
				return nil
			}
		}

		opts := g.opts.Load()
		select {
		case <-ctx.Done():
			g.stop()
			return nil
		case <-time.After(opts.SamplePeriod):
			g.tick(opts)
		}
	}
}

func (g *governorImpl) UpdateOpts(opts *Opts) {
	g.opts.Store(opts)
}

func (g *governorImpl) Domains() []*cpufreq.Domain {
	domains := make([]*cpufreq.Domain, 0)
	g.domains.Range(func(_, value any) bool {
		domains = append(domains, value.(*cpufreq.Domain))
		return true
	})
	return domains
}

func (g *governorImpl) tick(opts *Opts) {
	snapshot, err := g.sampler.Sample(opts.TopBusyCores)
	if err != nil {
		g.logger.Error(err, "usage sampling failed, skipping tick")
		return
	}

	g.domains.Range(func(_, value any) bool {
		domain := value.(*cpufreq.Domain)
		freq := g.target.Target(domain, snapshot)
		if err := domain.Apply(freq, snapshot.TopCores, g.writer); err != nil {
			g.logger.Error(err, "skipping domain this tick", "policy", domain.PolicyID())
		}
		return true
	})
}

// stop relinquishes control of every domain on shutdown.
func (g *governorImpl) stop() {
	g.logger.V(5).Info("relinquishing control of all domains")

	for _, policyID := range g.policyIDs() {
		if value, found := g.domains.LoadAndDelete(policyID); found {
			domain := value.(*cpufreq.Domain)
			if err := domain.Reset(g.writer); err != nil {
				g.logger.Error(err, "failed to reset domain", "policy", policyID)
			}
		}
	}
}

func (g *governorImpl) policyIDs() []int {
	policyIDs := make([]int, 0)
	g.domains.Range(func(key, _ any) bool {
		policyIDs = append(policyIDs, key.(int))
		return true
	})

	return policyIDs
}
