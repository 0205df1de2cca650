package cpufreq

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
)

// Domain controls one frequency scaling policy: a group of cores sharing
// a clock, steered through the scaling_min_freq and scaling_max_freq
// knobs. A Domain is owned by a single control loop and is not safe for
// concurrent mutation; the target and mismatch counters may be read
// concurrently by metric collectors.
type Domain struct {
	policyID     int
	path         string
	affectedCPUs []uint
	freqs        []int // sorted ascending, never empty

	currentTarget   atomic.Int64
	verifyTarget    int
	hasVerifyTarget bool
	verifyTimer     time.Time

	bypass     *atomic.Bool
	mismatches atomic.Int64

	logger logr.Logger
}

// NewDomain builds a Domain from a policy control directory. The policy
// ID is parsed from the directory name, the frequency table and affected
// core list from their control files. The initial target is the maximum
// available frequency.
func NewDomain(path string, log logr.Logger) (*Domain, error) {
	name := filepath.Base(path)
	suffix, found := strings.CutPrefix(name, policyDirPrefix)
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolicyName, name)
	}
	policyID, err := strconv.Atoi(suffix)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolicyName, name)
	}

	freqs, err := readIntList(filepath.Join(path, availableFrequenciesFile))
	if err != nil {
		return nil, fmt.Errorf("%w for policy %d: %v", ErrUnreadableFrequencies, policyID, err)
	}
	if len(freqs) == 0 {
		return nil, fmt.Errorf("%w for policy %d", ErrEmptyFrequencyTable, policyID)
	}
	sort.Ints(freqs)

	cpus, err := readAffectedCPUs(filepath.Join(path, affectedCPUsFile), policyID)
	if err != nil {
		return nil, err
	}

	domain := &Domain{
		policyID:     policyID,
		path:         path,
		affectedCPUs: cpus,
		freqs:        freqs,
		verifyTimer:  nowFunc(),
		logger:       log.WithName("domain").WithValues("policy", policyID),
	}
	domain.currentTarget.Store(int64(freqs[len(freqs)-1]))

	return domain, nil
}

func (d *Domain) PolicyID() int {
	return d.policyID
}

func (d *Domain) AffectedCPUs() []uint {
	cpus := make([]uint, len(d.affectedCPUs))
	copy(cpus, d.affectedCPUs)
	return cpus
}

func (d *Domain) Frequencies() []int {
	freqs := make([]int, len(d.freqs))
	copy(freqs, d.freqs)
	return freqs
}

// CurrentTarget is the last frequency this controller decided to
// request, whether or not the write was suppressed.
func (d *Domain) CurrentTarget() int {
	return int(d.currentTarget.Load())
}

// MismatchCount is the number of verification checks where hardware
// diverged from the requested band.
func (d *Domain) MismatchCount() int64 {
	return d.mismatches.Load()
}

// BindBypass attaches the process-wide bypass flag for this domain.
// Must be called before the first Apply.
func (d *Domain) BindBypass(flag *atomic.Bool) {
	d.bypass = flag
}

// Apply clamps freq into the domain's supported range and enforces it.
// The clamped value becomes the current target even when the bypass flag
// suppresses the write. A domain with a busy core gets pinned to the
// exact target; otherwise the floor drops to the domain minimum and the
// target only caps the ceiling.
func (d *Domain) Apply(freq int, busy CoreSet, writer Writer) error {
	if len(d.freqs) == 0 {
		return fmt.Errorf("%w for policy %d", ErrNoFrequencies, d.policyID)
	}
	minFreq := d.freqs[0]
	maxFreq := d.freqs[len(d.freqs)-1]

	previous := int(d.currentTarget.Load())
	target := clamp(freq, minFreq, maxFreq)
	d.currentTarget.Store(int64(target))

	if d.bypass == nil {
		return fmt.Errorf("%w for policy %d", ErrBypassUnbound, d.policyID)
	}
	if d.bypass.Load() {
		return nil
	}

	value := strconv.Itoa(target)
	if d.critical(busy) {
		d.verify(target)
		// Lowering the pin moves the floor first so the kernel never
		// sees min above max.
		if target < previous {
			if err := writer.Write(d.controlFile(minFrequencyFile), value); err != nil {
				return err
			}
			return writer.Write(d.controlFile(maxFrequencyFile), value)
		}
		if err := writer.Write(d.controlFile(maxFrequencyFile), value); err != nil {
			return err
		}
		return writer.Write(d.controlFile(minFrequencyFile), value)
	}

	if err := writer.Write(d.controlFile(minFrequencyFile), strconv.Itoa(minFreq)); err != nil {
		return err
	}
	return writer.Write(d.controlFile(maxFrequencyFile), value)
}

// Reset restores the full hardware-governed range and clears the
// verification baseline. Used when relinquishing control of a domain.
func (d *Domain) Reset(writer Writer) error {
	if len(d.freqs) == 0 {
		return fmt.Errorf("%w for policy %d", ErrNoFrequencies, d.policyID)
	}
	d.hasVerifyTarget = false

	maxFreq := strconv.Itoa(d.freqs[len(d.freqs)-1])
	minFreq := strconv.Itoa(d.freqs[0])
	if err := writer.Write(d.controlFile(maxFrequencyFile), maxFreq); err != nil {
		return err
	}
	return writer.Write(d.controlFile(minFrequencyFile), minFreq)
}

// ReadFreq returns the hardware-reported current frequency.
func (d *Domain) ReadFreq() (int, error) {
	data, err := os.ReadFile(d.controlFile(currentFrequencyFile))
	if err != nil {
		return 0, fmt.Errorf("failed to read current frequency for policy %d: %w", d.policyID, err)
	}
	freq, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse current frequency for policy %d: %w", d.policyID, err)
	}
	return freq, nil
}

func (d *Domain) critical(busy CoreSet) bool {
	if busy == nil {
		return false
	}
	for _, cpu := range d.affectedCPUs {
		if busy.Contains(cpu) {
			return true
		}
	}
	return false
}

// verify checks at most once per window whether hardware honored the
// previously requested frequency, then records target as the baseline
// for the next window. The one-window delay gives hardware time to
// settle before judgment.
func (d *Domain) verify(target int) {
	if nowFunc().Sub(d.verifyTimer) >= verifyPeriod {
		d.verifyTimer = nowFunc()

		if d.hasVerifyTarget {
			d.checkDrift()
		}
	}

	d.verifyTarget = target
	d.hasVerifyTarget = true
}

func (d *Domain) checkDrift() {
	current, err := d.ReadFreq()
	if err != nil {
		d.logger.Error(err, "skipping frequency verification")
		return
	}

	low, high := d.acceptanceBand(d.verifyTarget)
	if current < low || current > high {
		d.mismatches.Add(1)
		d.logger.Info("frequency control does not meet expectations",
			"expectedMin", low, "expectedMax", high, "actual", current)
	}
}

// acceptanceBand brackets target with the nearest table entries on
// either side, falling back to target itself past the table edges.
func (d *Domain) acceptanceBand(target int) (int, int) {
	low, high := target, target
	if i := sort.SearchInts(d.freqs, target+1); i > 0 {
		low = d.freqs[i-1]
	}
	if i := sort.SearchInts(d.freqs, target); i < len(d.freqs) {
		high = d.freqs[i]
	}
	return low, high
}

func (d *Domain) controlFile(name string) string {
	return filepath.Join(d.path, name)
}

func readIntList(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(string(data))
	values := make([]int, 0, len(fields))
	for _, field := range fields {
		value, err := strconv.Atoi(field)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

func readAffectedCPUs(path string, policyID int) ([]uint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w for policy %d: %v", ErrUnreadableAffinity, policyID, err)
	}

	fields := strings.Fields(string(data))
	cpus := make([]uint, 0, len(fields))
	for _, field := range fields {
		cpu, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w for policy %d: %q", ErrInvalidCoreIndex, policyID, field)
		}
		cpus = append(cpus, uint(cpu))
	}
	return cpus, nil
}
