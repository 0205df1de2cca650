// Package usage classifies cores as heavily used from kernel scheduler
// counters. It produces, once per control-loop tick, the per-core busy
// percentage and the ranked set of top busy cores consumed by the
// frequency controller.
package usage

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"
)

// Func definitions for unit testing
var procStatPath = "/proc/stat"

// CoreSet is a fixed-size bitmap of logical core indices.
type CoreSet struct {
	set unix.CPUSet
}

func (s *CoreSet) Add(cpu uint) {
	s.set.Set(int(cpu))
}

func (s *CoreSet) Contains(cpu uint) bool {
	return s.set.IsSet(int(cpu))
}

func (s *CoreSet) Count() int {
	return s.set.Count()
}

// Snapshot is the per-tick output of the tracker.
type Snapshot struct {
	// Busyness maps each sampled core to its busy percentage over the
	// last interval.
	Busyness map[uint]int
	// TopCores are the busiest cores this interval, at most the
	// requested count, excluding fully idle cores.
	TopCores *CoreSet
}

type cpuTimes struct {
	busy  uint64
	total uint64
}

// Tracker derives per-core busyness from successive /proc/stat reads.
// Owned by a single control loop.
type Tracker struct {
	previous map[uint]cpuTimes
	logger   logr.Logger
}

func NewTracker(log logr.Logger) *Tracker {
	return &Tracker{
		previous: make(map[uint]cpuTimes),
		logger:   log.WithName("usage"),
	}
}

// Sample reads per-core counters and derives busyness relative to the
// previous call. The first call establishes the baseline and reports
// every core as idle.
func (t *Tracker) Sample(topCores int) (*Snapshot, error) {
	current, err := readCPUTimes()
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		Busyness: make(map[uint]int, len(current)),
		TopCores: &CoreSet{},
	}
	for cpu, times := range current {
		percent := 0
		if previous, found := t.previous[cpu]; found && times.total > previous.total {
			percent = int(100 * (times.busy - previous.busy) / (times.total - previous.total))
		}
		snapshot.Busyness[cpu] = percent
	}
	t.previous = current

	ranked := make([]uint, 0, len(snapshot.Busyness))
	for cpu := range snapshot.Busyness {
		ranked = append(ranked, cpu)
	}
	sort.Slice(ranked, func(i, j int) bool {
		left, right := snapshot.Busyness[ranked[i]], snapshot.Busyness[ranked[j]]
		if left != right {
			return left > right
		}
		return ranked[i] < ranked[j]
	})
	for i, cpu := range ranked {
		if i >= topCores || snapshot.Busyness[cpu] == 0 {
			break
		}
		snapshot.TopCores.Add(cpu)
	}
	t.logger.V(5).Info("sampled core busyness",
		"cores", len(snapshot.Busyness), "topBusy", snapshot.TopCores.Count())

	return snapshot, nil
}

func readCPUTimes() (map[uint]cpuTimes, error) {
	file, err := os.Open(procStatPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", procStatPath, err)
	}
	defer file.Close()

	times := make(map[uint]cpuTimes)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || !strings.HasPrefix(fields[0], "cpu") {
			continue
		}
		cpu, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "cpu"), 10, 32)
		if err != nil {
			// the aggregate "cpu" line
			continue
		}

		var total, idle uint64
		for i, field := range fields[1:] {
			value, err := strconv.ParseUint(field, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s column %d in %s: %w", fields[0], i+1, procStatPath, err)
			}
			total += value
			// idle and iowait columns
			if i == 3 || i == 4 {
				idle += value
			}
		}
		times[uint(cpu)] = cpuTimes{busy: total - idle, total: total}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", procStatPath, err)
	}

	return times, nil
}
