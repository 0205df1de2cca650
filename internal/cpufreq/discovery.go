package cpufreq

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
)

// Discover scans root for policy directories and constructs a Domain for
// each. A directory that fails validation is logged and skipped so one
// broken policy does not take down the rest of the system.
func Discover(root string, log logr.Logger) ([]*Domain, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read cpufreq root %s: %w", root, err)
	}

	domains := make([]*Domain, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), policyDirPrefix) {
			continue
		}

		domain, err := NewDomain(filepath.Join(root, entry.Name()), log)
		if err != nil {
			log.Error(err, "skipping cpufreq domain", "dir", entry.Name())
			continue
		}
		domains = append(domains, domain)
	}

	return domains, nil
}
