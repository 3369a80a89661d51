// Package config resolves the addresses a Cluster configuration's worker
// processes listen on, from an explicit hostfile or the default
// localhost:2101+i scheme (grounded on original_source/communication/src/initialize.rs).
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/flowlattice/runtime/internal/errs"
)

// DefaultBasePort is the first port used when no hostfile is given; process
// i listens on DefaultBasePort+i.
const DefaultBasePort = 2101

// ResolveAddresses returns one "host:port" per process, in process-index
// order. If path is empty, it synthesizes localhost:2101, localhost:2102,
// ... for n processes.
func ResolveAddresses(path string, n int) ([]string, error) {
	if path == "" {
		if n <= 0 {
			return nil, errs.NewConfigError("process count must be positive to synthesize default addresses")
		}
		addrs := make([]string, n)
		for i := 0; i < n; i++ {
			addrs[i] = fmt.Sprintf("localhost:%d", DefaultBasePort+i)
		}
		return addrs, nil
	}
	return ReadHostfile(path)
}

// ReadHostfile parses one "host:port" per non-blank, non-comment line.
func ReadHostfile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.NewConfigError("opening hostfile %s: %v", path, err)
	}
	defer f.Close()

	var addrs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, ":") {
			return nil, errs.NewConfigError("hostfile %s: malformed line %q, expected host:port", path, line)
		}
		addrs = append(addrs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.NewConfigError("reading hostfile %s: %v", path, err)
	}
	if len(addrs) == 0 {
		return nil, errs.NewConfigError("hostfile %s contains no addresses", path)
	}
	return addrs, nil
}
