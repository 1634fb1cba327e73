// Package planner computes the next block range a chain worker should
// scan. It is a pure function with no I/O, matching spec.md §9's
// "pure, testable function" design note and grounded in the reference
// project's preference for small, dependency-free core helpers (e.g.
// internal/pipeline/retry's classification helpers).
package planner

import "fmt"

// Window is an inclusive range [From, To] of block numbers to scan. The
// processor passes both bounds unchanged to eth_getLogs and, on success,
// commits the cursor to To.
type Window struct {
	From int64
	To   int64
}

// Plan computes the next window to scan given the chain's last
// processed block, the chain's current head, and the configured
// maximum window width. It returns (Window{}, false) when there is
// nothing new to scan (the chain is "Idle").
//
//	from = cursor + 1
//	to   = min(from + maxBlockRange - 1, latest)
//	if from > to: Idle
func Plan(lastProcessedBlock, latest, maxBlockRange int64) (Window, bool, error) {
	if maxBlockRange <= 0 {
		return Window{}, false, fmt.Errorf("planner: maxBlockRange must be positive, got %d", maxBlockRange)
	}

	from := lastProcessedBlock + 1
	to := from + maxBlockRange - 1
	if latest < to {
		to = latest
	}

	if from > to {
		return Window{}, false, nil
	}
	return Window{From: from, To: to}, true, nil
}
