//go:build linux
// +build linux

package cmd

import (
	"fmt"

	perf "github.com/hodgesds/perf-utils"
)

// runWithPerf wraps the run with hardware counter measurement. Requires
// perf_event_open permission (kernel.perf_event_paranoid <= 2).
func runWithPerf(run func()) {
	cycles, err := perf.CPUCycles(func() error {
		run()
		return nil
	})
	if err != nil {
		fmt.Printf("perf counters unavailable: %s\n", err.Error())
		return
	}
	fmt.Printf("CPU cycles: %d (enabled %dns, running %dns)\n",
		cycles.Value, cycles.TimeEnabled, cycles.TimeRunning)
}
