//go:build !linux
// +build !linux

package cmd

import "fmt"

func runWithPerf(run func()) {
	fmt.Println("perf counters are only available on linux, running without them")
	run()
}
