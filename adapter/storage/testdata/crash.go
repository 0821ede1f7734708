//go:build ignore

// Command crash rewrites a datafile with many lines, so tests can kill it in
// the middle of a crash-safe write.
package main

import (
	"fmt"
	"os"

	"github.com/vinicius-lino-figueiredo/godm/adapter/storage"
)

const total = 50000

func main() {
	lines := make([][]byte, total)
	for n := range total {
		lines[n] = fmt.Appendf(nil, "somedata_%s", os.Args[1])
	}

	if err := storage.NewStorage().CrashSafeWriteFileLines(os.Args[2], lines, 0o755, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
