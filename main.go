// The main package for the forum-archiver executable.
//
// Architecture overview:
//   - CLI: cmd builds a cobra tree (archive, monitor, inspect, sinks). Configuration comes from Viper
//     (defaults, optional file, .env, ARCHIVER_* env vars, flags) and is validated before any network I/O.
//   - Services: internal/app opens the sink chosen through the storage registry, the publisher and the
//     colly-based fetcher (rate limited per host, shared cookie jar) and hands them to the engine.
//   - Engine: discovers the page count from page 1, fans pages out to a bounded errgroup, solves the
//     interstitial challenge when it appears, extracts posts with goquery and writes each record to the sink.
//   - Observability: zap logs, Prometheus counters, and an optional chi status server on metrics.listen_addr.
//
// Quick checklist:
//   - Archive one thread: forum-archiver archive -t 'http://facepunch.com/showthread.php?t=1250244' -o ./out
//   - Archive a batch: forum-archiver archive -f threads.txt -p sqlite --database archive.db
//   - Read back: forum-archiver inspect -o ./out --thread 1 --page 2 --post 41
package main

import (
	"fmt"
	"os"

	"github.com/JakeFAU/forum-archiver/cmd"
)

// main defers all execution to the Cobra CLI and maps failures to exit status 1.
func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
