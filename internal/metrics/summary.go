package metrics

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"
)

// WriteSummary writes one line per category, sorted by name.
func WriteSummary(w io.Writer, s Snapshot) {
	writef := func(format string, args ...any) { _, _ = fmt.Fprintf(w, format, args...) }

	if len(s.Categories) == 0 {
		writef("No cache activity recorded.\n")
		return
	}

	writef("%-8s %8s %8s %8s %8s %8s %12s %12s\n",
		"Category", "Hits", "Misses", "HitRate", "Inner", "Errors", "Avg Latency", "Max Latency")
	writef("%-8s %8s %8s %8s %8s %8s %12s %12s\n",
		"--------", "----", "------", "-------", "-----", "------", "-----------", "-----------")

	for _, name := range slices.Sorted(maps.Keys(s.Categories)) {
		m := s.Categories[name]
		writef("%-8s %8d %8d %7.1f%% %8d %8d %12v %12v\n",
			name, m.Hits, m.Misses, m.HitRate()*100, m.InnerCalls, m.InnerErrors,
			m.AvgDuration().Round(time.Microsecond), m.MaxDuration.Round(time.Microsecond))
	}
}
