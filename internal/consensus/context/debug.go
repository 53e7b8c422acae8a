package context

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// Dump renders an operator-facing snapshot of the rolling windows: a
// second use of the debug table C10's DumpZone already established for
// peerset, reused here rather than hand-rolling a second ad hoc format.
func Dump(w io.Writer, s *State) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(false)
	table.Append([]string{"height", fmt.Sprintf("%d", s.height.Load())})
	table.Append([]string{"hard_fork", fmt.Sprintf("%d", s.hardFork.Load())})
	table.Append([]string{"timestamps_retained", fmt.Sprintf("%d", s.timestamps.len())})
	table.Append([]string{"short_weights_retained", fmt.Sprintf("%d", s.shortWeights.len())})
	table.Append([]string{"long_weights_retained", fmt.Sprintf("%d", s.longWeights.len())})
	table.Append([]string{"votes_retained", fmt.Sprintf("%d", s.votes.len())})
	table.Render()
}
