package peerset

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/cuprate/cuprate/internal/levin"
)

// DumpZone renders a human-readable snapshot of zone's live clients to w,
// for operator debugging only — never parsed by anything in this module.
func DumpZone(w io.Writer, s *Set, zone levin.Zone) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Peer", "State", "Load"})
	table.SetAutoWrapText(false)

	for _, c := range s.snapshot(zone) {
		table.Append([]string{
			c.Peer.Addr().Onion,
			c.Peer.State(),
			fmt.Sprintf("%d", c.Load()),
		})
	}
	table.Render()
}
