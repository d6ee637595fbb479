package phoenix

import (
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/eljojo/phoenix/types"
	"github.com/kataras/tablewriter"
	"github.com/lensesio/tableprinter"
)

type nameRow struct {
	Name     string  `header:"name"`
	ID       string  `header:"id"`
	Rank     float64 `header:"rank"`
	Trust    float64 `header:"trust"`
	Claimers string  `header:"also claimed by"`
}

func (q *Query) nameRows() []nameRow {
	names := q.NamesByID()
	conflicts := map[string][]types.FeedID{}
	for _, c := range q.Conflicts() {
		conflicts[c.Name] = c.IDs
	}

	rows := make([]nameRow, 0, len(names))
	for id, name := range names {
		var trust float64
		if p := q.GetProfile(id); p != nil {
			trust = p.Trust
		}
		var others []string
		for _, other := range conflicts[name] {
			if other != id {
				others = append(others, other.String())
			}
		}
		rows = append(rows, nameRow{name, id.String(), q.NameTrustRank(id), trust, strings.Join(others, ", ")})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].ID < rows[j].ID
	})
	return rows
}

// PrintNames writes the current name bindings as a table.
func (q *Query) PrintNames(w io.Writer) {
	printer := tableprinter.New(w)
	printer.BorderTop, printer.BorderBottom, printer.BorderLeft, printer.BorderRight = true, true, true, true
	printer.CenterSeparator = "│"
	printer.ColumnSeparator = "│"
	printer.RowSeparator = "─"
	printer.HeaderBgColor = tablewriter.BgBlackColor
	printer.HeaderFgColor = tablewriter.FgGreenColor
	printer.Print(q.nameRows())
}

// PrintNamesForever reprints the name table every refresh until ctx is done.
func (q *Query) PrintNamesForever(ctx context.Context, w io.Writer, refresh time.Duration) {
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	for {
		q.PrintNames(w)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
