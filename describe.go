package gpufft

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Describe writes a summary of the plan followed by a table of its stages.
func (p *Plan) Describe(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "plan %s\n  transform %v\n  scratch   %d bytes (%d regions)\n  twiddles  %s\n\n",
		p.id, p.spec, p.scratchBytes, p.regions, p.twiddleSummary()); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "KERNEL", "DIM", "IN", "OUT", "GEOMETRY", "TWIDDLES", "WORK"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")

	for i, s := range p.stages {
		tw := "-"
		if s.Twiddle.Length > 0 {
			tw = fmt.Sprintf("%d@%d", s.Twiddle.Length, s.Twiddle.Offset)
		}

		table.Append([]string{
			strconv.Itoa(i),
			s.Kernel,
			strconv.Itoa(s.Dim),
			s.In.String(),
			s.Out.String(),
			s.geometry(),
			tw,
			strconv.FormatInt(s.WorkBytes, 10),
		})
	}

	table.Render()

	return nil
}

func (p *Plan) twiddleSummary() string {
	if len(p.twiddles) == 0 {
		return "none"
	}

	parts := make([]string, len(p.twiddles))
	for i, t := range p.twiddles {
		parts[i] = strconv.Itoa(t.Length)
	}

	return strings.Join(parts, ", ")
}

func (s *Stage) geometry() string {
	switch s.Kind {
	case StageTranspose:
		return fmt.Sprintf("%dx%d x%d", s.Rows, s.Cols, s.Outer)
	case StageCopy:
		return fmt.Sprintf("%d samples", s.Count)
	default:
		return fmt.Sprintf("n=%d passes=%v span=%d inner=%d outer=%d", s.Length, s.Radixes, s.Span, s.Inner, s.Outer)
	}
}
