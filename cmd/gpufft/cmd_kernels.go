package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cwbudde/gpufft/internal/fftypes"
	"github.com/cwbudde/gpufft/internal/pool"
)

func newKernelsCmd() *cobra.Command {
	kernelsCmd := &cobra.Command{
		Use:   "kernels",
		Short: "List the kernel function pool",
		Args:  cobra.NoArgs,
		RunE:  KernelsHandler,
	}

	kernelsCmd.Flags().String("scheme", "", "Only list radix or direct kernels")
	kernelsCmd.Flags().String("layout", "", "Only list plain or block kernels")
	kernelsCmd.Flags().String("precision", "", "Only list kernels of one precision")
	kernelsCmd.Flags().Int("length", 0, "Only list kernels of one length")
	kernelsCmd.Flags().Bool("lengths", false, "Print the registered lengths per scheme and layout instead")

	return kernelsCmd
}

type kernelFilter struct {
	scheme    string
	layout    string
	precision string
	length    int
}

func (f kernelFilter) match(d pool.Descriptor) bool {
	switch {
	case f.scheme != "" && !strings.EqualFold(f.scheme, d.Scheme.String()):
		return false
	case f.layout != "" && !strings.EqualFold(f.layout, d.Layout.String()):
		return false
	case f.precision != "" && !strings.EqualFold(f.precision, d.Precision.String()):
		return false
	case f.length != 0 && f.length != d.Length:
		return false
	default:
		return true
	}
}

// KernelsHandler prints the pool entries matching the filter flags.
func KernelsHandler(cmd *cobra.Command, _ []string) error {
	pl := pool.New()
	out := cmd.OutOrStdout()

	if summary, _ := cmd.Flags().GetBool("lengths"); summary {
		for _, s := range []pool.Scheme{pool.SchemeRadix, pool.SchemeDirect} {
			for _, l := range []fftypes.Layout{fftypes.LayoutPlain, fftypes.LayoutBlock} {
				lengths := pl.Lengths(s, l)
				if len(lengths) == 0 {
					continue
				}

				fmt.Fprintf(out, "%s/%s: %s\n", s, l, strings.Trim(fmt.Sprint(lengths), "[]"))
			}
		}

		return nil
	}

	var f kernelFilter
	f.scheme, _ = cmd.Flags().GetString("scheme")
	f.layout, _ = cmd.Flags().GetString("layout")
	f.precision, _ = cmd.Flags().GetString("precision")
	f.length, _ = cmd.Flags().GetInt("length")

	var data [][]string

	for _, d := range pl.All() {
		if !f.match(d) {
			continue
		}

		data = append(data, []string{
			d.Name,
			d.Scheme.String(),
			d.Layout.String(),
			strconv.Itoa(d.Length),
			d.Precision.String(),
			d.Direction.String(),
			d.Placement.String(),
			strings.Trim(fmt.Sprint(d.Passes), "[]"),
			strconv.FormatBool(d.Aliasable),
			strconv.Itoa(d.WorkElems),
		})
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"NAME", "SCHEME", "LAYOUT", "LENGTH", "PRECISION", "DIRECTION", "PLACEMENT", "PASSES", "ALIAS", "WORK"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}
