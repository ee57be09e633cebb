package main

import (
	"fmt"
	"math/cmplx"
	"math/rand/v2"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cwbudde/gpufft"
	"github.com/cwbudde/gpufft/device"
)

func newRoundtripCmd() *cobra.Command {
	roundtripCmd := &cobra.Command{
		Use:   "roundtrip LENGTH...",
		Short: "Run a forward and a scaled inverse transform and report the error",
		Example: "  gpufft roundtrip 8\n" +
			"  gpufft roundtrip 1024 --precision half --placement inplace",
		Args: cobra.MinimumNArgs(1),
		RunE: RoundtripHandler,
	}

	addSpecFlags(roundtripCmd)
	roundtripCmd.Flags().Uint64("seed", 1, "Seed of the random input")

	return roundtripCmd
}

type roundtripResult struct {
	spec     gpufft.TransformSpec
	stages   int
	scratch  int64
	maxError float64
}

// RoundtripHandler transforms random data forward and back and prints the
// largest deviation from the input.
func RoundtripHandler(cmd *cobra.Command, args []string) error {
	lengths, err := parseLengths(args)
	if err != nil {
		return err
	}

	spec, err := specFromFlags(cmd, lengths)
	if err != nil {
		return err
	}

	seed, _ := cmd.Flags().GetUint64("seed")

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := roundtrip(s, spec, seed)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"LENGTHS", "BATCH", "PRECISION", "PLACEMENT", "STAGES", "SCRATCH", "MAX ERROR"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.Append([]string{
		fmt.Sprint(res.spec.Lengths),
		strconv.Itoa(res.spec.Batch),
		res.spec.Precision.String(),
		res.spec.Placement.String(),
		strconv.Itoa(res.stages),
		strconv.FormatInt(res.scratch, 10),
		strconv.FormatFloat(res.maxError, 'e', 3, 64),
	})
	table.Render()

	return nil
}

func roundtrip(s *session, spec gpufft.TransformSpec, seed uint64) (*roundtripResult, error) {
	spec.Direction = gpufft.Forward
	spec.Scale = 0

	fwd, err := gpufft.Compile(spec)
	if err != nil {
		return nil, err
	}
	defer fwd.Destroy()

	inverse := spec
	inverse.Direction = gpufft.Inverse
	inverse.Scale = 1 / float64(spec.Elements())

	inv, err := gpufft.Compile(inverse)
	if err != nil {
		return nil, err
	}
	defer inv.Destroy()

	b, err := s.allocFor(fwd)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	if inv.WorkBufferSize() > fwd.WorkBufferSize() {
		return nil, fmt.Errorf("inverse plan needs %d scratch bytes, forward %d", inv.WorkBufferSize(), fwd.WorkBufferSize())
	}

	rng := rand.New(rand.NewPCG(seed, seed+1))

	x := make([]complex128, spec.BufferElements())
	for i := range x {
		x[i] = complex(2*rng.Float64()-1, 2*rng.Float64()-1)
	}

	if err := device.WriteSamples(b.in, spec.Precision, 0, x); err != nil {
		return nil, err
	}

	if err := s.run(fwd, b); err != nil {
		return nil, err
	}

	back := &buffers{in: b.out, out: b.in, scratch: b.scratch}
	if err := s.run(inv, back); err != nil {
		return nil, err
	}

	got := make([]complex128, len(x))
	if err := device.ReadSamples(back.out, spec.Precision, 0, got); err != nil {
		return nil, err
	}

	res := &roundtripResult{spec: spec, stages: len(fwd.Stages()), scratch: fwd.WorkBufferSize()}

	dist := spec.Distance()
	for bi := range spec.Batch {
		for i := range spec.Elements() {
			k := bi*dist + i
			res.maxError = max(res.maxError, cmplx.Abs(got[k]-x[k]))
		}
	}

	return res, nil
}
