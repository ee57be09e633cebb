package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/gpufft"
	"github.com/cwbudde/gpufft/internal/fftypes"
)

func addSpecFlags(cmd *cobra.Command) {
	cmd.Flags().String("precision", "single", "Sample precision: single, double or half")
	cmd.Flags().String("placement", "outofplace", "Buffer placement: inplace or outofplace")
	cmd.Flags().Int("batch", 1, "Number of transforms")
	cmd.Flags().Int("stride", 0, "Distance between batches in samples (0 = dense)")
}

func parsePlacement(s string) (gpufft.Placement, error) {
	switch strings.ToLower(s) {
	case "inplace", "in-place", "ip":
		return gpufft.InPlace, nil
	case "outofplace", "out-of-place", "op":
		return gpufft.OutOfPlace, nil
	default:
		return 0, fmt.Errorf("unknown placement %q", s)
	}
}

func parseDirection(s string) (gpufft.Direction, error) {
	switch strings.ToLower(s) {
	case "forward", "fwd":
		return gpufft.Forward, nil
	case "inverse", "backward", "back":
		return gpufft.Inverse, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

func parseLengths(args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, arg := range args {
		for part := range strings.SplitSeq(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}

			n, err := strconv.Atoi(part)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid length %q", part)
			}

			out = append(out, n)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no lengths given")
	}

	return out, nil
}

// specFromFlags builds a transform description from the shared flags.
func specFromFlags(cmd *cobra.Command, lengths []int) (gpufft.TransformSpec, error) {
	spec := gpufft.TransformSpec{Lengths: lengths, Direction: gpufft.Forward}

	precision, _ := cmd.Flags().GetString("precision")

	p, ok := fftypes.ParsePrecision(strings.ToLower(precision))
	if !ok {
		return spec, fmt.Errorf("unknown precision %q", precision)
	}

	spec.Precision = p

	placement, _ := cmd.Flags().GetString("placement")

	var err error
	if spec.Placement, err = parsePlacement(placement); err != nil {
		return spec, err
	}

	spec.Batch, _ = cmd.Flags().GetInt("batch")
	spec.BatchStride, _ = cmd.Flags().GetInt("stride")

	if cmd.Flags().Lookup("direction") != nil {
		direction, _ := cmd.Flags().GetString("direction")
		if spec.Direction, err = parseDirection(direction); err != nil {
			return spec, err
		}
	}

	if cmd.Flags().Lookup("scale") != nil {
		spec.Scale, _ = cmd.Flags().GetFloat64("scale")
	}

	return spec, nil
}
