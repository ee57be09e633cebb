package main

import (
	"github.com/spf13/cobra"

	"github.com/cwbudde/gpufft"
)

func newPlanCmd() *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan LENGTH...",
		Short: "Compile a plan and print its stages",
		Long: `Compile a plan for the given lengths (fastest dimension first) and print
its stages, buffer roles, twiddle tables and scratch requirement.`,
		Example: "  gpufft plan 8192\n  gpufft plan 64 27 --placement inplace --precision double",
		Args:    cobra.MinimumNArgs(1),
		RunE:    PlanHandler,
	}

	addSpecFlags(planCmd)
	planCmd.Flags().String("direction", "forward", "Transform direction: forward or inverse")
	planCmd.Flags().Float64("scale", 0, "Output scale factor (0 = 1)")

	return planCmd
}

// PlanHandler compiles the requested transform and describes the plan.
func PlanHandler(cmd *cobra.Command, args []string) error {
	lengths, err := parseLengths(args)
	if err != nil {
		return err
	}

	spec, err := specFromFlags(cmd, lengths)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := gpufft.Compile(spec)
	if err != nil {
		return err
	}
	defer p.Destroy()

	return p.Describe(cmd.OutOrStdout())
}
