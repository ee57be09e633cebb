package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cwbudde/gpufft"
	"github.com/cwbudde/gpufft/device"
	"github.com/cwbudde/gpufft/internal/envconfig"
)

func newBenchCmd() *cobra.Command {
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Time plan executions for a list of sizes",
		Long: `Compile a plan per size, run warmup executions and report the mean
time per execution. Transforms use unitary scaling so repeated in-place
executions keep their magnitude.`,
		Args: cobra.NoArgs,
		RunE: BenchHandler,
	}

	addSpecFlags(benchCmd)
	benchCmd.Flags().String("sizes", "1024,4096,16384,65536", "Comma-separated transform lengths")
	benchCmd.Flags().Int("iters", 50, "Benchmark iterations")
	benchCmd.Flags().Int("warmup", 5, "Warmup iterations")
	benchCmd.Flags().String("direction", "forward", "Transform direction: forward or inverse")

	return benchCmd
}

type benchResult struct {
	size    int
	stages  int
	scratch int64
	nsPerOp float64
}

// gflops uses the conventional 5 N log2 N flop count of a complex FFT.
func (r benchResult) gflops(batch int) float64 {
	n := float64(r.size)
	return 5 * n * math.Log2(n) * float64(batch) / r.nsPerOp
}

// BenchHandler benchmarks plan execution on the default device.
func BenchHandler(cmd *cobra.Command, _ []string) error {
	list, _ := cmd.Flags().GetString("sizes")

	sizes, err := parseLengths([]string{list})
	if err != nil {
		return err
	}

	iters, _ := cmd.Flags().GetInt("iters")
	warmup, _ := cmd.Flags().GetInt("warmup")

	if iters < 1 || warmup < 0 {
		return fmt.Errorf("invalid iteration counts %d/%d", iters, warmup)
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	var cache *gpufft.PlanCache
	if envconfig.PlanCache(true) {
		cache = gpufft.NewPlanCache()
		defer cache.Close()
	}

	var (
		results []benchResult
		spec    gpufft.TransformSpec
	)

	for _, n := range sizes {
		if spec, err = specFromFlags(cmd, []int{n}); err != nil {
			return err
		}

		spec.Scale = 1 / math.Sqrt(float64(n))

		res, err := benchSize(s, cache, spec, iters, warmup)
		if err != nil {
			return fmt.Errorf("size %d: %w", n, err)
		}

		results = append(results, res)
	}

	info, _ := device.CurrentBackendInfo()
	fmt.Fprintf(cmd.OutOrStdout(), "backend=%s device=%s iters=%d warmup=%d\n\n",
		info.Name, s.ctx.Device().ComputeCap, iters, warmup)

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"SIZE", "PRECISION", "PLACEMENT", "STAGES", "SCRATCH", "NS/OP", "GFLOPS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")

	for _, r := range results {
		table.Append([]string{
			strconv.Itoa(r.size),
			spec.Precision.String(),
			spec.Placement.String(),
			strconv.Itoa(r.stages),
			strconv.FormatInt(r.scratch, 10),
			strconv.FormatFloat(r.nsPerOp, 'f', 1, 64),
			strconv.FormatFloat(r.gflops(spec.Batch), 'f', 3, 64),
		})
	}

	table.Render()

	return nil
}

// benchSize times one size. Plans come from cache when it is not nil.
func benchSize(s *session, cache *gpufft.PlanCache, spec gpufft.TransformSpec, iters, warmup int) (benchResult, error) {
	var (
		p   *gpufft.Plan
		err error
	)

	if cache != nil {
		p, err = cache.Get(spec)
	} else {
		p, err = gpufft.Compile(spec)
		if err == nil {
			defer p.Destroy()
		}
	}

	if err != nil {
		return benchResult{}, err
	}

	b, err := s.allocFor(p)
	if err != nil {
		return benchResult{}, err
	}
	defer b.Close()

	rng := rand.New(rand.NewPCG(uint64(spec.Elements()), 7))

	x := make([]complex128, spec.BufferElements())
	for i := range x {
		x[i] = complex(rng.Float64(), rng.Float64())
	}

	if err := device.WriteSamples(b.in, spec.Precision, 0, x); err != nil {
		return benchResult{}, err
	}

	for range warmup {
		if err := s.run(p, b); err != nil {
			return benchResult{}, err
		}
	}

	runtime.GC()

	start := time.Now()

	for range iters {
		if err := gpufft.Execute(p, b.in, b.out, s.ec); err != nil {
			return benchResult{}, err
		}
	}

	if err := s.ec.Synchronize(); err != nil {
		return benchResult{}, err
	}

	elapsed := time.Since(start)

	return benchResult{
		size:    spec.Elements(),
		stages:  len(p.Stages()),
		scratch: p.WorkBufferSize(),
		nsPerOp: float64(elapsed.Nanoseconds()) / float64(iters),
	}, nil
}
