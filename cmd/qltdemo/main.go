// Command qltdemo drives the QLT tree-reduction engine over an
// in-process transport, the way allreduce/bench_allreduce/main.go
// drives the teacher's allreducers over a simulated network. It is a
// harness for exercising and eyeballing the engine, not part of the
// engine itself.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qlt-tree/qlt/qlt"
	"github.com/qlt-tree/qlt/solver"
	"github.com/qlt-tree/qlt/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "qltdemo",
		Short: "Exercise the QLT tree-reduction engine over an in-process transport",
	}
	root.AddCommand(newBFBCmd(), newConserveCmd())
	return root
}

func newBFBCmd() *cobra.Command {
	var ncells, nranks int
	var latency float64
	cmd := &cobra.Command{
		Use:   "bfb",
		Short: "Check the BFB all-reducer's tree-sum invariant across a partitioning",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBFB(ncells, nranks, latency)
		},
	}
	cmd.Flags().IntVar(&ncells, "ncells", 42, "number of leaf cells")
	cmd.Flags().IntVar(&nranks, "nranks", 4, "number of simulated ranks")
	cmd.Flags().Float64Var(&latency, "latency", 1e-3, "simulated per-message latency, seconds")
	return cmd
}

func newConserveCmd() *cobra.Command {
	var ncells, nranks int
	var latency float64
	var seed int64
	cmd := &cobra.Command{
		Use:   "conserve",
		Short: "Run a conserve+shapepreserve tracer through QLT and check global mass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConserve(ncells, nranks, latency, seed)
		},
	}
	cmd.Flags().IntVar(&ncells, "ncells", 42, "number of leaf cells")
	cmd.Flags().IntVar(&nranks, "nranks", 4, "number of simulated ranks")
	cmd.Flags().Float64Var(&latency, "latency", 1e-3, "simulated per-message latency, seconds")
	cmd.Flags().Int64Var(&seed, "seed", 1, "PRNG seed for per-leaf mass/bounds")
	return cmd
}

// runBFB partitions ncells leaves' global ids across nranks ranks,
// sums them via BFBAllReducer, and checks the result against the
// closed-form triangular-number total (spec.md §8's tree-sum
// property).
func runBFB(ncells, nranks int, latency float64) error {
	root := buildContiguousMesh(ncells, nranks)
	network := &transport.SimNetwork{MaxLatency: latency}
	want := float64(ncells*(ncells-1)) / 2

	var mu sync.Mutex
	var errs []error
	report := func(rank int, got float64) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Printf("rank %2d: sum=%v want=%v match=%v\n", rank, got, want, got == want)
	}
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	}

	if err := transport.SpawnLocal(nranks, network, func(pctx transport.Context) {
		br, err := qlt.NewBFBAllReducer(pctx, ncells, 1, root)
		if err != nil {
			fail(err)
			return
		}
		ids := br.OwnedLeafGlobalIDs()
		for lci, gid := range ids {
			br.Input(lci)[0] = float64(gid)
		}
		if err := br.Reduce(context.Background()); err != nil {
			fail(err)
			return
		}
		if len(ids) > 0 {
			report(pctx.Rank(), br.Result(0)[0])
		}
	}); err != nil {
		return err
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// runConserve declares one conserve+shapepreserve tracer, writes a
// random but bound-feasible Qm at every leaf, runs the engine once,
// and prints the global sum of Qm next to the global sum of Qm_prev
// so they can be compared (spec.md §8, "Conservation").
func runConserve(ncells, nranks int, latency float64, seed int64) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	root := buildContiguousMesh(ncells, nranks)
	network := &transport.SimNetwork{MaxLatency: latency}

	var mu sync.Mutex
	var errs []error
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	}

	if err := transport.SpawnLocal(nranks, network, func(pctx transport.Context) {
		q, err := qlt.New(pctx, ncells, root, solver.ClipAndConserve{})
		if err != nil {
			fail(err)
			return
		}
		trcr, err := q.DeclareTracer(qlt.Conserve | qlt.Shapepreserve)
		if err != nil {
			fail(err)
			return
		}
		if err := q.EndTracerDeclarations(); err != nil {
			fail(err)
			return
		}
		q.SetLogger(sugar)
		rng := rand.New(rand.NewSource(seed + int64(pctx.Rank())))

		var localSum float64
		for lci := 0; lci < q.NLclCells(); lci++ {
			rhom := 1 + rng.Float64()
			q.SetRhom(lci, rhom)
			qm := rng.Float64() * rhom
			if err := q.SetQm(lci, trcr, qm, 0, rhom, qm); err != nil {
				fail(err)
				return
			}
			localSum += qm
		}

		if err := q.Run(context.Background()); err != nil {
			fail(err)
			return
		}

		var localAfter float64
		for lci := 0; lci < q.NLclCells(); lci++ {
			got, err := q.GetQm(lci, trcr)
			if err != nil {
				fail(err)
				return
			}
			localAfter += got
		}

		sums, err := pctx.Reduce(0, []float64{localSum, localAfter}, func(a, b float64) float64 { return a + b })
		if err != nil {
			fail(err)
			return
		}
		if pctx.IsRoot() {
			fmt.Printf("global Qm_prev sum=%v global Qm sum=%v\n", sums[0], sums[1])
		}
	}); err != nil {
		return err
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
