package main

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/pavanmanishd/memres"
	"github.com/pavanmanishd/memres/internal/container"
)

func containerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "max-len", Usage: "largest container built in one round", Value: 1000},
		&cli.IntFlag{Name: "keep", Usage: "number of containers kept alive across rounds", Value: 16},
	}
}

func vectorCommand() *cli.Command {
	return &cli.Command{
		Name:   "vector",
		Usage:  "grow and shrink vectors on the chunked vector allocator and on the heap",
		Flags:  containerFlags(),
		Action: runVector,
	}
}

func runVector(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	values, err := memres.NewVectorAllocator[float64](cfg, log.With(logger, "component", "vector"), reg)
	if err != nil {
		return err
	}
	defer values.Release()
	indexes := memres.RebindVector[int64](values)
	defer indexes.Release()

	rng := newRand(c)
	opts := vectorWorkload{rounds: c.Int("iterations"), maxLen: c.Int("max-len"), keep: c.Int("keep")}

	// The heap run replays the same sizes.
	seed := rng.Uint64()
	chunked := timing{name: "vector (memres)"}
	if err := opts.run(values, indexes, seed, &chunked); err != nil {
		return err
	}
	heap := timing{name: "vector (heap)"}
	if err := opts.run(container.HeapAllocator[float64]{}, container.HeapAllocator[int64]{}, seed, &heap); err != nil {
		return err
	}

	level.Info(logger).Log("msg", "vector workload done", "rounds", opts.rounds, "chunks", values.NumChunks())
	printTimings(c.App.Writer, chunked, heap)
	printChain(c.App.Writer, "vector[float64]", values.Metrics())
	printChain(c.App.Writer, "vector[int64]", indexes.Metrics())
	if c.Bool("metrics") {
		return printMetrics(c.App.Writer, reg)
	}
	return nil
}

type vectorWorkload struct {
	rounds, maxLen, keep int
}

// run builds a value vector and a parallel index vector each round: push n,
// pop n/2, push n again, then check the contents. The last keep rounds stay
// alive so frees land in older chunks.
func (w vectorWorkload) run(va memres.Allocator[float64], ia memres.Allocator[int64], seed uint64, t *timing) error {
	type pair struct {
		values  *container.Vector[float64]
		indexes *container.Vector[int64]
	}
	var (
		kept []pair
		errs error
	)
	rng := newSeededRand(seed)
	start := time.Now()
	for round := 0; round < w.rounds; round++ {
		p := pair{container.NewVector(va), container.NewVector(ia)}
		n := 1 + rng.IntN(w.maxLen)
		for i := 0; i < n; i++ {
			if err := p.values.Push(float64(i)); err != nil {
				return err
			}
			if err := p.indexes.Push(int64(i)); err != nil {
				return err
			}
		}
		for i := 0; i < n/2; i++ {
			if _, err := p.values.Pop(); err != nil {
				return err
			}
		}
		for i := 0; i < n; i++ {
			if err := p.values.Push(float64(n/2 + i)); err != nil {
				return err
			}
		}
		if p.values.Len() != n-n/2+n {
			return errors.Newf("round %d: vector holds %d values, want %d", round, p.values.Len(), n-n/2+n)
		}
		if k := rng.IntN(p.indexes.Len()); p.indexes.At(k) != int64(k) {
			return errors.Newf("round %d: index %d holds %d", round, k, p.indexes.At(k))
		}

		kept = append(kept, p)
		if len(kept) > w.keep {
			errs = errors.CombineErrors(errs, kept[0].values.Release())
			errs = errors.CombineErrors(errs, kept[0].indexes.Release())
			kept = kept[1:]
		}
		t.ops++
	}
	for _, p := range kept {
		errs = errors.CombineErrors(errs, p.values.Release())
		errs = errors.CombineErrors(errs, p.indexes.Release())
	}
	t.elapsed += time.Since(start)
	return errs
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "push and pop list nodes on the chunked node allocator and on the heap",
		Flags:  containerFlags(),
		Action: runList,
	}
}

func runList(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	nodes, err := memres.NewListAllocator[container.Node[float64]](cfg, log.With(logger, "component", "list"), reg)
	if err != nil {
		return err
	}
	defer nodes.Release()

	rng := newRand(c)
	w := listWorkload{rounds: c.Int("iterations"), maxLen: c.Int("max-len"), keep: c.Int("keep")}

	seed := rng.Uint64()
	chunked := timing{name: "list (memres)"}
	if err := w.run(nodes, seed, &chunked); err != nil {
		return err
	}
	heap := timing{name: "list (heap)"}
	if err := w.run(container.HeapAllocator[container.Node[float64]]{}, seed, &heap); err != nil {
		return err
	}

	level.Info(logger).Log("msg", "list workload done", "rounds", w.rounds, "chunks", nodes.NumChunks())
	printTimings(c.App.Writer, chunked, heap)
	printChain(c.App.Writer, "list", nodes.Metrics())
	fmt.Fprintf(c.App.Writer, "list chunk blocks: %v\n", nodes.ChunkCapacities())
	if c.Bool("metrics") {
		return printMetrics(c.App.Writer, reg)
	}
	return nil
}

type listWorkload struct {
	rounds, maxLen, keep int
}

// run pushes n values, pops n/4 from each end and pushes n more, keeping the
// last keep lists alive.
func (w listWorkload) run(a memres.Allocator[container.Node[float64]], seed uint64, t *timing) error {
	var (
		kept []*container.List[float64]
		errs error
	)
	rng := newSeededRand(seed)
	start := time.Now()
	for round := 0; round < w.rounds; round++ {
		l := container.NewList(a)
		n := 1 + rng.IntN(w.maxLen)
		for i := 0; i < n; i++ {
			if err := l.PushBack(rng.Float64()); err != nil {
				return err
			}
		}
		for i := 0; i < n/4; i++ {
			if _, err := l.PopBack(); err != nil {
				return err
			}
			if _, err := l.PopFront(); err != nil {
				return err
			}
		}
		for i := 0; i < n; i++ {
			if err := l.PushBack(rng.Float64()); err != nil {
				return err
			}
		}
		if want := 2*n - 2*(n/4); l.Len() != want {
			return errors.Newf("round %d: list holds %d nodes, want %d", round, l.Len(), want)
		}

		kept = append(kept, l)
		if len(kept) > w.keep {
			errs = errors.CombineErrors(errs, kept[0].Release())
			kept = kept[1:]
		}
		t.ops++
	}
	for _, l := range kept {
		errs = errors.CombineErrors(errs, l.Release())
	}
	t.elapsed += time.Since(start)
	return errs
}
