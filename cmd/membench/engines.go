package main

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/urfave/cli/v2"

	"github.com/pavanmanishd/memres"
)

func biasFlag() cli.Flag {
	return &cli.Float64Flag{
		Name:  "bias",
		Usage: "`probability` that a round allocates rather than frees",
		Value: 0.6,
	}
}

func poolCommand() *cli.Command {
	return &cli.Command{
		Name:  "pool",
		Usage: "random get/free against a fixed-block pool",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "block-size", Usage: "block `bytes`", Value: 128},
			&cli.IntFlag{Name: "blocks", Usage: "block `count`", Value: 1000},
			biasFlag(),
		},
		Action: runPool,
	}
}

func runPool(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	provider, err := memres.ProviderByName(cfg.Provider)
	if err != nil {
		return err
	}
	pool, err := memres.NewPoolMemoryFrom(provider, c.Int("block-size"), c.Int("blocks"))
	if err != nil {
		return err
	}
	defer pool.Release()
	level.Info(logger).Log("msg", "running pool workload", "buffer", pool.Buffer(), "blocks", pool.Capacity())

	rng, bias := newRand(c), c.Float64("bias")
	get, free, mk := timing{name: "pool get"}, timing{name: "pool free"}, timing{name: "heap make"}
	var (
		live, heapLive [][]byte
		exhausted      int
	)
	for i := 0; i < c.Int("iterations"); i++ {
		if len(live) == 0 || rng.Float64() < bias {
			start := time.Now()
			b, err := pool.Get()
			if errors.Is(err, memres.ErrOutOfMemory) {
				exhausted++
				continue
			} else if err != nil {
				return err
			}
			get.track(start)
			live = append(live, b)

			start = time.Now()
			heapLive = append(heapLive, make([]byte, pool.BlockSize()))
			mk.track(start)
		} else {
			j := rng.IntN(len(live))
			start := time.Now()
			if err := pool.Free(live[j]); err != nil {
				return err
			}
			free.track(start)
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
			heapLive = heapLive[:len(heapLive)-1]
		}
		if pool.FreeCount()+pool.UsedCount() != pool.Capacity() {
			return errors.Newf("round %d: free (%d) + used (%d) != capacity (%d)", i, pool.FreeCount(), pool.UsedCount(), pool.Capacity())
		}
	}

	level.Info(logger).Log("msg", "pool workload done", "used", pool.UsedCount(), "exhausted", exhausted)
	printTimings(c.App.Writer, get, free, mk)
	fmt.Fprintf(c.App.Writer, "pool: %d/%d blocks in use, %s\n", pool.UsedCount(), pool.Capacity(), humanize.IBytes(uint64(pool.UsedBytes())))
	return nil
}

func arenaFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "size", Usage: "arena `bytes`", Value: 1 << 20},
		&cli.IntFlag{Name: "max-alloc", Usage: "largest single allocation in `bytes`", Value: 256},
		biasFlag(),
	}
}

func monoCommand() *cli.Command {
	return &cli.Command{
		Name:   "mono",
		Usage:  "stack-ordered allocate/free against a monotonic arena",
		Flags:  arenaFlags(),
		Action: runMono,
	}
}

func runMono(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	provider, err := memres.ProviderByName(cfg.Provider)
	if err != nil {
		return err
	}
	m, err := memres.NewMonoMemoryFrom(provider, c.Int("size"))
	if err != nil {
		return err
	}
	defer m.Release()
	level.Info(logger).Log("msg", "running mono workload", "buffer", m.Buffer())

	var (
		rng       = newRand(c)
		bias      = c.Float64("bias")
		maxAlloc  = c.Int("max-alloc")
		sizes     []int
		get, free = timing{name: "mono get"}, timing{name: "mono free"}
	)
	for i := 0; i < c.Int("iterations"); i++ {
		if len(sizes) == 0 || rng.Float64() < bias {
			size := 1 + rng.IntN(maxAlloc)
			start := time.Now()
			if _, err := m.Get(size); err == nil {
				get.track(start)
				sizes = append(sizes, size)
				continue
			} else if !errors.Is(err, memres.ErrOutOfMemory) {
				return err
			}
			if len(sizes) == 0 {
				return errors.Newf("arena of %d bytes cannot fit %d bytes", m.Capacity(), size)
			}
		}
		// Most recent first.
		size := sizes[len(sizes)-1]
		start := time.Now()
		if err := m.Free(size); err != nil {
			return err
		}
		free.track(start)
		sizes = sizes[:len(sizes)-1]
	}

	printTimings(c.App.Writer, get, free)
	fmt.Fprintf(c.App.Writer, "mono: %d outstanding, %s of %s in use\n", m.Outstanding(), humanize.IBytes(uint64(m.UsedCount())), humanize.IBytes(uint64(m.Capacity())))
	return nil
}

func bidiCommand() *cli.Command {
	return &cli.Command{
		Name:   "bidi",
		Usage:  "queue-ordered allocate/free against a bidirectional arena",
		Flags:  arenaFlags(),
		Action: runBidi,
	}
}

func runBidi(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	provider, err := memres.ProviderByName(cfg.Provider)
	if err != nil {
		return err
	}
	b, err := memres.NewBidiMemoryFrom(provider, c.Int("size"))
	if err != nil {
		return err
	}
	defer b.Release()
	level.Info(logger).Log("msg", "running bidi workload", "buffer", b.Buffer())

	var (
		rng       = newRand(c)
		bias      = c.Float64("bias")
		maxAlloc  = c.Int("max-alloc")
		sizes     []int
		rewinds   int
		get, free = timing{name: "bidi get"}, timing{name: "bidi free"}
	)
	for i := 0; i < c.Int("iterations"); i++ {
		if len(sizes) == 0 || rng.Float64() < bias {
			size := 1 + rng.IntN(maxAlloc)
			start := time.Now()
			if _, err := b.Get(size); err == nil {
				get.track(start)
				sizes = append(sizes, size)
				continue
			} else if !errors.Is(err, memres.ErrOutOfMemory) {
				return err
			}
			if len(sizes) == 0 {
				return errors.Newf("arena of %d bytes cannot fit %d bytes", b.Capacity(), size)
			}
		}
		// Oldest first.
		start := time.Now()
		if err := b.Free(sizes[0]); err != nil {
			return err
		}
		free.track(start)
		sizes = sizes[1:]
		if b.Head() == 0 {
			rewinds++
			level.Debug(logger).Log("msg", "arena drained", "round", i)
		}
	}

	printTimings(c.App.Writer, get, free)
	fmt.Fprintf(c.App.Writer, "bidi: %d outstanding, %s in use, %d rewinds\n", b.Outstanding(), humanize.IBytes(uint64(b.UsedCount())), rewinds)
	return nil
}
