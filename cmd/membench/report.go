package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/urfave/cli/v2"

	"github.com/pavanmanishd/memres"
)

// timing is the accumulated cost of one kind of operation.
type timing struct {
	name    string
	ops     int
	elapsed time.Duration
}

func (t *timing) track(start time.Time) {
	t.ops++
	t.elapsed += time.Since(start)
}

func (t timing) perOp() time.Duration {
	if t.ops == 0 {
		return 0
	}
	return t.elapsed / time.Duration(t.ops)
}

func printTimings(w io.Writer, ts ...timing) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OPERATION\tCOUNT\tTOTAL\tPER OP")
	for _, t := range ts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.name, humanize.Comma(int64(t.ops)), t.elapsed, t.perOp())
	}
	tw.Flush()
}

func printChain(w io.Writer, name string, m memres.ChainMetrics) {
	fmt.Fprintf(w, "%s: %d chunks, %s capacity, %s in use (%.1f%%)\n",
		name, m.NumChunks, humanize.IBytes(uint64(m.Capacity)), humanize.IBytes(uint64(m.SizeInUse)), m.Utilization*100)
}

// printMetrics writes every gathered family in the text exposition format.
func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func newRand(c *cli.Context) *rand.Rand {
	return newSeededRand(c.Uint64("seed"))
}

func newSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
