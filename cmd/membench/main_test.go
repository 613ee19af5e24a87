package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/pavanmanishd/memres"
)

func newTestApp(out *bytes.Buffer) *cli.App {
	return &cli.App{
		Name:     "membench",
		Flags:    flags,
		Commands: []*cli.Command{poolCommand(), monoCommand(), bidiCommand(), vectorCommand(), listCommand()},
		Writer:   out,
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"pool", []string{"pool", "--blocks", "16", "--block-size", "32"}, []string{"pool get", "blocks in use"}},
		{"mono", []string{"mono", "--size", "4096"}, []string{"mono get", "mono free", "outstanding"}},
		{"bidi", []string{"bidi", "--size", "4096"}, []string{"bidi get", "rewinds"}},
		{"vector", []string{"vector", "--max-len", "64", "--keep", "4"}, []string{"vector (memres)", "vector (heap)", "vector[float64]"}},
		{"list", []string{"list", "--max-len", "64", "--keep", "4"}, []string{"list (memres)", "list (heap)", "list chunk blocks"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			args := append([]string{"membench", "--loglvl", "error", "-n", "200"}, tt.args...)
			require.NoError(t, newTestApp(&out).Run(args))
			for _, w := range tt.want {
				assert.Contains(t, out.String(), w)
			}
		})
	}
}

func TestListCommandMetrics(t *testing.T) {
	var out bytes.Buffer
	args := []string{"membench", "--loglvl", "error", "-n", "50", "--metrics", "list", "--max-len", "32"}
	require.NoError(t, newTestApp(&out).Run(args))
	assert.Contains(t, out.String(), `memres_chunks_created_total{allocator="list"}`)
	assert.Contains(t, out.String(), "# TYPE memres_chunks_created_total counter")
	assert.Contains(t, out.String(), "# TYPE memres_capacity_bytes gauge")
}

func TestPrintMetricsTextFormat(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "membench_test_bytes", Help: "Test gauge."})
	reg.MustRegister(g)
	g.Set(1024)

	var out bytes.Buffer
	require.NoError(t, printMetrics(&out, reg))
	assert.Equal(t, "# HELP membench_test_bytes Test gauge.\n# TYPE membench_test_bytes gauge\nmembench_test_bytes 1024\n", out.String())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "membench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("memres:\n  chunk_factor: 4\n  initial_blocks: 8\n"), 0o600))

	var got memres.Config
	app := &cli.App{
		Flags: flags,
		Action: func(c *cli.Context) error {
			var err error
			got, err = loadConfig(c)
			return err
		},
	}
	require.NoError(t, app.Run([]string{"membench", "--config", path, "--provider", "mmap"}))
	assert.Equal(t, memres.Config{ChunkFactor: 4, GrowthFactor: 2, InitialBlocks: 8, Provider: memres.ProviderMmap}, got)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("memres:\n  chunk_size: 4\n"), 0o600))
	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("memres:\n  growth_factor: 1\n"), 0o600))

	for _, args := range [][]string{
		{"membench", "--config", filepath.Join(dir, "missing.yaml")},
		{"membench", "--config", unknown},
		{"membench", "--config", invalid},
		{"membench", "--provider", "tcmalloc"},
		{"membench", "--loglvl", "chatty"},
	} {
		app := &cli.App{
			Flags: flags,
			Action: func(c *cli.Context) error {
				if _, err := newLogger(c); err != nil {
					return err
				}
				_, err := loadConfig(c)
				return err
			},
		}
		assert.Error(t, app.Run(args), "%v", args)
	}
}
