package memres

import (
	"flag"

	"github.com/cockroachdb/errors"
)

// Config holds the growth policy shared by the chained adapters.
type Config struct {
	// ChunkFactor sizes a new vector chunk as a multiple of the request that triggered it.
	ChunkFactor int `yaml:"chunk_factor"`
	// GrowthFactor multiplies the block count of each new list chunk.
	GrowthFactor int `yaml:"growth_factor"`
	// InitialBlocks is the block count of a list allocator's first chunk.
	InitialBlocks int `yaml:"initial_blocks"`
	// Provider names the raw storage source: "heap" or "mmap".
	Provider string `yaml:"provider"`
}

// DefaultConfig returns the configuration used when no flags are parsed.
func DefaultConfig() Config {
	return Config{
		ChunkFactor:   2,
		GrowthFactor:  2,
		InitialBlocks: 1,
		Provider:      ProviderHeap,
	}
}

func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("memres.", f)
}

func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	d := DefaultConfig()
	f.IntVar(&cfg.ChunkFactor, prefix+"chunk-factor", d.ChunkFactor, "Size of a new vector chunk as a multiple of the allocation that triggered it.")
	f.IntVar(&cfg.GrowthFactor, prefix+"growth-factor", d.GrowthFactor, "Block count multiplier applied to each new list chunk.")
	f.IntVar(&cfg.InitialBlocks, prefix+"initial-blocks", d.InitialBlocks, "Block count of the first list chunk.")
	f.StringVar(&cfg.Provider, prefix+"provider", d.Provider, "Raw storage provider for chunks: heap or mmap.")
}

func (cfg *Config) Validate() error {
	if cfg.ChunkFactor < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "chunk factor (%d) must be at least 1", cfg.ChunkFactor)
	}
	if cfg.GrowthFactor < 2 {
		return errors.Wrapf(ErrInvalidConfiguration, "growth factor (%d) must be at least 2", cfg.GrowthFactor)
	}
	if cfg.InitialBlocks < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "initial blocks (%d) must be positive", cfg.InitialBlocks)
	}
	if _, err := ProviderByName(cfg.Provider); err != nil {
		return err
	}
	return nil
}
