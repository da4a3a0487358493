package mdbox

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/mdbox/codec"
	"github.com/hupe1980/mdbox/internal/box"
	"github.com/hupe1980/mdbox/internal/snapshot"
)

// Config is the split policy of a workspace.
type Config struct {
	// SplitInto is the number of children per dimension a leaf splits into.
	SplitInto int `yaml:"split_into" json:"split_into"`
	// SplitThreshold is the event count above which a leaf splits.
	SplitThreshold int `yaml:"split_threshold" json:"split_threshold"`
	// MaxDepth bounds the tree depth; leaves at MaxDepth never split.
	MaxDepth int `yaml:"max_depth" json:"max_depth"`
	// EventKind is "lean" or "full".
	EventKind string `yaml:"event_kind" json:"event_kind"`
}

// DefaultConfig returns the default split policy.
func DefaultConfig() Config {
	return Config{
		SplitInto:      5,
		SplitThreshold: 1000,
		MaxDepth:       5,
		EventKind:      box.EventKindLean.String(),
	}
}

func (c Config) boxConfig(numDims int) (box.Config, error) {
	kind, err := box.ParseEventKind(c.EventKind)
	if err != nil {
		return box.Config{}, err
	}
	return box.Config{
		NumDims:        numDims,
		SplitInto:      c.SplitInto,
		SplitThreshold: c.SplitThreshold,
		MaxDepth:       c.MaxDepth,
		EventKind:      kind,
	}, nil
}

// Dimension describes one workspace axis.
type Dimension struct {
	Name  string  `yaml:"name" json:"name"`
	Units string  `yaml:"units,omitempty" json:"units,omitempty"`
	Min   float64 `yaml:"min" json:"min"`
	Max   float64 `yaml:"max" json:"max"`
}

// StorageConfig holds the paging and snapshot settings of a ConfigFile.
type StorageConfig struct {
	FileBackingDir  string `yaml:"file_backing_dir"`
	MemoryLimit     int64  `yaml:"memory_limit"`
	Workers         int    `yaml:"workers"`
	PagingRateLimit int64  `yaml:"paging_rate_limit"`
	Codec           string `yaml:"codec"`
	Compression     string `yaml:"compression"`
}

// Options converts the settings to workspace options.
func (s StorageConfig) Options() ([]Option, error) {
	var opts []Option
	if s.FileBackingDir != "" {
		opts = append(opts, WithFileBacking(s.FileBackingDir))
	}
	if s.MemoryLimit > 0 {
		opts = append(opts, WithMemoryLimit(s.MemoryLimit))
	}
	if s.Workers > 0 {
		opts = append(opts, WithWorkers(s.Workers))
	}
	if s.PagingRateLimit > 0 {
		opts = append(opts, WithPagingRateLimit(s.PagingRateLimit))
	}
	if s.Codec != "" {
		c, ok := codec.ByName(s.Codec)
		if !ok {
			return nil, fmt.Errorf("%w: unknown codec %q, have %v", ErrInvalidArgument, s.Codec, codec.Names())
		}
		opts = append(opts, WithCodec(c))
	}
	if s.Compression != "" {
		c, err := snapshot.ParseCompression(s.Compression)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		opts = append(opts, WithCompression(c))
	}
	return opts, nil
}

// ConfigFile is the YAML document read by LoadConfig.
type ConfigFile struct {
	Dimensions []Dimension   `yaml:"dimensions"`
	Tree       Config        `yaml:"tree"`
	Storage    StorageConfig `yaml:"storage"`
}

// Validate checks the dimensions and the split policy.
func (f ConfigFile) Validate() error {
	if err := validateDimensions(f.Dimensions); err != nil {
		return err
	}
	bc, err := f.Tree.boxConfig(len(f.Dimensions))
	if err != nil {
		return err
	}
	return bc.Validate()
}

// LoadConfig reads a ConfigFile from path. Fields missing from the file keep
// the values of DefaultConfig.
func LoadConfig(path string) (ConfigFile, error) {
	cfg := ConfigFile{Tree: DefaultConfig()}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func validateDimensions(dims []Dimension) error {
	if len(dims) == 0 {
		return fmt.Errorf("%w: at least one dimension is required", ErrInvalidArgument)
	}
	if len(dims) > box.MaxDims {
		return fmt.Errorf("%w: %d dimensions, at most %d supported", ErrInvalidArgument, len(dims), box.MaxDims)
	}
	for i, d := range dims {
		if !(d.Min < d.Max) {
			return fmt.Errorf("%w: dimension %d (%s) has degenerate extents [%g, %g]", ErrInvalidArgument, i, d.Name, d.Min, d.Max)
		}
	}
	return nil
}
