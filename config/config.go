// Package config loads cache settings from YAML and maps them onto
// adaptcache.Options. Runtime collaborators (Measure, Clock, Logger, Hooks,
// OnRemove) are not file-configurable and come from the caller.
//
//	capacity_bytes: 67108864
//	default_ttl: 5m
//	sweep_interval: 30s
//	eviction_fraction: 0.2
//	weights: {age: 0.2, idle: 0.4, frequency: 0.3, size: 0.1}
//	metrics:
//	  namespace: app_cache
//	  addr: ":9100"
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/adaptcache"
)

// Duration reads Go duration strings ("250ms", "5m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", n.Line, err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

type Weights struct {
	Age       float64 `yaml:"age"`
	Idle      float64 `yaml:"idle"`
	Frequency float64 `yaml:"frequency"`
	Size      float64 `yaml:"size"`
}

type Metrics struct {
	Namespace string `yaml:"namespace"`
	Addr      string `yaml:"addr"` // empty disables the HTTP endpoint
}

type File struct {
	CapacityBytes int64 `yaml:"capacity_bytes"`
	CapacityCount int   `yaml:"capacity_count"`

	DefaultTTL     Duration `yaml:"default_ttl"`
	SweepInterval  Duration `yaml:"sweep_interval"`
	DisableSweeper bool     `yaml:"disable_sweeper"`

	EvictionFraction      float64  `yaml:"eviction_fraction"`
	Weights               *Weights `yaml:"weights"`
	FrequencyWindow       Duration `yaml:"frequency_window"`
	HistorySize           int      `yaml:"history_size"`
	ResetHistoryOnReplace bool     `yaml:"reset_history_on_replace"`

	Metrics Metrics `yaml:"metrics"`
}

// Load reads and parses the file at path.
func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML. Unknown keys are rejected so typos surface early.
func Parse(b []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("config: %w", err)
	}
	return f, nil
}

// Apply copies the file settings over base and returns the result. Zero
// values in f leave base untouched, so library defaults still apply.
// A budget set in f replaces the budget of base whichever mode base used.
// Validation happens in adaptcache.New.
func Apply[V any](f File, base adaptcache.Options[V]) adaptcache.Options[V] {
	o := base
	if f.CapacityBytes != 0 || f.CapacityCount != 0 {
		o.CapacityBytes = f.CapacityBytes
		o.CapacityCount = f.CapacityCount
	}
	if f.DefaultTTL != 0 {
		o.DefaultTTL = time.Duration(f.DefaultTTL)
	}
	if f.SweepInterval != 0 {
		o.SweepInterval = time.Duration(f.SweepInterval)
	}
	if f.DisableSweeper {
		o.DisableSweeper = true
	}
	if f.EvictionFraction != 0 {
		o.EvictionFraction = f.EvictionFraction
	}
	if f.Weights != nil {
		o.Weights = adaptcache.ScoreWeights{
			Age:       f.Weights.Age,
			Idle:      f.Weights.Idle,
			Frequency: f.Weights.Frequency,
			Size:      f.Weights.Size,
		}
	}
	if f.FrequencyWindow != 0 {
		o.FrequencyWindow = time.Duration(f.FrequencyWindow)
	}
	if f.HistorySize != 0 {
		o.HistorySize = f.HistorySize
	}
	if f.ResetHistoryOnReplace {
		o.ResetHistoryOnReplace = true
	}
	return o
}
