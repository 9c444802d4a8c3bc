package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arcaflux/slabmem"
)

// LayoutConfig is the on-disk YAML shape for a bucket layout: a
// contingency capacity plus one row per configured bucket.
type LayoutConfig struct {
	ContingencyCapacity uint32        `yaml:"contingency_capacity"`
	Buckets             []BucketEntry `yaml:"buckets"`
}

// BucketEntry is a single YAML bucket row. bucketConfigs converts it to
// a slabmem.BucketConfig, taking the growth contingency from the
// layout's contingency_capacity.
type BucketEntry struct {
	Size          uint64 `yaml:"size"`
	Capacity      uint32 `yaml:"capacity"`
	GrowthFactor  uint32 `yaml:"growth_factor"`
}

func defaultLayout() LayoutConfig {
	return LayoutConfig{
		ContingencyCapacity: 64,
		Buckets: []BucketEntry{
			{Size: 16, Capacity: 256, GrowthFactor: 2},
			{Size: 64, Capacity: 256, GrowthFactor: 2},
			{Size: 256, Capacity: 128, GrowthFactor: 2},
			{Size: 1024, Capacity: 64, GrowthFactor: 2},
		},
	}
}

func loadLayout(path string) (LayoutConfig, error) {
	if path == "" {
		return defaultLayout(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return LayoutConfig{}, err
	}
	var cfg LayoutConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return LayoutConfig{}, err
	}
	if cfg.ContingencyCapacity == 0 {
		cfg.ContingencyCapacity = 64
	}
	return cfg, nil
}

func (c LayoutConfig) bucketConfigs() []slabmem.BucketConfig {
	out := make([]slabmem.BucketConfig, len(c.Buckets))
	for i, b := range c.Buckets {
		factor := b.GrowthFactor
		if factor == 0 {
			factor = 2
		}
		out[i] = slabmem.BucketConfig{
			BlockSize:         b.Size,
			InitialCapacity:   b.Capacity,
			GrowthContingency: c.ContingencyCapacity,
			GrowthFactor:      factor,
		}
	}
	return out
}
