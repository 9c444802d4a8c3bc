package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/arcaflux/slabmem"
)

const (
	defaultDuration       = 5 * time.Second
	defaultWarmupDuration = 1 * time.Second
	defaultWorkers        = 8
	defaultRingCapacity   = 1024
	defaultAllocSize      = 48
)

type benchConfig struct {
	ConfigPath     string
	Duration       time.Duration
	WarmupDuration time.Duration
	Workers        int
	RingCapacity   uint32
	AllocSize      uint64
	Quiet          bool
}

func runRingBench(logger *zap.Logger, cfg benchConfig) error {
	ring := slabmem.NewRing[uint64](cfg.RingCapacity, uint16(cfg.Workers)+1)

	var completed atomic.Int64
	stop := make(chan struct{})

	var consumerWg sync.WaitGroup
	consumer, err := ring.GetConsumer()
	if err != nil {
		return fmt.Errorf("ring bench: %w", err)
	}
	consumerWg.Add(1)
	go func() {
		defer consumerWg.Done()
		var out uint64
		for {
			select {
			case <-stop:
				return
			default:
				if consumer.TryDequeue(&out) == slabmem.RingSuccess {
					completed.Add(1)
				}
			}
		}
	}()

	var producerWg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		producer, err := ring.GetProducer()
		if err != nil {
			return fmt.Errorf("ring bench: %w", err)
		}
		producerWg.Add(1)
		go func(p slabmem.Producer[uint64]) {
			defer producerWg.Done()
			var v uint64
			deadline := time.Now().Add(cfg.Duration)
			for time.Now().Before(deadline) {
				p.TryEnqueue(v)
				v++
			}
		}(producer)
	}

	start := time.Now()
	producerWg.Wait()
	close(stop)
	consumerWg.Wait()
	elapsed := time.Since(start).Seconds()

	throughput := float64(completed.Load()) / elapsed
	logger.Info("ring benchmark done",
		zap.Int("workers", cfg.Workers),
		zap.Uint32("ring_capacity", cfg.RingCapacity),
		zap.Int64("completed", completed.Load()),
		zap.Float64("ops_per_sec", throughput),
	)
	if !cfg.Quiet {
		fmt.Printf("ring: %d workers, capacity=%d, completed=%d in %.3fs (%.0f ops/s)\n",
			cfg.Workers, cfg.RingCapacity, completed.Load(), elapsed, throughput)
	}
	return nil
}

func runAllocBench(logger *zap.Logger, cfg benchConfig, layout LayoutConfig) error {
	alloc, err := slabmem.NewAllocator(layout.ContingencyCapacity, layout.bucketConfigs(), logger)
	if err != nil {
		return fmt.Errorf("alloc bench: %w", err)
	}

	var completed atomic.Int64
	var wg sync.WaitGroup
	deadline := time.Now().Add(cfg.Duration)
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				p := slabmem.Malloc(alloc, cfg.AllocSize)
				if p == nil {
					continue
				}
				if err := slabmem.Free(alloc, p); err != nil {
					continue
				}
				completed.Add(1)
			}
		}()
	}

	start := time.Now()
	wg.Wait()
	elapsed := time.Since(start).Seconds()

	throughput := float64(completed.Load()) / elapsed
	logger.Info("alloc benchmark done",
		zap.Int("workers", cfg.Workers),
		zap.Uint64("alloc_size", cfg.AllocSize),
		zap.Int64("completed", completed.Load()),
		zap.Float64("ops_per_sec", throughput),
		zap.Uint64("live_blocks", alloc.BlockCount()),
	)
	if !cfg.Quiet {
		fmt.Printf("alloc: %d workers, size=%d, completed=%d malloc/free pairs in %.3fs (%.0f ops/s)\n",
			cfg.Workers, cfg.AllocSize, completed.Load(), elapsed, throughput)
	}
	return nil
}

func main() {
	cfg := benchConfig{}
	flag.StringVar(&cfg.ConfigPath, "config", "", "path to a YAML bucket layout (defaults built in if omitted)")
	flag.DurationVar(&cfg.Duration, "duration", defaultDuration, "benchmark duration per phase")
	flag.DurationVar(&cfg.WarmupDuration, "warmup-duration", defaultWarmupDuration, "warmup duration before timing starts")
	flag.IntVar(&cfg.Workers, "workers", defaultWorkers, "number of concurrent goroutines per benchmark")
	ringCapacity := flag.Uint("ring-capacity", defaultRingCapacity, "ring queue capacity")
	allocSize := flag.Uint64("alloc-size", defaultAllocSize, "size in bytes requested from the untyped allocator")
	flag.BoolVar(&cfg.Quiet, "quiet", false, "suppress human-readable output, log via zap only")
	flag.Parse()
	cfg.RingCapacity = uint32(*ringCapacity)
	cfg.AllocSize = *allocSize

	var logger *zap.Logger
	var err error
	if cfg.Quiet {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	layout, err := loadLayout(cfg.ConfigPath)
	if err != nil {
		logger.Fatal("failed to load bucket layout", zap.Error(err))
	}

	if cfg.WarmupDuration > 0 {
		warmup := cfg
		warmup.Duration = cfg.WarmupDuration
		warmup.Quiet = true
		if err := runRingBench(logger, warmup); err != nil {
			logger.Fatal("warmup failed", zap.Error(err))
		}
	}

	if err := runRingBench(logger, cfg); err != nil {
		logger.Fatal("ring benchmark failed", zap.Error(err))
	}
	if err := runAllocBench(logger, cfg, layout); err != nil {
		logger.Fatal("alloc benchmark failed", zap.Error(err))
	}
}
