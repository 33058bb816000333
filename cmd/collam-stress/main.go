//go:build linux && amd64

// Command collam-stress exercises the allocator with a randomized
// concurrent workload, verifies payload integrity and the heap
// invariants afterwards, and prints a stats summary. Workloads can be
// described in a YAML file and overridden per run with flags.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/inhies/go-bytesize"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"

	"github.com/gcarq/collam"
)

type workload struct {
	Workers int   `yaml:"workers"`
	Ops     int   `yaml:"ops"`
	MinSize int   `yaml:"min_size"`
	MaxSize int   `yaml:"max_size"`
	Live    int   `yaml:"live"` // max live blocks per worker
	Seed    int64 `yaml:"seed"`
}

var touched atomic.Uint64

func main() {
	w := workload{Workers: 4, Ops: 10000, MinSize: 1, MaxSize: 4096, Live: 256, Seed: 1}

	file := flag.String("workload", "", "YAML file describing the workload")
	flag.IntVar(&w.Workers, "workers", w.Workers, "concurrent workers")
	flag.IntVar(&w.Ops, "ops", w.Ops, "operations per worker")
	flag.IntVar(&w.MinSize, "min-size", w.MinSize, "smallest allocation in bytes")
	flag.IntVar(&w.MaxSize, "max-size", w.MaxSize, "largest allocation in bytes")
	flag.IntVar(&w.Live, "live", w.Live, "max live blocks per worker")
	flag.Int64Var(&w.Seed, "seed", w.Seed, "base RNG seed")
	flag.Parse()

	if *file != "" {
		if err := loadWorkload(*file, &w); err != nil {
			fmt.Fprintln(os.Stderr, "collam-stress:", err)
			os.Exit(1)
		}
	}
	if w.Workers < 1 || w.MinSize < 0 || w.MaxSize < w.MinSize || w.Live < 1 {
		fmt.Fprintln(os.Stderr, "collam-stress: invalid workload")
		os.Exit(1)
	}

	start := time.Now()
	var g errgroup.Group
	for i := 0; i < w.Workers; i++ {
		i := i
		g.Go(func() error { return run(w, i) })
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, "collam-stress:", err)
		os.Exit(1)
	}
	if err := collam.CheckIntegrity(); err != nil {
		fmt.Fprintln(os.Stderr, "collam-stress: heap corrupt:", err)
		os.Exit(1)
	}

	fmt.Printf("ok: %d workers x %d ops in %v, %v touched\n",
		w.Workers, w.Ops, time.Since(start).Round(time.Millisecond),
		bytesize.New(float64(touched.Load())))
	fmt.Println(collam.ReadStats())
}

// loadWorkload overlays the YAML file onto w, then re-applies any flag
// the user set explicitly so flags win over the file.
func loadWorkload(path string, w *workload) error {
	saved := *w
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict(b, w); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workers":
			w.Workers = saved.Workers
		case "ops":
			w.Ops = saved.Ops
		case "min-size":
			w.MinSize = saved.MinSize
		case "max-size":
			w.MaxSize = saved.MaxSize
		case "live":
			w.Live = saved.Live
		case "seed":
			w.Seed = saved.Seed
		}
	})
	return nil
}

type blk struct {
	p   unsafe.Pointer
	n   int
	tag byte
}

func run(w workload, id int) error {
	rng := rand.New(rand.NewSource(w.Seed + int64(id)))
	span := w.MaxSize - w.MinSize + 1
	live := make([]blk, 0, w.Live)

	for i := 0; i < w.Ops; i++ {
		switch r := rng.Intn(10); {
		case (r < 6 || len(live) == 0) && len(live) < w.Live:
			n := w.MinSize + rng.Intn(span)
			var p unsafe.Pointer
			if r == 0 {
				p = collam.Calloc(uintptr(n), 1)
			} else {
				p = collam.Malloc(uintptr(n))
			}
			if p == nil {
				return fmt.Errorf("worker %d: allocation of %d bytes failed", id, n)
			}
			if r == 0 {
				if err := expect(p, n, 0); err != nil {
					return fmt.Errorf("worker %d: calloc: %w", id, err)
				}
			}
			tag := byte(rng.Intn(256))
			fill(p, n, tag)
			touched.Add(uint64(n))
			live = append(live, blk{p, n, tag})
		case r < 9 || len(live) >= w.Live:
			j := rng.Intn(len(live))
			if err := expect(live[j].p, live[j].n, live[j].tag); err != nil {
				return fmt.Errorf("worker %d: %w", id, err)
			}
			collam.Free(live[j].p)
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
		default:
			j := rng.Intn(len(live))
			n := w.MinSize + rng.Intn(span)
			q := collam.Realloc(live[j].p, uintptr(n))
			if q == nil {
				return fmt.Errorf("worker %d: realloc to %d bytes failed", id, n)
			}
			fill(q, n, live[j].tag)
			touched.Add(uint64(n))
			live[j].p, live[j].n = q, n
		}
	}
	for _, b := range live {
		if err := expect(b.p, b.n, b.tag); err != nil {
			return fmt.Errorf("worker %d: %w", id, err)
		}
		collam.Free(b.p)
	}
	return nil
}

func fill(p unsafe.Pointer, n int, tag byte) {
	s := unsafe.Slice((*byte)(p), n)
	for i := range s {
		s[i] = tag
	}
}

func expect(p unsafe.Pointer, n int, tag byte) error {
	s := unsafe.Slice((*byte)(p), n)
	for i := range s {
		if s[i] != tag {
			return fmt.Errorf("payload %p corrupt at %d: %#02x != %#02x", p, i, s[i], tag)
		}
	}
	return nil
}
