// Package main provides a load-generation tool for the LSH index: it bulk
// inserts synthetic token sets through an insertion session, then runs
// concurrent queries and reports throughput.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/yuzhao12/datasketch/internal/bench"
	"github.com/yuzhao12/datasketch/internal/logging"
	"github.com/yuzhao12/datasketch/pkg/lsh"
	"github.com/yuzhao12/datasketch/pkg/minhash"
)

// Version can be overridden at build time.
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		if err := run(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("datasketch-bench version %s\n", Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`datasketch-bench - LSH index load generator

Usage:
  datasketch-bench run [options]
  datasketch-bench version

Options:
  -c, --config <file>   YAML config file
  -n, --docs <n>        number of documents to index (default 10000)
  -q, --queries <n>     number of queries to run (default 1000)
  -w, --workers <n>     concurrent query workers (default 8)`)
}

type benchConfig struct {
	Index   lsh.Config     `yaml:"index"`
	Logging logging.Config `yaml:"logging"`
	Bench   struct {
		Docs         int `yaml:"docs"`
		Queries      int `yaml:"queries"`
		Workers      int `yaml:"workers"`
		TokensPerDoc int `yaml:"tokens_per_doc"`
		Vocabulary   int `yaml:"vocabulary"`
		BufferSize   int `yaml:"buffer_size"`
	} `yaml:"bench"`
}

func defaultBenchConfig() benchConfig {
	cfg := benchConfig{
		Index:   lsh.DefaultConfig(),
		Logging: logging.DefaultConfig(),
	}
	cfg.Index.Threshold = 0.5
	cfg.Bench.Docs = 10000
	cfg.Bench.Queries = 1000
	cfg.Bench.Workers = 8
	cfg.Bench.TokensPerDoc = 64
	cfg.Bench.Vocabulary = 100000
	cfg.Bench.BufferSize = 1000
	return cfg
}

func run(args []string) error {
	cfg := defaultBenchConfig()

	configFile := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-c", "--config":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for %s", args[i])
			}
			configFile = args[i+1]
			i++
		case "-n", "--docs":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for %s", args[i])
			}
			fmt.Sscanf(args[i+1], "%d", &cfg.Bench.Docs)
			i++
		case "-q", "--queries":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for %s", args[i])
			}
			fmt.Sscanf(args[i+1], "%d", &cfg.Bench.Queries)
			i++
		case "-w", "--workers":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for %s", args[i])
			}
			fmt.Sscanf(args[i+1], "%d", &cfg.Bench.Workers)
			i++
		default:
			return fmt.Errorf("unknown option: %s", args[i])
		}
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}

	if err := logging.Initialize(cfg.Logging); err != nil {
		return err
	}

	ctx := context.Background()
	idx, err := lsh.New(ctx, cfg.Index)
	if err != nil {
		return err
	}
	defer idx.Close(ctx)

	bands, rows := idx.Params()
	fmt.Printf("index: threshold=%v num_perm=%d bands=%d rows=%d backend=%s\n",
		cfg.Index.Threshold, cfg.Index.NumPerm, bands, rows, cfg.Index.Storage.Backend)

	docs, err := generateDocs(cfg)
	if err != nil {
		return err
	}

	insertMetrics := bench.NewCollector()
	sess, err := idx.InsertionSession(cfg.Bench.BufferSize)
	if err != nil {
		return err
	}
	for i, m := range docs {
		start := time.Now()
		err := sess.Insert(ctx, fmt.Sprintf("doc-%d", i), m, false)
		insertMetrics.Record("insert", time.Since(start), err)
		if err != nil {
			_ = sess.Close(ctx)
			return err
		}
	}
	if err := sess.Close(ctx); err != nil {
		return err
	}
	fmt.Printf("insert: %s\n", insertMetrics.Summary()["insert"].Format())

	queryMetrics := bench.NewCollector()
	var total int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Bench.Workers)
	results := make([]int, cfg.Bench.Queries)
	for q := 0; q < cfg.Bench.Queries; q++ {
		q := q
		m := docs[q%len(docs)]
		g.Go(func() error {
			start := time.Now()
			keys, err := idx.Query(gctx, m)
			queryMetrics.Record("query", time.Since(start), err)
			if err != nil {
				return err
			}
			results[q] = len(keys)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, n := range results {
		total += int64(n)
	}
	fmt.Printf("query:  %s\n", queryMetrics.Summary()["query"].Format())
	fmt.Printf("        %.1f candidates/query\n", float64(total)/float64(cfg.Bench.Queries))
	return nil
}

// generateDocs builds seeded random token sets over a shared vocabulary so
// runs are reproducible and some documents overlap.
func generateDocs(cfg benchConfig) ([]*minhash.MinHash, error) {
	rng := rand.New(rand.NewSource(42))
	seed := cfg.Index.Seed
	if seed == 0 {
		seed = minhash.DefaultSeed
	}
	docs := make([]*minhash.MinHash, cfg.Bench.Docs)
	for i := range docs {
		m, err := minhash.New(cfg.Index.NumPerm, seed)
		if err != nil {
			return nil, err
		}
		for t := 0; t < cfg.Bench.TokensPerDoc; t++ {
			m.UpdateString(fmt.Sprintf("token-%d", rng.Intn(cfg.Bench.Vocabulary)))
		}
		docs[i] = m
	}
	return docs, nil
}
