// Command knn builds embedding corpora and runs exact nearest-neighbour
// queries against them.
//
//	knn index  -dir ./src
//	knn search -text "open a file" -metric cosine -k 5
//	knn search -vector 2,3,4 -metric euclidean -strategy streaming
//	knn demo   -corpus /tmp/demo.jsonl
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"embedknn/internal/config"
	"embedknn/internal/corpus"
	"embedknn/internal/embedder"
	"embedknn/internal/knn"
	"embedknn/internal/log"
	"embedknn/internal/service"

	"github.com/goccy/go-json"
)

const usage = `usage: knn <command> [flags]

commands:
  index   embed a directory tree into the corpus
  search  query the corpus by text or vector
  demo    run the two-document example for every metric
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.ErrorLogger.Printf("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("missing command")
	}
	switch args[0] {
	case "index":
		return runIndex(ctx, args[1:], out)
	case "search":
		return runSearch(ctx, args[1:], out)
	case "demo":
		return runDemo(ctx, args[1:], out)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// setup loads configuration and builds the search service around it.
func setup(ctx context.Context, configPath, corpusPath string) (*service.SearchService, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := log.SetLevel(cfg.Logging.Level); err != nil {
		return nil, nil, err
	}
	if corpusPath != "" {
		cfg.Corpus.Path = corpusPath
	}

	provider, err := embedder.NewEmbedderFactory(cfg).CreateProvider(ctx)
	if err != nil {
		return nil, nil, err
	}
	engine, err := knn.New(cfg.KNN, cfg.Corpus.Path)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = engine.Close() }
	return service.NewSearchService(provider, engine, cfg), cleanup, nil
}

func runIndex(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	corpusPath := fs.String("corpus", "", "corpus path (overrides config)")
	dir := fs.String("dir", ".", "directory to index")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc, cleanup, err := setup(ctx, *configPath, *corpusPath)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := svc.IndexDirectory(ctx, *dir)
	if err != nil {
		return err
	}
	return writeJSON(out, stats)
}

func runSearch(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	corpusPath := fs.String("corpus", "", "corpus path (overrides config)")
	text := fs.String("text", "", "query text, embedded with the configured provider")
	vector := fs.String("vector", "", "comma separated query vector")
	metricName := fs.String("metric", "cosine", "cosine, dot or euclidean")
	strategyName := fs.String("strategy", "load_all", "load_all or streaming")
	k := fs.Int("k", 5, "number of neighbours")
	if err := fs.Parse(args); err != nil {
		return err
	}

	metric, err := knn.ParseMetric(*metricName)
	if err != nil {
		return err
	}
	strategy, err := knn.ParseLoadStrategy(*strategyName)
	if err != nil {
		return err
	}
	if (*text == "") == (*vector == "") {
		return errors.New("exactly one of -text or -vector is required")
	}

	svc, cleanup, err := setup(ctx, *configPath, *corpusPath)
	if err != nil {
		return err
	}
	defer cleanup()

	var res *knn.Result
	if *vector != "" {
		query, perr := parseVector(*vector)
		if perr != nil {
			return perr
		}
		res, err = svc.SearchVector(ctx, query, metric, *k, strategy)
	} else {
		res, err = svc.Search(ctx, *text, metric, *k, strategy)
	}
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

func runDemo(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(out)
	corpusPath := fs.String("corpus", filepath.Join(os.TempDir(), "knn-demo.jsonl"), "where to write the demo corpus")
	if err := fs.Parse(args); err != nil {
		return err
	}

	records := []corpus.Record{
		{DocID: "d1", Embedding: []float32{3, 7, 1}},
		{DocID: "d2", Embedding: []float32{5, 3, 2}},
	}
	if err := corpus.WriteAll(*corpusPath, records); err != nil {
		return err
	}
	engine, err := knn.New(config.KNNConfig{BatchSize: 1, Parallelism: 1}, *corpusPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	query := []float32{2, 3, 4}
	fmt.Fprintf(out, "query %v against %s\n", query, *corpusPath)
	for _, metric := range []knn.Metric{knn.MetricCosine, knn.MetricDot, knn.MetricEuclidean} {
		for _, strategy := range []knn.LoadStrategy{knn.LoadAll, knn.Streaming} {
			res, err := engine.GetTopK(ctx, query, metric, len(records), strategy)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-9s %-9s", metric, strategy)
			for _, n := range res.Neighbors {
				fmt.Fprintf(out, " %s=%.4f", n.DocID, n.Score)
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}

func writeJSON(out io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}
