// Command reindex recomputes the vector indexes of a persisted dataset.
// Use it after changing an embedder so stored indexes match what queries
// will compute at search time.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/siftdata/sift/internal/config"
	"github.com/siftdata/sift/internal/dataset"
	"github.com/siftdata/sift/internal/embedding"
	"github.com/siftdata/sift/internal/logging"
	"github.com/siftdata/sift/internal/schema"
	"github.com/siftdata/sift/pkg/objectstore"
)

func main() {
	var (
		configPath string
		datasetArg string
	)

	flag.StringVar(&configPath, "config", "", "Path to sift config file")
	flag.StringVar(&datasetArg, "dataset", "", "Dataset to reindex")
	flag.Parse()

	if datasetArg == "" {
		fmt.Fprintln(os.Stderr, "Usage: reindex --dataset=<name> [--config=<path>]")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	store, err := objectstore.New(objectstore.Config{
		Type:      cfg.ObjectStore.Type,
		Endpoint:  cfg.ObjectStore.Endpoint,
		Bucket:    cfg.ObjectStore.Bucket,
		AccessKey: cfg.ObjectStore.AccessKey,
		SecretKey: cfg.ObjectStore.SecretKey,
		Region:    cfg.ObjectStore.Region,
		UseSSL:    cfg.ObjectStore.UseSSL,
		RootPath:  cfg.ObjectStore.RootPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize object store: %v\n", err)
		os.Exit(1)
	}

	embedders := embedding.NewRegistry()
	embedders.Register(embedding.NewMiniHash(0))

	logger := logging.New()
	datasets := dataset.NewStore(objectstore.NewInstrumentedStore(store), logger)

	ctx := context.Background()
	d, err := datasets.Load(ctx, datasetArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load dataset: %v\n", err)
		os.Exit(1)
	}

	indexes := d.Manifest().Indexes
	if len(indexes) == 0 {
		fmt.Printf("Dataset %s has no vector indexes, nothing to do\n", datasetArg)
		return
	}

	for _, info := range indexes {
		p, err := schema.DeserializePath(info.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Bad index path %q: %v\n", info.Path, err)
			os.Exit(1)
		}
		embedder, err := embedders.Get(info.Embedding)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Unknown embedder %q: %v\n", info.Embedding, err)
			os.Exit(1)
		}

		start := time.Now()
		if err := d.ComputeEmbeddingIndex(ctx, embedder, p); err != nil {
			fmt.Fprintf(os.Stderr, "Reindex %s failed: %v\n", info.Path, err)
			os.Exit(1)
		}
		fmt.Printf("Reindexed %s with %s in %s\n", info.Path, info.Embedding, time.Since(start).Round(time.Millisecond))
	}

	if err := datasets.Save(ctx, datasetArg); err != nil {
		fmt.Fprintf(os.Stderr, "Save failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Saved dataset %s (version %d)\n", datasetArg, d.Version())
}
