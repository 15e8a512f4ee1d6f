package load

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/siftdata/sift/internal/config"
	"github.com/siftdata/sift/internal/dataset"
	"github.com/siftdata/sift/internal/logging"
	"github.com/siftdata/sift/pkg/objectstore"
)

// Run ingests a JSONL file into a dataset and persists it to the
// configured object store.
func Run(args []string) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	name := fs.String("name", "", "Dataset name")
	fs.Parse(args)

	if *name == "" || fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: sift load --name=<dataset> [--config=<path>] <file.jsonl>")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
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
		log.Fatalf("Failed to initialize object store: %v", err)
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		log.Fatalf("Failed to open input: %v", err)
	}
	defer f.Close()

	logger := logging.New()
	datasets := dataset.NewStore(objectstore.NewInstrumentedStore(store), logger)

	d, err := datasets.IngestJSONL(*name, f)
	if err != nil {
		log.Fatalf("Ingest failed: %v", err)
	}

	if err := datasets.Save(context.Background(), *name); err != nil {
		log.Fatalf("Save failed: %v", err)
	}

	manifest := d.Manifest()
	fmt.Printf("Loaded dataset %s: %d rows\n", manifest.Name, manifest.NumRows)
}
