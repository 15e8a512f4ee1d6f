package serve

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/siftdata/sift/internal/config"
	"github.com/siftdata/sift/internal/dataset"
	"github.com/siftdata/sift/internal/logging"
	"github.com/siftdata/sift/pkg/api"
	"github.com/siftdata/sift/pkg/objectstore"
)

func Run(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	addr := fs.String("addr", "", "Listen address (overrides config)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *addr != "" {
		cfg.ListenAddr = *addr
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
	if cfg.ObjectStore.Type != "" {
		fmt.Printf("Connected to object store: %s at %s\n", cfg.ObjectStore.Type, cfg.ObjectStore.Endpoint)
	}

	logger := logging.New()
	datasets := dataset.NewStore(objectstore.NewInstrumentedStore(store), logger)

	if err := loadOnStart(context.Background(), store, datasets, cfg.Datasets.LoadOnStart); err != nil {
		log.Fatalf("Failed to load datasets: %v", err)
	}

	router := api.NewRouterWithDeps(cfg, api.Deps{
		Logger:  logger,
		Objects: store,
		Store:   datasets,
	})

	queryTimeout := time.Duration(cfg.Timeout.GetQueryTimeout()) * time.Millisecond
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	writeTimeout := queryTimeout + 5*time.Second
	if writeTimeout < 30*time.Second {
		writeTimeout = 30 * time.Second
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		fmt.Printf("Starting sift server on %s\n", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	fmt.Println("\nShutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}

	if err := router.Close(); err != nil {
		log.Printf("Router close error: %v", err)
	}

	fmt.Println("Server stopped")
}

// loadOnStart restores persisted datasets into memory. An empty name list
// means every dataset found under the datasets/ prefix.
func loadOnStart(ctx context.Context, store objectstore.Store, datasets *dataset.Store, names []string) error {
	if len(names) == 0 {
		var err error
		names, err = listPersistedDatasets(ctx, store)
		if err != nil {
			return err
		}
	}
	for _, name := range names {
		if _, err := datasets.Load(ctx, name); err != nil {
			return fmt.Errorf("dataset %s: %w", name, err)
		}
	}
	return nil
}

func listPersistedDatasets(ctx context.Context, store objectstore.Store) ([]string, error) {
	names := make(map[string]struct{})
	marker := ""
	for {
		result, err := store.List(ctx, &objectstore.ListOptions{
			Prefix:  "datasets/",
			Marker:  marker,
			MaxKeys: 1000,
		})
		if err != nil {
			return nil, err
		}

		for _, obj := range result.Objects {
			rest := strings.TrimPrefix(obj.Key, "datasets/")
			idx := strings.Index(rest, "/")
			if idx <= 0 {
				continue
			}
			if rest[idx+1:] != "manifest.json" {
				continue
			}
			names[rest[:idx]] = struct{}{}
		}

		if !result.IsTruncated || result.NextMarker == "" {
			break
		}
		marker = result.NextMarker
	}

	result := make([]string, 0, len(names))
	for name := range names {
		result = append(result, name)
	}
	return result, nil
}
