package objectstore

import "fmt"

// Config selects and configures a backend. Type is one of "s3",
// "filesystem", or "memory". An empty Type defaults to memory.
type Config struct {
	Type      string
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	RootPath  string
}

// New builds a Store for the configured backend.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case "s3", "minio":
		return NewS3Store(S3Config{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
	case "filesystem", "fs":
		return NewFSStore(cfg.RootPath)
	case "memory", "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown object store type %q", cfg.Type)
	}
}
