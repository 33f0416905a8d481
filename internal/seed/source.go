package seed

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"

	"samledger/internal/blob"
	"samledger/internal/infra/persistence/memory"
	"samledger/internal/infra/persistence/postgres"
	"samledger/internal/infra/persistence/sqlite"
)

//go:embed default.yaml
var defaultFixture []byte

// Source drivers.
const (
	DriverEmbedded = "embedded"
	DriverFile     = "file"
	DriverBlob     = "blob"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Source yields the snapshot a ledger is seeded from.
type Source interface {
	Load(ctx context.Context) (memory.Snapshot, error)
}

// Publisher is a Source that can also store a snapshot.
type Publisher interface {
	Source
	Save(ctx context.Context, snapshot memory.Snapshot) error
	Close() error
}

// Config selects and locates a seed source.
type Config struct {
	Driver      string
	Path        string
	BlobKey     string
	SQLitePath  string
	PostgresDSN string
}

// DefaultFixture decodes the embedded reference fixture.
func DefaultFixture() (Fixture, error) {
	return Decode(bytes.NewReader(defaultFixture))
}

// Default returns the embedded reference ledger as a snapshot.
func Default() (memory.Snapshot, error) {
	return Embedded{}.Load(context.Background())
}

// Load decodes, validates, and converts a fixture document.
func Load(r io.Reader) (memory.Snapshot, error) {
	f, err := Decode(r)
	if err != nil {
		return memory.Snapshot{}, err
	}
	if err := Validate(f); err != nil {
		return memory.Snapshot{}, err
	}
	return f.Snapshot()
}

// Embedded serves the fixture compiled into the binary.
type Embedded struct{}

func (Embedded) Load(context.Context) (memory.Snapshot, error) {
	return Load(bytes.NewReader(defaultFixture))
}

// File reads a fixture document from disk.
type File struct {
	Path string
}

func (s File) Load(context.Context) (memory.Snapshot, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("open fixture: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// Blob reads a fixture document from a blob store.
type Blob struct {
	Store blob.Store
	Key   string
}

func (s Blob) Load(ctx context.Context) (memory.Snapshot, error) {
	_, rc, err := s.Store.Get(ctx, s.Key)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("get fixture %s: %w", s.Key, err)
	}
	defer func() { _ = rc.Close() }()
	return Load(rc)
}

// closingSource releases a SQL source once its snapshot has been read.
type closingSource struct {
	Publisher
}

func (s closingSource) Load(ctx context.Context) (memory.Snapshot, error) {
	defer func() { _ = s.Close() }()
	return s.Publisher.Load(ctx)
}

// Open resolves cfg into a Source. blobs is only consulted by the blob
// driver. SQL sources are closed after their first Load.
func Open(ctx context.Context, cfg Config, blobs blob.Store) (Source, error) {
	switch cfg.Driver {
	case "", DriverEmbedded:
		return Embedded{}, nil
	case DriverFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("seed driver file requires a path")
		}
		return File{Path: cfg.Path}, nil
	case DriverBlob:
		if blobs == nil || cfg.BlobKey == "" {
			return nil, fmt.Errorf("seed driver blob requires a blob store and key")
		}
		return Blob{Store: blobs, Key: cfg.BlobKey}, nil
	case DriverSQLite, DriverPostgres:
		pub, err := OpenPublisher(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return closingSource{Publisher: pub}, nil
	default:
		return nil, fmt.Errorf("unknown seed driver %q", cfg.Driver)
	}
}

// OpenPublisher opens a SQL source that fixtures can be published to.
func OpenPublisher(ctx context.Context, cfg Config) (Publisher, error) {
	switch cfg.Driver {
	case DriverSQLite:
		src, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return src, nil
	case DriverPostgres:
		src, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("seed driver %q cannot be published to", cfg.Driver)
	}
}
