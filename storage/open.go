package storage

import (
	"fmt"
	"os"

	"github.com/omalloc/ember/conf"
)

// New opens the KV driver selected by c.Driver.
func New(c *conf.Storage) (KV, error) {
	switch c.Driver {
	case "", "nutsdb":
		if c.Path == "" {
			return nil, fmt.Errorf("storage path is required for nutsdb")
		}
		if err := os.MkdirAll(c.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage dir: %w", err)
		}
		return NewNutsDBStore(c.Path, c.Bucket)
	case "mysql", "postgres":
		return NewSQLStore(c.Driver, c.DSN, c.Bucket)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.Driver)
	}
}
