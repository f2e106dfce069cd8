package docstore

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Factory builds a Store from a DSN whose scheme it was registered under.
type Factory func(dsn string) (Store, error)

var factoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]Factory
}{
	factories: map[string]Factory{},
}

// Register makes a backend available to Open under scheme. Packages that own
// heavier clients (Firestore, for one) register themselves instead of being
// imported here.
func Register(scheme string, factory Factory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	factoryRegistry.mu.Lock()
	defer factoryRegistry.mu.Unlock()
	factoryRegistry.factories[scheme] = factory
}

func lookupFactory(scheme string) (Factory, bool) {
	scheme = normalizeScheme(scheme)
	factoryRegistry.mu.RLock()
	defer factoryRegistry.mu.RUnlock()
	factory, ok := factoryRegistry.factories[scheme]
	return factory, ok
}

// Open builds the store selected by dsn:
//
//	memory://                      in-process
//	postgres://user@host/db        SQL store over lib/pq
//	sqlite:///var/lib/xforms.db    SQL store over go-sqlite3
//
// plus any scheme added through Register.
func Open(dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := normalizeScheme(parsed.Scheme)
	if factory, ok := lookupFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "memory", "mem", "inmem":
		return NewMemoryStore(), nil
	case "postgres", "postgresql":
		return NewSQLStore("postgres", dsn)
	case "sqlite", "sqlite3":
		path := parsed.Path
		if parsed.Host != "" {
			path = parsed.Host + path
		}
		if path == "" {
			return nil, fmt.Errorf("%w: sqlite dsn %q has no path", ErrInvalidInput, dsn)
		}
		return NewSQLStore("sqlite3", path)
	default:
		return nil, fmt.Errorf("unsupported store scheme: %s", scheme)
	}
}

func normalizeScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}
