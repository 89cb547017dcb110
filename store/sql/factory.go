package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-hooks/streams"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db           *bun.DB
	cache        repositorycache.CacheService
	headPrefixes []string

	streamStore *StreamStore
	cachedStore *CachedStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// WithCache puts metadata reads and registry snapshot reads behind the given
// cache service. It must be called before BuildStores.
func (f *RepositoryFactory) WithCache(cacheService repositorycache.CacheService) *RepositoryFactory {
	if f == nil {
		return nil
	}
	f.cache = cacheService
	return f
}

// WithCachedHeadPrefixes replaces the stream prefixes whose newest message is
// cached. Calling it with no prefix caches metadata only, which suits stores
// written by several processes.
func (f *RepositoryFactory) WithCachedHeadPrefixes(prefixes ...string) *RepositoryFactory {
	if f == nil {
		return nil
	}
	f.headPrefixes = append([]string{}, prefixes...)
	return f
}

// BuildStores resolves a *bun.DB from persistenceClient, which may be a
// *bun.DB or anything exposing DB() *bun.DB.
func (f *RepositoryFactory) BuildStores(persistenceClient any) (streams.Store, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.streamStore != nil {
		return f.StreamStore(), nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f.StreamStore(), nil
}

// StreamStore returns the store to hand to publishers and subscribers.
func (f *RepositoryFactory) StreamStore() streams.Store {
	if f == nil {
		return nil
	}
	if f.cachedStore != nil {
		return f.cachedStore
	}
	if f.streamStore == nil {
		return nil
	}
	return f.streamStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	streamStore, err := NewStreamStore(f.db)
	if err != nil {
		return err
	}
	f.streamStore = streamStore
	if f.cache == nil {
		return nil
	}
	cachedStore, err := NewCachedStore(streamStore, f.cache, f.headPrefixes...)
	if err != nil {
		return err
	}
	f.cachedStore = cachedStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
