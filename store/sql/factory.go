package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"

	"github.com/repowatch/repowatch/core"
)

// StoreFactory builds the event store family from a persistence client or a
// raw bun handle.
type StoreFactory struct {
	db         *bun.DB
	eventStore *EventStore
}

func NewStoreFactoryFromPersistence(client *persistence.Client, options ...EventStoreOption) (*StoreFactory, error) {
	return newStoreFactory(client, options...)
}

func NewStoreFactoryFromDB(db *bun.DB, options ...EventStoreOption) (*StoreFactory, error) {
	return newStoreFactory(db, options...)
}

func newStoreFactory(persistenceClient any, options ...EventStoreOption) (*StoreFactory, error) {
	db, err := resolveBunDB(persistenceClient)
	if err != nil {
		return nil, err
	}
	eventStore, err := NewEventStore(db, options...)
	if err != nil {
		return nil, err
	}
	return &StoreFactory{db: db, eventStore: eventStore}, nil
}

func (f *StoreFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *StoreFactory) EventStore() *EventStore {
	if f == nil {
		return nil
	}
	return f.eventStore
}

// CachedEventStore wraps the factory's event store with the read-through
// cache used by the HTTP read path.
func (f *StoreFactory) CachedEventStore(cacheService repositorycache.CacheService) (core.EventStore, error) {
	if f == nil || f.eventStore == nil {
		return nil, fmt.Errorf("sqlstore: store factory is not configured")
	}
	return NewCachedEventStore(f.eventStore, cacheService)
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
