package database

import (
	"context"

	"bdemetris/devicehub/pkg/store"
)

// Constructors maps every supported provider to its constructor.
func Constructors() map[string]store.StoreConstructor {
	return map[string]store.StoreConstructor{
		store.ProviderDynamoDB: NewDynamoStore,
		store.ProviderPostgres: func(ctx context.Context, dsn string) (store.Store, error) {
			return NewPostgresStore(ctx, dsn)
		},
		store.ProviderMemory: NewSeededMemoryStore,
	}
}

// Open builds the store cfg names.
func Open(ctx context.Context, cfg store.StoreConfig) (store.Store, error) {
	return store.NewStoreFactory(ctx, cfg, Constructors())
}
