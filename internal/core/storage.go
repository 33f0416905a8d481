package core

import (
	"samledger/internal/infra/persistence/memory"
)

// NewMemoryStore returns an empty in-memory ledger store evaluated by engine.
func NewMemoryStore(engine *RulesEngine, opts ...memory.Option) *memory.Store {
	return memory.NewStore(engine, opts...)
}

// NewSeededService builds a service over an in-memory store loaded with
// snapshot. The ledger is held in memory for the life of the process.
func NewSeededService(snapshot memory.Snapshot, opts ...Option) *Service {
	store := memory.NewStore(NewDefaultRulesEngine())
	store.ImportState(snapshot)
	return NewService(store, opts...)
}

// NewInMemoryService builds a service over an empty in-memory store.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}
