package cachemanager

import "context"

// NoopStore never holds anything; every read is a miss.
type NoopStore struct{}

var _ Store = NoopStore{}

func (NoopStore) Has(context.Context, string) bool          { return false }
func (NoopStore) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (NoopStore) Set(context.Context, string, []byte) error  { return nil }
func (NoopStore) Flush(context.Context) error                { return nil }
func (NoopStore) Close() error                               { return nil }
