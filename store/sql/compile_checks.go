package sqlstore

import "github.com/goliatone/go-hooks/streams"

var (
	_ streams.Store = (*StreamStore)(nil)
	_ streams.Store = (*CachedStore)(nil)
)
