package sqlstore

import "github.com/goliatone/go-appstate/core"

var (
	_ core.KVStore = (*KVStore)(nil)
	_ core.KVStore = (*CachedKVStore)(nil)
)
