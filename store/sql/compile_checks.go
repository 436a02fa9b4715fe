package sqlstore

import (
	"github.com/goliatone/go-vendit/core"
	"github.com/goliatone/go-vendit/ratelimit"
)

var (
	_ core.StateStore             = (*StateStore)(nil)
	_ core.SyncRunStore           = (*SyncRunStore)(nil)
	_ core.StateStoreProvider     = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
	_ ratelimit.StateStore        = (*RateLimitStateStore)(nil)
	_ ratelimit.StateStore        = (*CachedRateLimitStateStore)(nil)
)
