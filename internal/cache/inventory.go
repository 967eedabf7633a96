package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	UnreadKeyPrefix = "inbox:unread:%s"
)

const (
	UnreadTTL = 30 * time.Second
)

// UnreadKey is the cached unread summary of one user.
func UnreadKey(userID string) string {
	return fmt.Sprintf(UnreadKeyPrefix, userID)
}

// Invalidate deletes keys; failures are ignored since entries expire anyway.
func Invalidate(ctx context.Context, rdb *redis.Client, keys ...string) {
	if rdb == nil || len(keys) == 0 {
		return
	}
	rdb.Del(ctx, keys...)
}

// InvalidateUnread drops the cached unread summaries of the given users.
// Empty ids are skipped.
func InvalidateUnread(ctx context.Context, rdb *redis.Client, userIDs ...string) {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		keys = append(keys, UnreadKey(id))
	}
	Invalidate(ctx, rdb, keys...)
}
