// Package allowlist gates every endpoint on the study's enrollment
// allow-list of participant IDs, kept in a Redis set.
package allowlist

// #region imports
import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// #endregion

// #region key

// setKey is the Redis set holding the allowed participant IDs.
const setKey = "prolific_ids"

// #endregion key

// #region store

// Store checks and maintains the participant allow-list.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a store from a Redis URL.
func NewStore(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Store{rdb: redis.NewClient(opts)}, nil
}

// NewStoreWithClient wraps an existing client. Test use.
func NewStoreWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// #endregion store

// #region operations

// Contains reports whether the participant ID is allow-listed.
func (s *Store) Contains(ctx context.Context, participantID string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, setKey, participantID).Result()
	if err != nil {
		return false, fmt.Errorf("allowlist check: %w", err)
	}
	return ok, nil
}

// Add inserts participant IDs into the allow-list.
func (s *Store) Add(ctx context.Context, participantIDs ...string) error {
	if len(participantIDs) == 0 {
		return nil
	}
	members := make([]any, len(participantIDs))
	for i, id := range participantIDs {
		members[i] = id
	}
	if err := s.rdb.SAdd(ctx, setKey, members...).Err(); err != nil {
		return fmt.Errorf("allowlist add: %w", err)
	}
	return nil
}

// #endregion operations
