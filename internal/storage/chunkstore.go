// Package storage holds the indexed chunk store that draft-writing tools
// append to and the download endpoints read back.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"fable/internal/logging"
)

// ChunkStore is an ordered collection of text chunks persisted in a hash,
// addressed by a dense integer index. A second hash carries free-form
// metadata about the collection.
type ChunkStore struct {
	name   string
	rdb    redis.UniversalClient
	logger logging.Logger
}

// NewChunkStore binds a chunk store to a named collection. The name is
// typically the session id, so each conversation accumulates its own draft.
func NewChunkStore(name string, rdb redis.UniversalClient) *ChunkStore {
	return &ChunkStore{
		name:   name,
		rdb:    rdb,
		logger: logging.NewSessionLogger("chunkstore", name),
	}
}

func (c *ChunkStore) dataKey() string { return "is:" + c.name + ":d:" }
func (c *ChunkStore) metaKey() string { return "is:" + c.name + ":m:" }

// Name returns the collection name this store is bound to.
func (c *ChunkStore) Name() string { return c.name }

// Count returns the number of stored chunks.
func (c *ChunkStore) Count(ctx context.Context) int {
	n, err := c.rdb.HLen(ctx, c.dataKey()).Result()
	if err != nil {
		c.logger.Error("count chunks: %v", err)
		return 0
	}
	return int(n)
}

// Add appends a chunk at the next index and returns that index.
func (c *ChunkStore) Add(ctx context.Context, data string) (int, error) {
	index := c.Count(ctx)
	if err := c.rdb.HSet(ctx, c.dataKey(), strconv.Itoa(index), data).Err(); err != nil {
		return 0, fmt.Errorf("add chunk %d: %w", index, err)
	}
	return index, nil
}

// Update overwrites the chunk at an existing index.
func (c *ChunkStore) Update(ctx context.Context, index int, data string) error {
	exists, err := c.rdb.HExists(ctx, c.dataKey(), strconv.Itoa(index)).Result()
	if err != nil {
		return fmt.Errorf("check chunk %d: %w", index, err)
	}
	if !exists {
		return fmt.Errorf("chunk %d does not exist", index)
	}
	if err := c.rdb.HSet(ctx, c.dataKey(), strconv.Itoa(index), data).Err(); err != nil {
		return fmt.Errorf("update chunk %d: %w", index, err)
	}
	return nil
}

// Get reads the chunk at an index, reporting whether it exists.
func (c *ChunkStore) Get(ctx context.Context, index int) (string, bool) {
	data, err := c.rdb.HGet(ctx, c.dataKey(), strconv.Itoa(index)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Error("get chunk %d: %v", index, err)
		return "", false
	}
	return data, true
}

// GetAll returns every chunk in index order.
func (c *ChunkStore) GetAll(ctx context.Context) []string {
	fields, err := c.rdb.HGetAll(ctx, c.dataKey()).Result()
	if err != nil {
		c.logger.Error("read chunks: %v", err)
		return nil
	}

	indices := make([]int, 0, len(fields))
	for field := range fields {
		index, err := strconv.Atoi(field)
		if err != nil {
			c.logger.Warn("skip non-numeric chunk field %q", field)
			continue
		}
		indices = append(indices, index)
	}
	sort.Ints(indices)

	out := make([]string, 0, len(indices))
	for _, index := range indices {
		out = append(out, fields[strconv.Itoa(index)])
	}
	return out
}

// AddMeta stores a metadata value for the collection.
func (c *ChunkStore) AddMeta(ctx context.Context, key, value string) error {
	if err := c.rdb.HSet(ctx, c.metaKey(), key, value).Err(); err != nil {
		return fmt.Errorf("add meta %q: %w", key, err)
	}
	return nil
}

// Meta reads a metadata value, reporting whether it exists.
func (c *ChunkStore) Meta(ctx context.Context, key string) (string, bool) {
	value, err := c.rdb.HGet(ctx, c.metaKey(), key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Error("get meta %q: %v", key, err)
		return "", false
	}
	return value, true
}

// Clear deletes the collection and its metadata.
func (c *ChunkStore) Clear(ctx context.Context) error {
	if err := c.rdb.Del(ctx, c.dataKey(), c.metaKey()).Err(); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	return nil
}
