// Package redis implements the document store on Redis. Documents live as
// JSON strings under per-index keys, with one id set per index and a
// registry set of known indices. Queries filter client-side, which fits the
// bounded size of a live monitoring partition.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dukex/flowscope/pkg/store"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "flowscope"

// Store implements store.DocumentStore on top of Redis.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewStore connects to Redis and registers the live indices.
func NewStore(ctx context.Context, logger *slog.Logger, redisURL string) (*Store, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	s := &Store{client: client, logger: logger}

	for _, index := range store.LiveIndices() {
		if err := s.EnsureIndex(ctx, index); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func docKey(index, id string) string {
	return keyPrefix + ":doc:" + index + ":" + id
}

func idSetKey(index string) string {
	return keyPrefix + ":index:" + index
}

func registryKey() string {
	return keyPrefix + ":indices"
}

func (s *Store) EnsureIndex(ctx context.Context, index string) error {
	err := s.client.SAdd(ctx, registryKey(), index).Err()
	if err != nil {
		return store.NewIndexError("EnsureIndex", index, err)
	}

	return nil
}

func (s *Store) Indices(ctx context.Context, prefix string) ([]string, error) {
	names, err := s.client.SMembers(ctx, registryKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list indices: %w", err)
	}

	matched := make([]string, 0, len(names))

	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			matched = append(matched, name)
		}
	}

	sort.Strings(matched)

	return matched, nil
}

func (s *Store) BulkUpsert(ctx context.Context, index string, docs []store.Document) error {
	if len(docs) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, registryKey(), index)

	for _, doc := range docs {
		pipe.Set(ctx, docKey(index, doc.ID), string(doc.Source), 0)
		pipe.SAdd(ctx, idSetKey(index), doc.ID)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return store.NewIndexError("BulkUpsert", index, err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, target, id string) (*store.Document, error) {
	indices, err := s.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	for _, index := range indices {
		source, err := s.client.Get(ctx, docKey(index, id)).Result()
		if err == redis.Nil {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to get document %s from %s: %w", id, index, err)
		}

		return &store.Document{ID: id, Source: json.RawMessage(source)}, nil
	}

	return nil, store.ErrDocumentNotFound
}

func (s *Store) Search(ctx context.Context, target string, query store.Query) (int64, []store.Document, error) {
	indices, err := s.resolveTarget(ctx, target)
	if err != nil {
		return 0, nil, err
	}

	wantIDs := idSet(query.IDs)
	seen := make(map[string]bool)
	matched := make([]map[string]any, 0)
	raw := make(map[string]store.Document)

	// Live index first: mid-archive duplicates resolve to the live copy.
	for _, index := range indices {
		ids, err := s.client.SMembers(ctx, idSetKey(index)).Result()
		if err != nil {
			return 0, nil, store.NewIndexError("Search", index, err)
		}

		sort.Strings(ids)

		for _, id := range ids {
			if seen[id] {
				continue
			}

			seen[id] = true

			if wantIDs != nil && !wantIDs[id] {
				continue
			}

			source, err := s.client.Get(ctx, docKey(index, id)).Result()
			if err == redis.Nil {
				continue
			}

			if err != nil {
				return 0, nil, store.NewIndexError("Search", index, err)
			}

			decoded := make(map[string]any)
			if err := json.Unmarshal([]byte(source), &decoded); err != nil {
				return 0, nil, store.NewIndexError("Search", index, fmt.Errorf("corrupt document %s: %w", id, err))
			}

			if _, ok := decoded["id"].(string); !ok {
				return 0, nil, store.NewIndexError("Search", index, fmt.Errorf("corrupt document %s: no string id", id))
			}

			if store.Matches(decoded, query) {
				matched = append(matched, decoded)
				raw[id] = store.Document{ID: id, Source: json.RawMessage(source)}
			}
		}
	}

	store.SortDocuments(matched, query.Sorts)

	total := int64(len(matched))
	page := store.Window(matched, query.From, query.Size)

	docs := make([]store.Document, 0, len(page))
	for _, decoded := range page {
		docs = append(docs, raw[decoded["id"].(string)])
	}

	return total, docs, nil
}

func (s *Store) DeleteByIDs(ctx context.Context, index string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()

	for _, id := range ids {
		pipe.Del(ctx, docKey(index, id))
		pipe.SRem(ctx, idSetKey(index), id)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return store.NewIndexError("DeleteByIDs", index, err)
	}

	return nil
}

func (s *Store) Reindex(ctx context.Context, src, dst string, ids []string) error {
	if err := s.EnsureIndex(ctx, dst); err != nil {
		return err
	}

	for _, id := range ids {
		source, err := s.client.Get(ctx, docKey(src, id)).Result()
		if err == redis.Nil {
			continue
		}

		if err != nil {
			return store.NewIndexError("Reindex", src, fmt.Errorf("document %s: %w", id, err))
		}

		pipe := s.client.TxPipeline()
		pipe.Set(ctx, docKey(dst, id), source, 0)
		pipe.SAdd(ctx, idSetKey(dst), id)

		_, err = pipe.Exec(ctx)
		if err != nil {
			return store.NewIndexError("Reindex", dst, fmt.Errorf("document %s: %w", id, err))
		}
	}

	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}

func (s *Store) resolveTarget(ctx context.Context, target string) ([]string, error) {
	base, isAlias := strings.CutSuffix(target, "*")
	if !isAlias {
		return []string{target}, nil
	}

	indices, err := s.Indices(ctx, base)
	if err != nil {
		return nil, err
	}

	resolved := make([]string, 0, len(indices))

	for _, index := range indices {
		if index == base {
			resolved = append(resolved, index)
		}
	}

	for _, index := range indices {
		if index != base {
			resolved = append(resolved, index)
		}
	}

	return resolved, nil
}

func idSet(ids []string) map[string]bool {
	if ids == nil {
		return nil
	}

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}

	return set
}
