package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-hooks/streams"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/google/uuid"
)

const (
	streamMetadataCacheKeyPrefix = "go-hooks::stream_metadata::v1"
	streamHeadCacheKeyPrefix     = "go-hooks::stream_head::v1"

	// DefaultCachedHeadPrefix covers the publisher and subscriber registry
	// snapshot streams.
	DefaultCachedHeadPrefix = "registrations/"
)

// CachedStore serves GetMetadata, and the newest message read
// ReadBackwards(id, VersionEnd, 1) of streams under the head prefixes, from a
// cache. Entries are dropped whenever the stream is written through this
// store. Every other call goes straight to the wrapped store.
type CachedStore struct {
	streams.Store
	cache        repositorycache.CacheService
	headPrefixes []string
}

// NewCachedStore wraps base. Without headPrefixes only registry snapshot
// heads are cached.
func NewCachedStore(
	base streams.Store,
	cacheService repositorycache.CacheService,
	headPrefixes ...string,
) (*CachedStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base stream store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: stream cache service is required")
	}
	if headPrefixes == nil {
		headPrefixes = []string{DefaultCachedHeadPrefix}
	}
	prefixes := make([]string, 0, len(headPrefixes))
	for _, prefix := range headPrefixes {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			prefixes = append(prefixes, prefix)
		}
	}
	return &CachedStore{Store: base, cache: cacheService, headPrefixes: prefixes}, nil
}

// StreamMetadataCacheKey returns go-hooks::stream_metadata::v1::<stream_id>
// with the stream id URL-path escaped.
func StreamMetadataCacheKey(streamID string) (string, error) {
	return cacheKey(streamMetadataCacheKeyPrefix, streamID)
}

// StreamHeadCacheKey returns go-hooks::stream_head::v1::<stream_id> with the
// stream id URL-path escaped.
func StreamHeadCacheKey(streamID string) (string, error) {
	return cacheKey(streamHeadCacheKeyPrefix, streamID)
}

func cacheKey(prefix string, streamID string) (string, error) {
	trimmed := strings.TrimSpace(streamID)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: stream id is required")
	}
	return strings.Join([]string{prefix, url.PathEscape(trimmed)}, "::"), nil
}

func (s *CachedStore) GetMetadata(ctx context.Context, streamID string) (streams.Metadata, error) {
	if err := s.configured(); err != nil {
		return streams.Metadata{}, err
	}
	key, err := StreamMetadataCacheKey(streamID)
	if err != nil {
		return streams.Metadata{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (streams.Metadata, error) {
		return s.Store.GetMetadata(ctx, streamID)
	})
}

func (s *CachedStore) ReadBackwards(ctx context.Context, streamID string, fromVersion int64, maxCount int) (streams.ReadPage, error) {
	if err := s.configured(); err != nil {
		return streams.ReadPage{}, err
	}
	if fromVersion != streams.VersionEnd || maxCount != 1 || !s.cachesHead(streamID) {
		return s.Store.ReadBackwards(ctx, streamID, fromVersion, maxCount)
	}
	key, err := StreamHeadCacheKey(streamID)
	if err != nil {
		return streams.ReadPage{}, err
	}
	page, err := repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (streams.ReadPage, error) {
		return s.Store.ReadBackwards(ctx, streamID, fromVersion, maxCount)
	})
	if err != nil {
		return streams.ReadPage{}, err
	}
	return clonePage(page), nil
}

// Append drops the cached head even when the write fails, so a conflict is
// retried against fresh state.
func (s *CachedStore) Append(ctx context.Context, streamID string, expectedVersion int64, messages ...streams.NewMessage) (streams.AppendResult, error) {
	if err := s.configured(); err != nil {
		return streams.AppendResult{}, err
	}
	result, err := s.Store.Append(ctx, streamID, expectedVersion, messages...)
	if invalidateErr := s.invalidateHead(ctx, streamID); err == nil && invalidateErr != nil {
		return result, invalidateErr
	}
	return result, err
}

func (s *CachedStore) DeleteMessage(ctx context.Context, streamID string, messageID uuid.UUID) error {
	if err := s.configured(); err != nil {
		return err
	}
	if err := s.Store.DeleteMessage(ctx, streamID, messageID); err != nil {
		return err
	}
	return s.invalidateHead(ctx, streamID)
}

func (s *CachedStore) SetMetadata(ctx context.Context, streamID string, meta streams.Metadata) error {
	if err := s.configured(); err != nil {
		return err
	}
	if err := s.Store.SetMetadata(ctx, streamID, meta); err != nil {
		return err
	}
	return s.invalidate(ctx, streamID)
}

func (s *CachedStore) DeleteStream(ctx context.Context, streamID string) error {
	if err := s.configured(); err != nil {
		return err
	}
	if err := s.Store.DeleteStream(ctx, streamID); err != nil {
		return err
	}
	return s.invalidate(ctx, streamID)
}

func (s *CachedStore) configured() error {
	if s == nil || s.Store == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached store is not configured")
	}
	return nil
}

func (s *CachedStore) cachesHead(streamID string) bool {
	streamID = strings.TrimSpace(streamID)
	for _, prefix := range s.headPrefixes {
		if strings.HasPrefix(streamID, prefix) {
			return true
		}
	}
	return false
}

func (s *CachedStore) invalidate(ctx context.Context, streamID string) error {
	key, err := StreamMetadataCacheKey(streamID)
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		return err
	}
	return s.invalidateHead(ctx, streamID)
}

func (s *CachedStore) invalidateHead(ctx context.Context, streamID string) error {
	if !s.cachesHead(streamID) {
		return nil
	}
	key, err := StreamHeadCacheKey(streamID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, key)
}

// clonePage keeps callers from mutating the cached copy.
func clonePage(page streams.ReadPage) streams.ReadPage {
	messages := make([]streams.Message, len(page.Messages))
	for i, msg := range page.Messages {
		msg.Data = append([]byte(nil), msg.Data...)
		msg.Metadata = append([]byte(nil), msg.Metadata...)
		messages[i] = msg
	}
	page.Messages = messages
	return page
}
