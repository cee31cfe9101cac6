package posts

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openblog/backend/internal/cache"
	"github.com/openblog/backend/internal/db"
	"github.com/openblog/backend/internal/logger"
)

type memPostStore struct {
	mu    sync.Mutex
	posts map[uuid.UUID]*db.Post
	reads int
}

func newMemPostStore() *memPostStore {
	return &memPostStore{posts: make(map[uuid.UUID]*db.Post)}
}

func (s *memPostStore) Create(ctx context.Context, post *db.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.Title == post.Title {
			return db.ErrTitleExists
		}
		if p.Slug == post.Slug {
			return db.ErrSlugExists
		}
	}
	p := *post
	s.posts[post.ID] = &p
	return nil
}

func (s *memPostStore) GetByID(ctx context.Context, id uuid.UUID) (*db.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	p, ok := s.posts[id]
	if !ok {
		return nil, db.ErrPostNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *memPostStore) GetBySlug(ctx context.Context, slug string) (*db.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	for _, p := range s.posts {
		if p.Slug == slug {
			copied := *p
			return &copied, nil
		}
	}
	return nil, db.ErrPostNotFound
}

func (s *memPostStore) List(ctx context.Context, filter db.PostFilter) ([]db.Post, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []db.Post
	for _, p := range s.posts {
		if filter.Category != "" && !contains(p.Categories, filter.Category) {
			continue
		}
		matched = append(matched, *p)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedDate.After(matched[j].CreatedDate)
	})

	total := len(matched)
	start := min(filter.Offset, total)
	end := min(start+filter.Limit, total)
	return matched[start:end], total, nil
}

func (s *memPostStore) Update(ctx context.Context, post *db.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.ID]; !ok {
		return db.ErrPostNotFound
	}
	for id, p := range s.posts {
		if id != post.ID && p.Title == post.Title {
			return db.ErrTitleExists
		}
		if id != post.ID && p.Slug == post.Slug {
			return db.ErrSlugExists
		}
	}
	p := *post
	s.posts[post.ID] = &p
	return nil
}

func (s *memPostStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return db.ErrPostNotFound
	}
	delete(s.posts, id)
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// memCache stores JSON the way the redis cache does.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) GetJSON(ctx context.Context, key string, dst any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(data, dst)
}

func (c *memCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	return nil
}

func (c *memCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func quietLogger() *logger.Logger {
	return logger.New(&logger.Config{Output: io.Discard, Level: logger.LevelError})
}

func newTestService() (*Service, *memPostStore, *memCache) {
	store := newMemPostStore()
	c := newMemCache()
	return NewService(store, c, time.Minute, quietLogger()), store, c
}
