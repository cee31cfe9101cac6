package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/openblog/backend/internal/db"
	"github.com/openblog/backend/internal/logger"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50

	// MaxTitleLength is in characters and matches the posts.title column.
	MaxTitleLength = 255

	maxSlugLength   = 240
	maxSlugAttempts = 10
)

var (
	ErrNotFound   = errors.New("post not found")
	ErrTitleTaken = errors.New("post title already exists")
	ErrNotOwner   = errors.New("requester does not own this post")
	ErrInvalid    = errors.New("invalid post")
)

// FieldError names the input field a validation failure refers to.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Message }

func (e *FieldError) Unwrap() error { return ErrInvalid }

// Store is the persistence the service needs; *db.PostRepository satisfies it.
type Store interface {
	Create(ctx context.Context, post *db.Post) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Post, error)
	GetBySlug(ctx context.Context, slug string) (*db.Post, error)
	List(ctx context.Context, filter db.PostFilter) ([]db.Post, int, error)
	Update(ctx context.Context, post *db.Post) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Cache holds post views by id or slug. Failures are treated as misses.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// View is the JSON shape of a post.
type View struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Picture     string    `json:"picture,omitempty"`
	Username    string    `json:"username"`
	Categories  []string  `json:"categories"`
	CreatedDate time.Time `json:"createdDate"`
}

func toView(p *db.Post) *View {
	return &View{
		ID:          p.ID.String(),
		Title:       p.Title,
		Slug:        p.Slug,
		Description: p.Description,
		Picture:     p.Picture,
		Username:    p.Username,
		Categories:  p.Categories,
		CreatedDate: p.CreatedDate,
	}
}

type CreateInput struct {
	Title       string
	Description string
	Picture     string
	Categories  []string
	CreatedDate time.Time
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Title       *string
	Description *string
	Picture     *string
	Categories  []string
}

type ListParams struct {
	Category string
	Page     int
	Limit    int
}

// Page is one page of posts plus the arithmetic the client pages with.
type Page struct {
	Items       []*View `json:"items"`
	Page        int     `json:"page"`
	Limit       int     `json:"limit"`
	Total       int     `json:"total"`
	TotalPages  int     `json:"totalPages"`
	HasNextPage bool    `json:"hasNextPage"`
	HasPrevPage bool    `json:"hasPrevPage"`
}

// NormalizePage clamps page to at least 1 and limit to [1, MaxLimit].
// Zero values take the defaults.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	limit = min(max(limit, 1), MaxLimit)
	return page, limit
}

// TotalPages is ceil(total/limit), never less than 1.
func TotalPages(total, limit int) int {
	pages := (total + limit - 1) / limit
	if pages < 1 {
		return 1
	}
	return pages
}

type Service struct {
	store    Store
	cache    Cache
	cacheTTL time.Duration
	now      func() time.Time
	log      *logger.Logger
}

// NewService creates the post service. cache may be nil.
func NewService(store Store, cache Cache, cacheTTL time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      time.Now,
		log:      log.WithComponent("posts"),
	}
}

func cacheKey(idOrSlug string) string {
	return "post:" + idOrSlug
}

func normalizeCategories(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func makeSlug(title string, id uuid.UUID) string {
	s := slug.Make(title)
	if len(s) > maxSlugLength {
		s = strings.TrimRight(s[:maxSlugLength], "-")
	}
	if s == "" {
		return id.String()
	}
	return s
}

// slugCandidate is base on the first attempt, then base-2, base-3 and so
// on. The last attempt appends the start of the post id instead.
func slugCandidate(base string, id uuid.UUID, attempt int) string {
	switch {
	case attempt == 0:
		return base
	case attempt < maxSlugAttempts-1:
		return fmt.Sprintf("%s-%d", base, attempt+1)
	default:
		return base + "-" + id.String()[:8]
	}
}

// writeWithSlug runs write with post.Slug set to successive candidates
// until the store stops reporting a slug collision.
func writeWithSlug(post *db.Post, base string, write func() error) error {
	var err error
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		post.Slug = slugCandidate(base, post.ID, attempt)
		if err = write(); !errors.Is(err, db.ErrSlugExists) {
			return err
		}
	}
	return err
}

func validateTitle(title string) error {
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return &FieldError{Field: "title", Message: fmt.Sprintf("title must be at most %d characters", MaxTitleLength)}
	}
	return nil
}

// Create stores a new post owned by owner.
func (s *Service) Create(ctx context.Context, owner string, in CreateInput) (*View, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, &FieldError{Field: "title", Message: "title is required"}
	}
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, &FieldError{Field: "description", Message: "description is required"}
	}

	created := in.CreatedDate
	if created.IsZero() {
		created = s.now()
	}

	post := &db.Post{
		ID:          uuid.New(),
		Title:       title,
		Description: in.Description,
		Picture:     strings.TrimSpace(in.Picture),
		Username:    owner,
		Categories:  normalizeCategories(in.Categories),
		CreatedDate: created.UTC(),
	}
	err := writeWithSlug(post, makeSlug(title, post.ID), func() error {
		return s.store.Create(ctx, post)
	})
	if err != nil {
		if errors.Is(err, db.ErrTitleExists) {
			return nil, ErrTitleTaken
		}
		return nil, fmt.Errorf("create post: %w", err)
	}

	// The slug may have belonged to a post that was renamed or deleted.
	s.invalidate(ctx, post)

	s.log.Info(ctx, "post created", map[string]any{"post_id": post.ID.String(), "username": owner})
	return toView(post), nil
}

// List returns one page of posts, newest first.
func (s *Service) List(ctx context.Context, params ListParams) (*Page, error) {
	page, limit := NormalizePage(params.Page, params.Limit)

	posts, total, err := s.store.List(ctx, db.PostFilter{
		Category: strings.TrimSpace(params.Category),
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	items := make([]*View, 0, len(posts))
	for i := range posts {
		items = append(items, toView(&posts[i]))
	}

	totalPages := TotalPages(total, limit)
	return &Page{
		Items:       items,
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}, nil
}

func (s *Service) load(ctx context.Context, idOrSlug string) (*db.Post, error) {
	var (
		post *db.Post
		err  error
	)
	if id, parseErr := uuid.Parse(idOrSlug); parseErr == nil {
		post, err = s.store.GetByID(ctx, id)
	} else {
		post, err = s.store.GetBySlug(ctx, idOrSlug)
	}
	if errors.Is(err, db.ErrPostNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", idOrSlug, err)
	}
	return post, nil
}

// Get returns a post by id or slug, going through the cache when one is set.
func (s *Service) Get(ctx context.Context, idOrSlug string) (*View, error) {
	idOrSlug = strings.TrimSpace(idOrSlug)
	if idOrSlug == "" {
		return nil, ErrNotFound
	}

	if s.cache != nil {
		var cached View
		if err := s.cache.GetJSON(ctx, cacheKey(idOrSlug), &cached); err == nil {
			return &cached, nil
		}
	}

	post, err := s.load(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}

	view := toView(post)
	if s.cache != nil {
		// A failed write only costs the next reader a database hit.
		_ = s.cache.SetJSON(ctx, cacheKey(idOrSlug), view, s.cacheTTL)
	}
	return view, nil
}

func (s *Service) invalidate(ctx context.Context, post *db.Post, extra ...string) {
	if s.cache == nil {
		return
	}
	keys := []string{cacheKey(post.ID.String()), cacheKey(post.Slug)}
	for _, k := range extra {
		keys = append(keys, cacheKey(k))
	}
	_ = s.cache.Delete(ctx, keys...)
}

func (s *Service) owned(ctx context.Context, requester, id string) (*db.Post, error) {
	postID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	post, err := s.store.GetByID(ctx, postID)
	if errors.Is(err, db.ErrPostNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}
	if post.Username != requester {
		return nil, ErrNotOwner
	}
	return post, nil
}

// Update applies a partial update. Only the owner may update a post.
func (s *Service) Update(ctx context.Context, requester, id string, in UpdateInput) (*View, error) {
	post, err := s.owned(ctx, requester, id)
	if err != nil {
		return nil, err
	}
	oldSlug := post.Slug
	baseSlug := post.Slug

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, &FieldError{Field: "title", Message: "title must not be empty"}
		}
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		if title != post.Title {
			post.Title = title
			baseSlug = makeSlug(title, post.ID)
		}
	}
	if in.Description != nil {
		if strings.TrimSpace(*in.Description) == "" {
			return nil, &FieldError{Field: "description", Message: "description must not be empty"}
		}
		post.Description = *in.Description
	}
	if in.Picture != nil {
		post.Picture = strings.TrimSpace(*in.Picture)
	}
	if in.Categories != nil {
		post.Categories = normalizeCategories(in.Categories)
	}

	err = writeWithSlug(post, baseSlug, func() error {
		return s.store.Update(ctx, post)
	})
	if err != nil {
		switch {
		case errors.Is(err, db.ErrTitleExists):
			return nil, ErrTitleTaken
		case errors.Is(err, db.ErrPostNotFound):
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update post %s: %w", id, err)
	}

	s.invalidate(ctx, post, oldSlug)
	s.log.Info(ctx, "post updated", map[string]any{"post_id": id, "username": requester})
	return toView(post), nil
}

// Delete removes a post and its comments. Only the owner may delete a post.
func (s *Service) Delete(ctx context.Context, requester, id string) error {
	post, err := s.owned(ctx, requester, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, post.ID); err != nil {
		if errors.Is(err, db.ErrPostNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete post %s: %w", id, err)
	}

	s.invalidate(ctx, post)
	s.log.Info(ctx, "post deleted", map[string]any{"post_id": id, "username": requester})
	return nil
}
