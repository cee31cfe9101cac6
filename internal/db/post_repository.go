package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var ErrPostNotFound = errors.New("post not found")
var ErrTitleExists = errors.New("post title already exists")
var ErrSlugExists = errors.New("post slug already exists")

// postConflict maps a unique violation on posts to the matching sentinel.
func postConflict(err error) error {
	constraint, ok := uniqueViolation(err)
	if !ok {
		return err
	}
	if constraint == "posts_slug_key" {
		return ErrSlugExists
	}
	return ErrTitleExists
}

type Post struct {
	ID          uuid.UUID
	Title       string
	Slug        string
	Description string
	Picture     string
	// Username of the author, copied at creation.
	Username    string
	Categories  []string
	CreatedDate time.Time
}

// PostFilter selects one page of posts, newest first.
type PostFilter struct {
	Category string
	Limit    int
	Offset   int
}

type PostRepository struct {
	db *DB
}

func NewPostRepository(db *DB) *PostRepository {
	return &PostRepository{db: db}
}

const postColumns = `id, title, slug, description, picture, username, categories, created_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner, extra ...any) (*Post, error) {
	p := &Post{}
	dest := append([]any{
		&p.ID, &p.Title, &p.Slug, &p.Description, &p.Picture, &p.Username,
		pq.Array(&p.Categories), &p.CreatedDate,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if p.Categories == nil {
		p.Categories = []string{}
	}
	return p, nil
}

func (r *PostRepository) Create(ctx context.Context, post *Post) error {
	query := `
		INSERT INTO posts (id, title, slug, description, picture, username, categories, created_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		post.ID, post.Title, post.Slug, post.Description, post.Picture, post.Username,
		pq.Array(post.Categories), post.CreatedDate,
	)
	if err != nil {
		return postConflict(err)
	}

	return nil
}

func (r *PostRepository) GetByID(ctx context.Context, id uuid.UUID) (*Post, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return post, nil
}

// GetBySlug returns the post with the given slug. Slugs are unique.
func (r *PostRepository) GetBySlug(ctx context.Context, slug string) (*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE slug = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return post, nil
}

// List returns one page of posts and the total number matching the filter.
func (r *PostRepository) List(ctx context.Context, filter PostFilter) ([]Post, int, error) {
	// Window count avoids a second round trip for the common case.
	query := `
		SELECT ` + postColumns + `, COUNT(*) OVER() AS total
		FROM posts
		WHERE ($1::text = '' OR $1 = ANY(categories))
		ORDER BY created_date DESC, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, filter.Category, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	posts := []Post{}
	var total int
	for rows.Next() {
		p, err := scanPost(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// Past the last page the window count is unavailable.
	if len(posts) == 0 && filter.Offset > 0 {
		countQuery := `SELECT COUNT(*) FROM posts WHERE ($1::text = '' OR $1 = ANY(categories))`
		if err := r.db.QueryRowContext(ctx, countQuery, filter.Category).Scan(&total); err != nil {
			return nil, 0, err
		}
	}

	return posts, total, nil
}

// Update rewrites the mutable fields of post.
func (r *PostRepository) Update(ctx context.Context, post *Post) error {
	query := `
		UPDATE posts
		SET title = $1, slug = $2, description = $3, picture = $4, categories = $5
		WHERE id = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		post.Title, post.Slug, post.Description, post.Picture, pq.Array(post.Categories), post.ID,
	)
	if err != nil {
		return postConflict(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrPostNotFound
	}

	return nil
}

// Delete removes a post; its comments go with it.
func (r *PostRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrPostNotFound
	}

	return nil
}
