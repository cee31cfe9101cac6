package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrCommentNotFound = errors.New("comment not found")

type Comment struct {
	ID     uuid.UUID
	PostID uuid.UUID
	// Name is the commenter's username.
	Name string
	Text string
	Date time.Time
}

type CommentRepository struct {
	db *DB
}

func NewCommentRepository(db *DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create inserts a comment. A missing parent post yields ErrPostNotFound.
func (r *CommentRepository) Create(ctx context.Context, c *Comment) error {
	query := `
		INSERT INTO comments (id, post_id, name, text, date)
		SELECT $1, id, $3, $4, $5 FROM posts WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, c.ID, c.PostID, c.Name, c.Text, c.Date)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPostNotFound
	}

	return nil
}

func (r *CommentRepository) GetByID(ctx context.Context, id uuid.UUID) (*Comment, error) {
	query := `SELECT id, post_id, name, text, date FROM comments WHERE id = $1`

	c := &Comment{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.PostID, &c.Name, &c.Text, &c.Date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCommentNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListByPost returns a post's comments, newest first.
func (r *CommentRepository) ListByPost(ctx context.Context, postID uuid.UUID) ([]Comment, error) {
	query := `
		SELECT id, post_id, name, text, date
		FROM comments
		WHERE post_id = $1
		ORDER BY date DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.Name, &c.Text, &c.Date); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}

	return comments, rows.Err()
}

func (r *CommentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCommentNotFound
	}

	return nil
}
