package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openblog/backend/internal/db"
	"github.com/openblog/backend/internal/logger"
)

const (
	EventCommentCreated = "comment_created"
	EventCommentDeleted = "comment_deleted"
)

var (
	ErrPostNotFound    = errors.New("post not found")
	ErrCommentNotFound = errors.New("comment not found")
	ErrNotCommenter    = errors.New("requester did not write this comment")
)

// FieldError names the input field a validation failure refers to.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Message }

type Store interface {
	Create(ctx context.Context, c *db.Comment) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Comment, error)
	ListByPost(ctx context.Context, postID uuid.UUID) ([]db.Comment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Publisher fans comment events out to live subscribers of a post.
type Publisher interface {
	Publish(postID string, event any)
}

// View is the JSON shape of a comment.
type View struct {
	ID       string    `json:"_id"`
	Name     string    `json:"name"`
	PostID   string    `json:"postId"`
	Date     time.Time `json:"date"`
	Comments string    `json:"comments"`
}

// Event is what live subscribers receive.
type Event struct {
	Type    string `json:"type"`
	PostID  string `json:"postId"`
	Comment *View  `json:"comment"`
}

func toView(c *db.Comment) *View {
	return &View{
		ID:       c.ID.String(),
		Name:     c.Name,
		PostID:   c.PostID.String(),
		Date:     c.Date,
		Comments: c.Text,
	}
}

type Service struct {
	store     Store
	publisher Publisher
	now       func() time.Time
	log       *logger.Logger
}

// NewService creates the comment service. publisher may be nil.
func NewService(store Store, publisher Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		now:       time.Now,
		log:       log.WithComponent("comments"),
	}
}

func (s *Service) publish(eventType string, c *View) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(c.PostID, &Event{Type: eventType, PostID: c.PostID, Comment: c})
}

// Create adds a comment by commenter to a post. A zero date means now.
func (s *Service) Create(ctx context.Context, commenter, postID, text string, date time.Time) (*View, error) {
	if strings.TrimSpace(postID) == "" {
		return nil, &FieldError{Field: "postId", Message: "postId is required"}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &FieldError{Field: "comments", Message: "comments is required"}
	}

	pid, err := uuid.Parse(strings.TrimSpace(postID))
	if err != nil {
		return nil, ErrPostNotFound
	}
	if date.IsZero() {
		date = s.now()
	}

	c := &db.Comment{
		ID:     uuid.New(),
		PostID: pid,
		Name:   commenter,
		Text:   text,
		Date:   date.UTC(),
	}
	if err := s.store.Create(ctx, c); err != nil {
		if errors.Is(err, db.ErrPostNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("create comment: %w", err)
	}

	view := toView(c)
	s.publish(EventCommentCreated, view)
	s.log.Debug(ctx, "comment created", map[string]any{"comment_id": view.ID, "post_id": view.PostID})
	return view, nil
}

// List returns a post's comments, newest first. An unknown post has none.
func (s *Service) List(ctx context.Context, postID string) ([]*View, error) {
	pid, err := uuid.Parse(strings.TrimSpace(postID))
	if err != nil {
		return nil, ErrPostNotFound
	}

	comments, err := s.store.ListByPost(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	views := make([]*View, 0, len(comments))
	for i := range comments {
		views = append(views, toView(&comments[i]))
	}
	return views, nil
}

// Delete removes a comment. Only the commenter may delete it.
func (s *Service) Delete(ctx context.Context, requester, id string) error {
	cid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return ErrCommentNotFound
	}

	c, err := s.store.GetByID(ctx, cid)
	if errors.Is(err, db.ErrCommentNotFound) {
		return ErrCommentNotFound
	}
	if err != nil {
		return fmt.Errorf("get comment %s: %w", id, err)
	}
	if c.Name != requester {
		return ErrNotCommenter
	}

	if err := s.store.Delete(ctx, cid); err != nil {
		if errors.Is(err, db.ErrCommentNotFound) {
			return ErrCommentNotFound
		}
		return fmt.Errorf("delete comment %s: %w", id, err)
	}

	s.publish(EventCommentDeleted, toView(c))
	return nil
}
