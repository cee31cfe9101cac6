// Package client is a typed Go client for the blog API. It keeps the
// session tokens, attaches them to every call, and refreshes an expired
// access token once before giving up on the session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openblog/backend/internal/auth"
	"github.com/openblog/backend/internal/comments"
	apperrors "github.com/openblog/backend/internal/errors"
	"github.com/openblog/backend/internal/logger"
	"github.com/openblog/backend/internal/posts"
)

const (
	requestTimeout = 10 * time.Second
	maxErrorBody   = 64 << 10
)

// ErrSessionExpired is returned when a protected call was rejected and the
// refresh token could not mint a new access token. The session has been
// cleared by then.
var ErrSessionExpired = errors.New("session expired")

// APIError is a non-2xx response from the API.
type APIError struct {
	Status int
	Msg    string
	Field  string
	Code   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("api error %d: %s (field %s)", e.Status, e.Msg, e.Field)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Msg)
}

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	// Session defaults to a fresh in-memory session.
	Session *Session
	// OnSessionExpired runs after the session is cleared because a refresh
	// failed. A UI would send the user back to its login view here.
	OnSessionExpired func()
	Log              *logger.Logger
}

type Client struct {
	baseURL          string
	httpClient       *http.Client
	session          *Session
	onSessionExpired func()
	log              *logger.Logger

	// serializes refreshes so concurrent rejected calls trigger one /token call
	refreshMu sync.Mutex
}

func New(cfg *Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	session := cfg.Session
	if session == nil {
		session = NewSession()
	}
	log := cfg.Log
	if log == nil {
		log = logger.Default()
	}
	return &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:       httpClient,
		session:          session,
		onSessionExpired: cfg.OnSessionExpired,
		log:              log.WithComponent("client"),
	}
}

func (c *Client) Session() *Session {
	return c.session
}

// request describes one API call. body is already encoded so that the call
// can be replayed after a refresh.
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	protected   bool
}

func jsonRequest(method, path string, payload any, protected bool) (*request, error) {
	req := &request{method: method, path: path, protected: protected}
	if payload == nil {
		return req, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req.body = data
	req.contentType = "application/json"
	return req, nil
}

func (c *Client) send(ctx context.Context, r *request, authorization string) (*http.Response, error) {
	endpoint := c.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	return resp, nil
}

// tokenRejected reports whether the server refused the access token itself.
// A 403 for any other reason, such as editing another user's post, is final.
func (e *APIError) tokenRejected() bool {
	switch e.Status {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
		return e.Code == apperrors.CodeInvalidToken
	}
	return false
}

// do sends r and decodes a 2xx body into out. A protected call whose access
// token was rejected is retried once after refreshing it.
func (c *Client) do(ctx context.Context, r *request, out any) error {
	sent := c.session.AccessToken()
	resp, err := c.send(ctx, r, sent)
	if err != nil {
		return err
	}

	if r.protected && c.session.RefreshToken() != "" &&
		(resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		rejection := decodeResponse(resp, nil)
		resp.Body.Close()

		var apiErr *APIError
		if !errors.As(rejection, &apiErr) || !apiErr.tokenRejected() {
			return rejection
		}
		if err := c.refreshAfter(ctx, sent); err != nil {
			return err
		}
		if resp, err = c.send(ctx, r, c.session.AccessToken()); err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Msg   string `json:"msg"`
			Field string `json:"field"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body); err == nil {
			apiErr.Msg, apiErr.Field, apiErr.Code = body.Msg, body.Field, body.Code
		}
		if apiErr.Msg == "" {
			apiErr.Msg = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// refreshAfter refreshes unless another call already replaced the access
// token that was rejected.
func (c *Client) refreshAfter(ctx context.Context, stale string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current := c.session.AccessToken(); current != "" && current != stale {
		return nil
	}
	_, err := c.refresh(ctx)
	return err
}

// RefreshAccessToken exchanges the stored refresh token for a new access
// token. On failure the session is expired.
func (c *Client) RefreshAccessToken(ctx context.Context) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refresh(ctx)
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	refreshToken := strings.TrimPrefix(c.session.RefreshToken(), bearerPrefix)
	if refreshToken == "" {
		return "", c.expire(ctx, errors.New("no refresh token"))
	}

	r, err := jsonRequest(http.MethodPost, "/token", auth.RefreshRequest{RefreshToken: refreshToken}, false)
	if err != nil {
		return "", err
	}
	var out auth.RefreshResponse
	if err := c.do(ctx, r, &out); err != nil {
		return "", c.expire(ctx, err)
	}
	if out.AccessToken == "" {
		return "", c.expire(ctx, errors.New("refresh returned no access token"))
	}

	c.session.SetAccessToken(out.AccessToken)
	c.log.Debug(ctx, "access token refreshed", map[string]any{"username": out.Username})
	return out.AccessToken, nil
}

func (c *Client) expire(ctx context.Context, cause error) error {
	c.session.Clear()
	c.log.Warn(ctx, "session expired", map[string]any{"error": cause.Error()})
	if c.onSessionExpired != nil {
		c.onSessionExpired()
	}
	return fmt.Errorf("%w: %w", ErrSessionExpired, cause)
}

func (c *Client) call(ctx context.Context, method, path string, payload any, protected bool, out any) error {
	r, err := jsonRequest(method, path, payload, protected)
	if err != nil {
		return err
	}
	return c.do(ctx, r, out)
}

func (c *Client) Signup(ctx context.Context, req auth.SignupRequest) error {
	return c.call(ctx, http.MethodPost, "/signup", req, false, nil)
}

// Login authenticates and stores the token pair in the session.
func (c *Client) Login(ctx context.Context, username, password string) (*auth.LoginResponse, error) {
	var out auth.LoginResponse
	err := c.call(ctx, http.MethodPost, "/login", auth.LoginRequest{Username: username, Password: password}, false, &out)
	if err != nil {
		return nil, err
	}
	c.session.Set(out.AccessToken, out.RefreshToken)
	c.session.setUser(out.Username, out.Name)
	return &out, nil
}

// Logout revokes the refresh token on the server and clears the session.
// The session is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	refreshToken := strings.TrimPrefix(c.session.RefreshToken(), bearerPrefix)
	defer c.session.Clear()
	if refreshToken == "" {
		return nil
	}
	return c.call(ctx, http.MethodPost, "/logout", auth.RefreshRequest{RefreshToken: refreshToken}, false, nil)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// UploadFile sends an image as the multipart field "file" and returns the
// URL the API serves it under.
func (c *Client) UploadFile(ctx context.Context, filename string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filename, err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	header.Set("Content-Type", http.DetectContentType(data))
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	r := &request{
		method:      http.MethodPost,
		path:        "/file/upload",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
		protected:   true,
	}
	var fileURL string
	if err := c.do(ctx, r, &fileURL); err != nil {
		return "", err
	}
	return fileURL, nil
}

func (c *Client) CreatePost(ctx context.Context, req posts.CreatePostRequest) error {
	return c.call(ctx, http.MethodPost, "/create", req, true, nil)
}

// ListPostsParams selects a page of posts. Zero values use the server
// defaults.
type ListPostsParams struct {
	Category string
	Page     int
	Limit    int
}

func (p ListPostsParams) values() url.Values {
	q := url.Values{}
	if p.Category != "" {
		q.Set("category", p.Category)
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	return q
}

func (c *Client) GetAllPosts(ctx context.Context, params ListPostsParams) (*posts.Page, error) {
	r := &request{method: http.MethodGet, path: "/posts", query: params.values(), protected: true}
	var out posts.Page
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPostByID accepts a post id or slug.
func (c *Client) GetPostByID(ctx context.Context, id string) (*posts.View, error) {
	var out posts.View
	if err := c.call(ctx, http.MethodGet, "/post/"+url.PathEscape(id), nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePost(ctx context.Context, id string, req posts.UpdatePostRequest) error {
	return c.call(ctx, http.MethodPut, "/update/"+url.PathEscape(id), req, true, nil)
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/delete/"+url.PathEscape(id), nil, true, nil)
}

func (c *Client) NewComment(ctx context.Context, req comments.NewCommentRequest) error {
	return c.call(ctx, http.MethodPost, "/comment/new", req, true, nil)
}

// GetAllComments lists the comments of a post, newest first.
func (c *Client) GetAllComments(ctx context.Context, postID string) ([]*comments.View, error) {
	var out []*comments.View
	if err := c.call(ctx, http.MethodGet, "/comments/"+url.PathEscape(postID), nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteComment(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/comment/delete/"+url.PathEscape(id), nil, true, nil)
}
