// Command blogctl talks to the blog API from a terminal. The session is
// kept in a file between invocations.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/openblog/backend/internal/auth"
	"github.com/openblog/backend/internal/client"
	"github.com/openblog/backend/internal/comments"
	"github.com/openblog/backend/internal/logger"
	"github.com/openblog/backend/internal/posts"
)

const usage = `usage: blogctl [-api URL] <command> [flags]

commands:
  signup   -name NAME -username USER -password PASS
  login    -username USER -password PASS
  logout
  posts    [-category C] [-page N] [-limit N]
  post     ID_OR_SLUG
  create   -title T -description D [-picture URL] [-categories a,b]
  upload   FILE
  comment  -post ID -text TEXT
  comments POST_ID
`

type savedSession struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func sessionPath() string {
	if p := os.Getenv("BLOGCTL_SESSION"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "blogctl", "session.json")
}

func loadSession(path string) *client.Session {
	s := client.NewSession()
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var saved savedSession
	if json.Unmarshal(data, &saved) == nil {
		s.Set(saved.AccessToken, saved.RefreshToken)
	}
	return s
}

func saveSession(path string, s *client.Session) error {
	if !s.Authenticated() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	data, err := json.Marshal(savedSession{AccessToken: s.AccessToken(), RefreshToken: s.RefreshToken()})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	godotenv.Load()

	defaultAPI := os.Getenv("API_URL")
	if defaultAPI == "" {
		defaultAPI = "http://localhost:8000"
	}

	global := flag.NewFlagSet("blogctl", flag.ExitOnError)
	apiURL := global.String("api", defaultAPI, "API base URL")
	verbose := global.Bool("v", false, "log client activity to stderr")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	global.Parse(os.Args[1:])

	if global.NArg() == 0 {
		global.Usage()
		os.Exit(2)
	}

	level := logger.LevelError
	if *verbose {
		level = logger.LevelDebug
	}
	log := logger.New(&logger.Config{Output: os.Stderr, Level: level, Format: "console"})

	path := sessionPath()
	c := client.New(&client.Config{
		BaseURL: *apiURL,
		Session: loadSession(path),
		OnSessionExpired: func() {
			fmt.Fprintln(os.Stderr, "session expired, please log in again")
		},
		Log: log,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	err := run(ctx, c, global.Arg(0), global.Args()[1:])
	cancel()

	if saveErr := saveSession(path, c.Session()); saveErr != nil {
		fmt.Fprintf(os.Stderr, "failed to save session: %v\n", saveErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client.Client, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)

	switch cmd {
	case "signup":
		name := fs.String("name", "", "display name")
		username := fs.String("username", "", "username")
		password := fs.String("password", "", "password")
		fs.Parse(args)
		if err := c.Signup(ctx, auth.SignupRequest{Name: *name, Username: *username, Password: *password}); err != nil {
			return err
		}
		fmt.Println("signed up, now run: blogctl login")
		return nil

	case "login":
		username := fs.String("username", "", "username")
		password := fs.String("password", "", "password")
		fs.Parse(args)
		resp, err := c.Login(ctx, *username, *password)
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s (%s)\n", resp.Username, resp.Name)
		return nil

	case "logout":
		return c.Logout(ctx)

	case "posts":
		category := fs.String("category", "", "only posts in this category")
		page := fs.Int("page", 0, "page number")
		limit := fs.Int("limit", 0, "posts per page")
		fs.Parse(args)
		result, err := c.GetAllPosts(ctx, client.ListPostsParams{Category: *category, Page: *page, Limit: *limit})
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, result)

	case "post":
		fs.Parse(args)
		if fs.NArg() != 1 {
			return errors.New("post takes one id or slug")
		}
		post, err := c.GetPostByID(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, post)

	case "create":
		title := fs.String("title", "", "post title")
		description := fs.String("description", "", "post body")
		picture := fs.String("picture", "", "image URL from blogctl upload")
		categories := fs.String("categories", "", "comma separated categories")
		fs.Parse(args)
		req := posts.CreatePostRequest{Title: *title, Description: *description, Picture: *picture}
		if *categories != "" {
			req.Categories = strings.Split(*categories, ",")
		}
		return c.CreatePost(ctx, req)

	case "upload":
		fs.Parse(args)
		if fs.NArg() != 1 {
			return errors.New("upload takes one file")
		}
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		fileURL, err := c.UploadFile(ctx, filepath.Base(f.Name()), f)
		if err != nil {
			return err
		}
		fmt.Println(fileURL)
		return nil

	case "comment":
		postID := fs.String("post", "", "post id")
		text := fs.String("text", "", "comment text")
		fs.Parse(args)
		return c.NewComment(ctx, comments.NewCommentRequest{PostID: *postID, Comments: *text})

	case "comments":
		fs.Parse(args)
		if fs.NArg() != 1 {
			return errors.New("comments takes one post id")
		}
		list, err := c.GetAllComments(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, list)
	}

	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}
