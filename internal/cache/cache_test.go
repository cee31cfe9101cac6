package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openblog/backend/internal/logger"
)

// respServer understands just enough of the redis protocol for the cache:
// PING, GET, SET and DEL. Anything else gets an error reply, which the
// client tolerates during its connection handshake.
type respServer struct {
	ln   net.Listener
	mu   sync.Mutex
	data map[string]string
}

func newRESPServer(t *testing.T) *respServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &respServer{ln: ln, data: map[string]string{}}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *respServer) addr() string { return s.ln.Addr().String() }

func (s *respServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "*") {
		return nil, fmt.Errorf("unexpected %q", line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		header, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(header[1:]))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func (s *respServer) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil || len(args) == 0 {
			return
		}
		fmt.Fprint(conn, s.reply(args))
	}
}

func (s *respServer) reply(args []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch strings.ToUpper(args[0]) {
	case "PING":
		return "+PONG\r\n"
	case "GET":
		v, ok := s.data[args[1]]
		if !ok {
			return "$-1\r\n"
		}
		return fmt.Sprintf("$%d\r\n%s\r\n", len(v), v)
	case "SET":
		s.data[args[1]] = args[2]
		return "+OK\r\n"
	case "DEL":
		n := 0
		for _, k := range args[1:] {
			if _, ok := s.data[k]; ok {
				delete(s.data, k)
				n++
			}
		}
		return fmt.Sprintf(":%d\r\n", n)
	}
	return "-ERR unknown command\r\n"
}

func (s *respServer) put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *respServer) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) IncCounter(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[name]++
}

func (m *countingMetrics) get(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

func quietLogger() *logger.Logger {
	return logger.New(&logger.Config{Output: io.Discard, Level: logger.LevelError})
}

type post struct {
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

func TestCache_JSONRoundTrip(t *testing.T) {
	srv := newRESPServer(t)
	metrics := &countingMetrics{}

	c, err := New(testContext(t), srv.addr(), quietLogger(), metrics)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	var got post
	if err := c.GetJSON(testContext(t), "post:hello", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss before set, got %v", err)
	}

	if err := c.SetJSON(testContext(t), "post:hello", post{Title: "Hello", Slug: "hello"}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	if err := c.GetJSON(testContext(t), "post:hello", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.Title != "Hello" || got.Slug != "hello" {
		t.Errorf("got %+v", got)
	}

	if err := c.Delete(testContext(t), "post:hello", "post:other"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if srv.has("post:hello") {
		t.Error("expected key to be deleted")
	}

	if metrics.get("cache_hits_total") != 1 || metrics.get("cache_misses_total") != 1 {
		t.Errorf("unexpected counters %v", metrics.counts)
	}
}

func TestCache_DropsUndecodableEntries(t *testing.T) {
	srv := newRESPServer(t)
	srv.put("post:broken", "{not json")

	c, err := New(testContext(t), srv.addr(), quietLogger(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	var got post
	if err := c.GetJSON(testContext(t), "post:broken", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
	if srv.has("post:broken") {
		t.Error("undecodable entry should be removed")
	}
}

func TestCache_DeleteNothing(t *testing.T) {
	c := NewWithClient(nil, quietLogger(), nil)
	if err := c.Delete(context.Background()); err != nil {
		t.Errorf("Delete with no keys should be a no-op, got %v", err)
	}
}

func TestNew_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := New(testContext(t), addr, quietLogger(), nil); err == nil {
		t.Fatal("expected an error for an unreachable redis")
	}
}
