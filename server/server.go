package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nicolagi/blogd/posts"
	"github.com/nicolagi/blogd/storage"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultMaxBodySize bounds request bodies for saves and verifications.
	DefaultMaxBodySize = 10 << 20

	indexFile = "index.html"

	postsPath  = "/blog_posts.json"
	savePath   = "/save_posts"
	verifyPath = "/verify_password"

	shutdownTimeout = 5 * time.Second
)

type Option func(*options)

type options struct {
	address     string
	root        string
	posts       *posts.Store
	maxBodySize int64
}

func WithAddress(value string) Option {
	return func(o *options) {
		o.address = value
	}
}

// WithRoot sets the directory static files are served from.
func WithRoot(value string) Option {
	return func(o *options) {
		o.root = value
	}
}

// WithPosts sets the posts store. By default posts are kept, ungated, in
// blog_posts.json under the root directory.
func WithPosts(value *posts.Store) Option {
	return func(o *options) {
		o.posts = value
	}
}

func WithMaxBodySize(value int64) Option {
	return func(o *options) {
		o.maxBodySize = value
	}
}

// Server serves static files and the posts document over HTTP.
type Server struct {
	opts options
	mux  *http.ServeMux
	ln   net.Listener
	srv  *http.Server
}

func New(opts ...Option) *Server {
	s := &Server{}
	s.opts.address = ":5000"
	s.opts.root = "."
	s.opts.maxBodySize = DefaultMaxBodySize
	for _, o := range opts {
		o(&s.opts)
	}
	if s.opts.posts == nil {
		s.opts.posts = posts.New(storage.NewDiskStore(s.opts.root), posts.DefaultKey)
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/", s.handleStatic)
	s.mux.HandleFunc(postsPath, s.handlePosts)
	s.mux.HandleFunc(savePath, s.handleSave)
	// Without a password there is nothing to verify, and the path is left to
	// the static handler.
	if s.opts.posts.Gated() {
		s.mux.HandleFunc(verifyPath, s.handleVerify)
	}
	s.srv = &http.Server{Handler: s.mux}
	return s
}

// Handler returns the handler serving all of the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Listen() (addr string, err error) {
	s.ln, err = net.Listen("tcp", s.opts.address)
	if err != nil {
		return
	}
	addr = s.ln.Addr().String()
	return
}

// Serve serves requests on the listener set up by Listen. It returns nil
// (some time after) Shutdown is called.
func (s *Server) Serve() error {
	err := s.srv.Serve(s.ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits a bounded time for
// requests in flight.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func requestLogger(r *http.Request) *log.Entry {
	return log.WithFields(log.Fields{
		"op":     r.Method,
		"path":   r.URL.Path,
		"remote": r.RemoteAddr,
	})
}

func reply(w http.ResponseWriter, logger *log.Entry, status int, contentType string, body []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if _, err := w.Write(body); err != nil {
		logger.WithField("err", err).Error("Failed writing response")
	}
}

func allowed(w http.ResponseWriter, r *http.Request, logger *log.Entry, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	logger.Warn("Method not allowed")
	w.Header().Set("Allow", strings.Join(methods, ", "))
	reply(w, logger, http.StatusMethodNotAllowed, textPlain, []byte(http.StatusText(http.StatusMethodNotAllowed)+"\n"))
	return false
}
