// Package posts persists the posts document: a single JSON object holding all
// blog posts, read and written whole through a storage.Store under one key.
//
// The server does not interpret the document's members. Writes can be gated
// by a shared password, sent by clients as the top-level "password" member of
// the document itself and stripped before the document is stored.
package posts

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/nicolagi/blogd/storage"
	"github.com/tidwall/gjson"
)

// DefaultKey is the key, or file name for disk storage, of the posts document.
const DefaultKey = "blog_posts.json"

const passwordMember = "password"

var (
	// ErrUnauthorized is returned by Save when the password member does not
	// match the configured password.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformed indicates a document that is not a JSON object.
	ErrMalformed = errors.New("not a JSON object")
)

var emptyDocument = json.RawMessage("{}")

type Option func(*options)

type options struct {
	gated    bool
	password string
}

// WithPassword gates saves behind the given password. Without this option
// every save is accepted and stored verbatim.
func WithPassword(value string) Option {
	return func(o *options) {
		o.gated = true
		o.password = value
	}
}

// Store loads and saves the posts document. It does no locking of its own:
// concurrent saves are last-writer-wins, as far as the underlying store goes.
type Store struct {
	store storage.Store
	key   string
	opts  options
}

func New(store storage.Store, key string, opts ...Option) *Store {
	s := &Store{
		store: store,
		key:   key,
	}
	for _, o := range opts {
		o(&s.opts)
	}
	return s
}

// Gated reports whether saves require a password.
func (s *Store) Gated() bool {
	return s.opts.gated
}

// Load returns the stored document, or an empty object if nothing was saved
// yet.
func (s *Store) Load() (json.RawMessage, error) {
	value, err := s.store.Get(s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return dupDocument(emptyDocument), nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not load posts: %w", err)
	}
	if !isObject(value) {
		return nil, fmt.Errorf("stored posts %q: %w", s.key, ErrMalformed)
	}
	return value, nil
}

// Save replaces the stored document with body. If the store is gated, body
// must carry the correct password, which is removed before writing.
func (s *Store) Save(body []byte) error {
	if !isObject(body) {
		return fmt.Errorf("request body: %w", ErrMalformed)
	}
	doc := gjson.ParseBytes(body)
	if s.opts.gated {
		password, ok := passwordOf(doc)
		if !ok || !s.matches(password) {
			return ErrUnauthorized
		}
	}
	value, err := encode(doc, s.opts.gated)
	if err != nil {
		return err
	}
	if err := s.store.Put(s.key, value); err != nil {
		return fmt.Errorf("could not save posts: %w", err)
	}
	return nil
}

// Verify reports whether password is the configured one. It is always false
// for stores that are not gated.
func (s *Store) Verify(password string) bool {
	return s.opts.gated && s.matches(password)
}

func (s *Store) matches(password string) bool {
	return subtle.ConstantTimeCompare([]byte(password), []byte(s.opts.password)) == 1
}

// JSON text must also be valid UTF-8, which gjson does not check.
func isObject(b []byte) bool {
	return utf8.Valid(b) && gjson.ValidBytes(b) && gjson.ParseBytes(b).IsObject()
}

// passwordOf finds the password member, which must be a string. If the
// member is repeated, the last one counts.
func passwordOf(doc gjson.Result) (password string, ok bool) {
	doc.ForEach(func(key, value gjson.Result) bool {
		if key.String() == passwordMember {
			password, ok = value.Str, value.Type == gjson.String
		}
		return true
	})
	return
}

// encode writes the members of doc in the order they came, indented by two
// spaces. Member names and values are copied as they were sent, so non-ASCII
// text stays unescaped.
func encode(doc gjson.Result, stripPassword bool) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	n := 0
	buf.WriteByte('{')
	doc.ForEach(func(key, value gjson.Result) bool {
		if stripPassword && key.String() == passwordMember {
			return true
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n  ")
		buf.WriteString(key.Raw)
		buf.WriteString(": ")
		if err = json.Indent(&buf, []byte(value.Raw), "  ", "  "); err != nil {
			err = fmt.Errorf("member %s: %w", key.Raw, err)
			return false
		}
		n++
		return true
	})
	if err != nil {
		return nil, err
	}
	if n > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func dupDocument(doc json.RawMessage) json.RawMessage {
	c := make(json.RawMessage, len(doc))
	copy(c, doc)
	return c
}
