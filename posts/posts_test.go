package posts_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/nicolagi/blogd/posts"
	"github.com/nicolagi/blogd/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore fails every call with err.
type failingStore struct {
	err error
}

func (s failingStore) Put(string, []byte) error {
	return s.err
}

func (s failingStore) Get(string) ([]byte, error) {
	return nil, s.err
}

func TestGatedStore(t *testing.T) {
	newStore := func() (*posts.Store, *storage.InMemoryStore) {
		backend := storage.NewInMemoryStore()
		return posts.New(backend, posts.DefaultKey, posts.WithPassword("s3cret")), backend
	}
	t.Run("load before any save returns an empty object", func(t *testing.T) {
		store, _ := newStore()
		doc, err := store.Load()
		require.Nil(t, err)
		assert.JSONEq(t, `{}`, string(doc))
	})
	t.Run("save then load returns the posts without the password", func(t *testing.T) {
		store, _ := newStore()
		require.Nil(t, store.Save([]byte(`{"2024-05-01":"<h3>May</h3>","password":"s3cret","tags":["a","b"]}`)))
		doc, err := store.Load()
		require.Nil(t, err)
		assert.JSONEq(t, `{"2024-05-01":"<h3>May</h3>","tags":["a","b"]}`, string(doc))
	})
	t.Run("wrong password leaves the stored document unchanged", func(t *testing.T) {
		store, _ := newStore()
		require.Nil(t, store.Save([]byte(`{"a":1,"password":"s3cret"}`)))
		err := store.Save([]byte(`{"b":2,"password":"guess"}`))
		assert.True(t, errors.Is(err, posts.ErrUnauthorized))
		doc, err := store.Load()
		require.Nil(t, err)
		assert.JSONEq(t, `{"a":1}`, string(doc))
	})
	t.Run("missing or non-string password is unauthorized", func(t *testing.T) {
		store, backend := newStore()
		for _, body := range []string{`{"a":1}`, `{"a":1,"password":1234}`, `{"a":1,"password":null}`} {
			err := store.Save([]byte(body))
			assert.True(t, errors.Is(err, posts.ErrUnauthorized), "body %s", body)
		}
		_, err := backend.Get(posts.DefaultKey)
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
	t.Run("second save fully replaces the first", func(t *testing.T) {
		store, _ := newStore()
		require.Nil(t, store.Save([]byte(`{"2024-01-01":"one","2024-01-02":"two","password":"s3cret"}`)))
		require.Nil(t, store.Save([]byte(`{"2024-02-01":"three","password":"s3cret"}`)))
		doc, err := store.Load()
		require.Nil(t, err)
		assert.JSONEq(t, `{"2024-02-01":"three"}`, string(doc))
	})
	t.Run("members keep their order and non-ASCII text stays unescaped", func(t *testing.T) {
		store, backend := newStore()
		require.Nil(t, store.Save([]byte(`{"zeta":"最后","password":"s3cret","alpha":{"x":[1,{}]},"mid":"<p>a & b</p>"}`)))
		stored, err := backend.Get(posts.DefaultKey)
		require.Nil(t, err)
		want := "{\n" +
			"  \"zeta\": \"最后\",\n" +
			"  \"alpha\": {\n" +
			"    \"x\": [\n" +
			"      1,\n" +
			"      {}\n" +
			"    ]\n" +
			"  },\n" +
			"  \"mid\": \"<p>a & b</p>\"\n" +
			"}"
		assert.Equal(t, want, string(stored))
	})
	t.Run("only the top-level password is stripped", func(t *testing.T) {
		store, _ := newStore()
		require.Nil(t, store.Save([]byte(`{"password":"s3cret","nested":{"password":"kept"}}`)))
		doc, err := store.Load()
		require.Nil(t, err)
		assert.JSONEq(t, `{"nested":{"password":"kept"}}`, string(doc))
	})
	t.Run("document made only of the password is stored as an empty object", func(t *testing.T) {
		store, backend := newStore()
		require.Nil(t, store.Save([]byte(`{"password":"s3cret"}`)))
		stored, err := backend.Get(posts.DefaultKey)
		require.Nil(t, err)
		assert.Equal(t, "{}", string(stored))
	})
	t.Run("body that is not a JSON object is malformed", func(t *testing.T) {
		store, _ := newStore()
		for _, body := range []string{``, `not json`, `[1,2]`, `"password"`, `{"a":`, "{\"a\":\"\xff\xfe\",\"password\":\"s3cret\"}"} {
			err := store.Save([]byte(body))
			assert.True(t, errors.Is(err, posts.ErrMalformed), "body %q", body)
		}
	})
	t.Run("verify accepts only the exact password", func(t *testing.T) {
		store, _ := newStore()
		assert.True(t, store.Verify("s3cret"))
		for _, p := range []string{"", "S3CRET", "s3cret ", "s3cre"} {
			assert.False(t, store.Verify(p), "password %q", p)
		}
	})
}

func TestOpenStore(t *testing.T) {
	t.Run("saves are stored verbatim, password included", func(t *testing.T) {
		store := posts.New(storage.NewInMemoryStore(), posts.DefaultKey)
		assert.False(t, store.Gated())
		require.Nil(t, store.Save([]byte(`{"a":"b","password":"whatever"}`)))
		doc, err := store.Load()
		require.Nil(t, err)
		assert.JSONEq(t, `{"a":"b","password":"whatever"}`, string(doc))
	})
	t.Run("verify always fails", func(t *testing.T) {
		store := posts.New(storage.NewInMemoryStore(), posts.DefaultKey)
		assert.False(t, store.Verify(""))
		assert.False(t, store.Verify("anything"))
	})
}

func TestStoreFailures(t *testing.T) {
	t.Run("malformed stored document fails to load", func(t *testing.T) {
		backend := storage.NewInMemoryStore()
		require.Nil(t, backend.Put(posts.DefaultKey, []byte(`{"truncated":`)))
		_, err := posts.New(backend, posts.DefaultKey).Load()
		assert.True(t, errors.Is(err, posts.ErrMalformed))
	})
	t.Run("stored document with invalid UTF-8 fails to load", func(t *testing.T) {
		backend := storage.NewInMemoryStore()
		require.Nil(t, backend.Put(posts.DefaultKey, []byte("{\"a\":\"\xff\xfe\"}")))
		_, err := posts.New(backend, posts.DefaultKey).Load()
		assert.True(t, errors.Is(err, posts.ErrMalformed))
	})
	t.Run("storage errors propagate", func(t *testing.T) {
		boom := errors.New("disk on fire")
		store := posts.New(failingStore{err: boom}, posts.DefaultKey)
		_, err := store.Load()
		assert.True(t, errors.Is(err, boom))
		err = store.Save([]byte(`{}`))
		assert.True(t, errors.Is(err, boom))
	})
	t.Run("loaded document is valid JSON", func(t *testing.T) {
		store := posts.New(storage.NewInMemoryStore(), posts.DefaultKey)
		require.Nil(t, store.Save([]byte(`{"k":"v"}`)))
		doc, err := store.Load()
		require.Nil(t, err)
		assert.True(t, json.Valid(doc))
	})
}
