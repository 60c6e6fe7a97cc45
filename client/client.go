// Package client talks to a blog server over HTTP.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrUnauthorized is returned when the server rejects the password.
	ErrUnauthorized = errors.New("unauthorized")
)

type options struct {
	httpClient *http.Client
}

type Option func(*options)

func WithHTTPClient(value *http.Client) Option {
	return func(o *options) {
		o.httpClient = value
	}
}

// Client calls a blog server's posts endpoints.
type Client struct {
	base string
	opts options
}

// New returns a client for the server at address, either host:port or a
// URL with http or https scheme.
func New(address string, opts ...Option) *Client {
	c := &Client{base: strings.TrimRight(address, "/")}
	if !strings.Contains(c.base, "://") {
		c.base = "http://" + c.base
	}
	c.opts.httpClient = http.DefaultClient
	for _, o := range opts {
		o(&c.opts)
	}
	return c
}

// Posts returns the posts document.
func (c *Client) Posts() (json.RawMessage, error) {
	status, body, err := c.do(http.MethodGet, "/blog_posts.json", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(status, body)
	}
	return body, nil
}

// SavePosts replaces the posts document with doc, which must be a JSON
// object. A non-empty password is sent along as the document's password
// member.
func (c *Client) SavePosts(doc []byte, password string) error {
	payload, err := withPassword(doc, password)
	if err != nil {
		return err
	}
	status, body, err := c.do(http.MethodPost, "/save_posts", payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return statusError(status, body)
	}
	return nil
}

// VerifyPassword asks the server whether password would be accepted for
// saves.
func (c *Client) VerifyPassword(password string) (bool, error) {
	payload, err := json.Marshal(struct {
		Password string `json:"password"`
	}{password})
	if err != nil {
		return false, err
	}
	status, body, err := c.do(http.MethodPost, "/verify_password", payload)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK, http.StatusUnauthorized:
		result := gjson.GetBytes(body, "success")
		if result.Type != gjson.True && result.Type != gjson.False {
			return false, fmt.Errorf("unexpected response %.40q", body)
		}
		return result.Bool(), nil
	default:
		return false, statusError(status, body)
	}
}

func (c *Client) do(method, path string, payload []byte) (status int, body []byte, err error) {
	var request *http.Request
	if payload == nil {
		request, err = http.NewRequest(method, c.base+path, nil)
	} else {
		request, err = http.NewRequest(method, c.base+path, bytes.NewReader(payload))
	}
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	response, err := c.opts.httpClient.Do(request)
	if response != nil && response.Body != nil {
		defer func() {
			_ = response.Body.Close()
		}()
	}
	if err != nil {
		return 0, nil, err
	}
	body, err = ioutil.ReadAll(response.Body)
	if err != nil {
		return 0, nil, err
	}
	return response.StatusCode, body, nil
}

func statusError(status int, body []byte) error {
	if status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		text = http.StatusText(status)
	}
	return fmt.Errorf("%d: %s", status, text)
}

// withPassword adds the password member to doc, replacing any there. Other
// members are copied as they are, in order.
func withPassword(doc []byte, password string) ([]byte, error) {
	parsed := gjson.ParseBytes(doc)
	if !gjson.ValidBytes(doc) || !parsed.IsObject() {
		return nil, errors.New("posts document: not a JSON object")
	}
	if password == "" {
		return doc, nil
	}
	quoted, err := json.Marshal(password)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	parsed.ForEach(func(key, value gjson.Result) bool {
		if key.String() == "password" {
			return true
		}
		buf.WriteString(key.Raw)
		buf.WriteByte(':')
		buf.WriteString(value.Raw)
		buf.WriteByte(',')
		return true
	})
	buf.WriteString(`"password":`)
	buf.Write(quoted)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
