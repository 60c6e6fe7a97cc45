package storage

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type s3Options struct {
	region            string
	profile           string
	credentials       *credentials.Credentials
	endpoint          string
	pathStyle         bool
	prefix            string
	requestsPerSecond float64
}

// S3Option configures an S3 store.
type S3Option func(*s3Options)

func WithRegion(value string) S3Option {
	return func(o *s3Options) {
		o.region = value
	}
}

// WithProfile selects a profile from the shared credentials file.
func WithProfile(value string) S3Option {
	return func(o *s3Options) {
		o.profile = value
	}
}

// WithStaticCredentials bypasses the shared credentials file.
func WithStaticCredentials(id, secret string) S3Option {
	return func(o *s3Options) {
		o.credentials = credentials.NewStaticCredentials(id, secret, "")
	}
}

// WithEndpoint points the client at an S3-compatible service. It implies
// path-style addressing.
func WithEndpoint(value string) S3Option {
	return func(o *s3Options) {
		o.endpoint = value
		o.pathStyle = true
	}
}

// WithPrefix prepends value to every object key.
func WithPrefix(value string) S3Option {
	return func(o *s3Options) {
		o.prefix = value
	}
}

// WithRequestsPerSecond throttles gets and puts on our side. Zero or less
// means no throttling.
func WithRequestsPerSecond(value float64) S3Option {
	return func(o *s3Options) {
		o.requestsPerSecond = value
	}
}

// S3 is an implementation of Store backed by AWS S3.
type S3 struct {
	bucket  string
	opts    s3Options
	limiter *rate.Limiter

	mu     sync.Mutex
	client *s3.S3
}

func NewS3(bucket string, opts ...S3Option) *S3 {
	s := &S3{bucket: bucket}
	s.opts.region = "us-east-1"
	for _, o := range opts {
		o(&s.opts)
	}
	limit := rate.Inf
	if s.opts.requestsPerSecond > 0 {
		limit = rate.Limit(s.opts.requestsPerSecond)
	}
	s.limiter = rate.NewLimiter(limit, 1)
	return s
}

func (s *S3) Get(key string) (value []byte, err error) {
	client, err := s.ensureClient()
	if err != nil {
		return nil, err
	}
	objectKey := s.objectKey(key)
	time.Sleep(s.limiter.Reserve().Delay())
	output, err := client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if rfErr, ok := err.(awserr.RequestFailure); ok {
			if rfErr.StatusCode() == http.StatusNotFound {
				return nil, fmt.Errorf("%q: %w", key, ErrNotFound)
			}
		}
		return nil, err
	}
	defer func() {
		if err := output.Body.Close(); err != nil {
			log.WithFields(log.Fields{
				"op":  "get",
				"key": objectKey,
			}).Warning("Could not close response body")
		}
	}()
	value, err = ioutil.ReadAll(output.Body)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (s *S3) Put(key string, value []byte) (err error) {
	client, err := s.ensureClient()
	if err != nil {
		return err
	}
	time.Sleep(s.limiter.Reserve().Delay())
	_, err = client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(dup(value)),
		ContentType: aws.String("application/json"),
	})
	return err
}

func (s *S3) objectKey(key string) string {
	if s.opts.prefix == "" {
		return key
	}
	return path.Join(s.opts.prefix, key)
}

func (s *S3) ensureClient() (*s3.S3, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	config := &aws.Config{
		Region:      aws.String(s.opts.region),
		Credentials: s.opts.credentials,
	}
	if config.Credentials == nil {
		config.Credentials = credentials.NewSharedCredentials("", s.opts.profile)
	}
	if s.opts.endpoint != "" {
		config.Endpoint = aws.String(s.opts.endpoint)
		config.S3ForcePathStyle = aws.Bool(s.opts.pathStyle)
	}
	sess, err := session.NewSession(config)
	if err != nil {
		return nil, err
	}
	s.client = s3.New(sess)
	return s.client, nil
}
