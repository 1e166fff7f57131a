package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/yuya-takeyama/fs-manifest/pkg/manifest"
)

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 100 * time.Millisecond
	defaultMaxDelay   = 30 * time.Second

	manifestContentType = "application/x-ndjson"
)

// objectAPI is the part of *s3.Client used for reads
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// uploader is the part of *manager.Uploader used for writes
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Client reads and writes manifest objects with retry on throttling and 5xx errors
type Client struct {
	api        objectAPI
	uploader   uploader
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Options tunes the AWS side of a Client
type Options struct {
	Profile    string
	Region     string
	MaxRetries int
}

// LoadConfig loads the default AWS config with an optional profile and region
func LoadConfig(ctx context.Context, opts Options) (aws.Config, error) {
	var configOpts []func(*config.LoadOptions) error
	if opts.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// NewClient creates a Client from an AWS config
func NewClient(cfg aws.Config, opts Options) *Client {
	s3Client := s3.NewFromConfig(cfg)
	c := newClient(s3Client, manager.NewUploader(s3Client))
	if opts.MaxRetries > 0 {
		c.maxRetries = opts.MaxRetries
	}
	return c
}

func newClient(api objectAPI, up uploader) *Client {
	return &Client{
		api:        api,
		uploader:   up,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
	}
}

// Open streams the object body. Missing objects yield manifest.ErrInputNotFound.
func (c *Client) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := withRetry(ctx, c, func() (*s3.GetObjectOutput, error) {
		return c.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", manifest.ErrInputNotFound, FormatURI(bucket, key))
		}
		return nil, fmt.Errorf("get object %s: %w", FormatURI(bucket, key), err)
	}
	return out.Body, nil
}

// Exists reports whether the object is present
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := withRetry(ctx, c, func() (*s3.HeadObjectOutput, error) {
		return c.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head object %s: %w", FormatURI(bucket, key), err)
	}
	return true, nil
}

// Create returns a writer whose content is uploaded to the object. The
// upload completes, and its error is reported, on Close.
func (c *Client) Create(ctx context.Context, bucket, key string) io.WriteCloser {
	pr, pw := io.Pipe()
	w := &objectWriter{pw: pw, done: make(chan error, 1)}

	go func() {
		_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        pr,
			ContentType: aws.String(manifestContentType),
		})
		if err != nil {
			err = fmt.Errorf("upload %s: %w", FormatURI(bucket, key), err)
		}
		// unblock writers if the upload gave up early
		pr.CloseWithError(err)
		w.done <- err
	}()

	return w
}

type objectWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *objectWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *objectWriter) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

func withRetry[T any](ctx context.Context, c *Client, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		output, err := call()
		if err == nil {
			return output, nil
		}

		if isNotFound(err) || !isTransient(err) {
			return zero, err
		}

		lastErr = err
		if attempt < c.maxRetries {
			delay := c.backoff(attempt)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// API error codes grouped by how a failed call is handled
var (
	notFoundCodes = map[string]bool{
		"NoSuchKey":    true,
		"NotFound":     true,
		"NoSuchBucket": true,
	}
	transientCodes = map[string]bool{
		"SlowDown":                true,
		"Throttling":              true,
		"ServiceUnavailable":      true,
		"RequestTimeout":          true,
		"RequestTimeoutException": true,
	}
)

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// isNotFound matches both the typed S3 errors and bare 404 API codes
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	return notFoundCodes[apiErrorCode(err)]
}

// isTransient reports whether a call failing with err is worth repeating
func isTransient(err error) bool {
	if transientCodes[apiErrorCode(err)] {
		return true
	}

	var resp interface{ HTTPStatusCode() int }
	if errors.As(err, &resp) && resp.HTTPStatusCode() >= 500 {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

// backoff doubles baseDelay per attempt with ±25% jitter, capped at maxDelay
func (c *Client) backoff(attempt int) time.Duration {
	if attempt >= 32 {
		return c.maxDelay
	}
	d := c.baseDelay << attempt
	if d <= 0 || d >= c.maxDelay {
		return c.maxDelay
	}

	if spread := int64(d) / 2; spread > 0 {
		d += time.Duration(rand.Int64N(spread+1) - spread/2)
	}
	return min(d, c.maxDelay)
}
