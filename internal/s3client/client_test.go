package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuya-takeyama/fs-manifest/pkg/manifest"
)

type fakeAPI struct {
	getErrs  []error
	getCalls int
	headErr  error
	body     string
}

func (f *fakeAPI) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.getCalls++
	if len(f.getErrs) > 0 {
		err := f.getErrs[0]
		f.getErrs = f.getErrs[1:]
		return nil, err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func (f *fakeAPI) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{}, nil
}

type fakeUploader struct {
	bucket string
	key    string
	body   string
	err    error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.bucket, f.key, f.body = *input.Bucket, *input.Key, string(data)
	return &manager.UploadOutput{}, nil
}

func testClient(api objectAPI, up uploader) *Client {
	c := newClient(api, up)
	c.baseDelay = time.Millisecond
	c.maxDelay = 5 * time.Millisecond
	return c
}

func TestClient_Open(t *testing.T) {
	t.Run("retries throttling", func(t *testing.T) {
		api := &fakeAPI{
			getErrs: []error{&smithy.GenericAPIError{Code: "SlowDown"}},
			body:    "line\n",
		}
		c := testClient(api, nil)

		rc, err := c.Open(context.Background(), "bucket", "m.jsonl")
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "line\n", string(data))
		assert.Equal(t, 2, api.getCalls)
	})

	t.Run("missing key", func(t *testing.T) {
		api := &fakeAPI{getErrs: []error{&types.NoSuchKey{}}}
		c := testClient(api, nil)

		_, err := c.Open(context.Background(), "bucket", "m.jsonl")
		assert.ErrorIs(t, err, manifest.ErrInputNotFound)
		assert.Equal(t, 1, api.getCalls, "not found is not retried")
	})

	t.Run("non retryable error", func(t *testing.T) {
		api := &fakeAPI{getErrs: []error{&smithy.GenericAPIError{Code: "AccessDenied"}}}
		c := testClient(api, nil)

		_, err := c.Open(context.Background(), "bucket", "m.jsonl")
		require.Error(t, err)
		assert.NotErrorIs(t, err, manifest.ErrInputNotFound)
		assert.Equal(t, 1, api.getCalls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		errs := make([]error, 10)
		for i := range errs {
			errs[i] = &smithy.GenericAPIError{Code: "ServiceUnavailable"}
		}
		api := &fakeAPI{getErrs: errs}
		c := testClient(api, nil)
		c.maxRetries = 2

		_, err := c.Open(context.Background(), "bucket", "m.jsonl")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries exceeded")
		assert.Equal(t, 3, api.getCalls)
	})
}

func TestClient_Exists(t *testing.T) {
	c := testClient(&fakeAPI{}, nil)
	ok, err := c.Exists(context.Background(), "bucket", "key")
	require.NoError(t, err)
	assert.True(t, ok)

	c = testClient(&fakeAPI{headErr: &types.NotFound{}}, nil)
	ok, err = c.Exists(context.Background(), "bucket", "key")
	require.NoError(t, err)
	assert.False(t, ok)

	c = testClient(&fakeAPI{headErr: &smithy.GenericAPIError{Code: "AccessDenied"}}, nil)
	_, err = c.Exists(context.Background(), "bucket", "key")
	assert.Error(t, err)
}

func TestClient_Create(t *testing.T) {
	t.Run("uploads on close", func(t *testing.T) {
		up := &fakeUploader{}
		c := testClient(nil, up)

		w := c.Create(context.Background(), "bucket", "out/missing.jsonl")
		_, err := io.WriteString(w, "hello\n")
		require.NoError(t, err)
		require.NoError(t, w.Close())

		assert.Equal(t, "bucket", up.bucket)
		assert.Equal(t, "out/missing.jsonl", up.key)
		assert.Equal(t, "hello\n", up.body)
	})

	t.Run("reports upload failure", func(t *testing.T) {
		boom := errors.New("boom")
		c := testClient(nil, &fakeUploader{err: boom})

		w := c.Create(context.Background(), "bucket", "key")
		err := w.Close()
		assert.ErrorIs(t, err, boom)
	})
}

func TestIsTransient(t *testing.T) {
	status := func(code int) error {
		return &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: code}},
			Err:      errors.New("request failed"),
		}
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "slow down", err: &smithy.GenericAPIError{Code: "SlowDown"}, want: true},
		{name: "request timeout", err: &smithy.GenericAPIError{Code: "RequestTimeout"}, want: true},
		{name: "access denied", err: &smithy.GenericAPIError{Code: "AccessDenied"}, want: false},
		{name: "503 response", err: status(http.StatusServiceUnavailable), want: true},
		{name: "403 response", err: status(http.StatusForbidden), want: false},
		{name: "wrapped 500", err: fmt.Errorf("get: %w", status(http.StatusInternalServerError)), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, want: true},
		{name: "plain error", err: errors.New("nope"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(fmt.Errorf("head: %w", &types.NotFound{})))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchBucket"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("nope")))
}

func TestBackoff(t *testing.T) {
	c := newClient(nil, nil)

	for attempt := 0; attempt < 4; attempt++ {
		d := c.backoff(attempt)
		nominal := defaultBaseDelay * time.Duration(1<<attempt)
		assert.GreaterOrEqual(t, d, nominal*3/4)
		assert.LessOrEqual(t, d, nominal*5/4)
	}

	assert.Equal(t, defaultMaxDelay, c.backoff(20))
	assert.Equal(t, defaultMaxDelay, c.backoff(64))
}
