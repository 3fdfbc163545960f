package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/seo-maskinen/backend/seo"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestStoreCrawl(t *testing.T) {
	fake := &fakePutter{}
	a := newWithClient(fake, "bucket")
	a.now = func() time.Time { return time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC) }

	data := &seo.CrawlData{URL: "https://example.se/", Title: "Example"}
	key, err := a.StoreCrawl(context.Background(), "user-1", "abc", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "crawls/2024/05/01/user-1/abc.json" {
		t.Errorf("unexpected key %q", key)
	}
	if aws.ToString(fake.input.Bucket) != "bucket" || aws.ToString(fake.input.ContentType) != "application/json" {
		t.Errorf("unexpected input %+v", fake.input)
	}

	var got seo.CrawlData
	if err := json.Unmarshal(fake.body, &got); err != nil || got.Title != "Example" {
		t.Errorf("body is not the crawl JSON: %s", fake.body)
	}

	fake.err = errors.New("access denied")
	if _, err := a.StoreCrawl(context.Background(), "user-1", "abc", data); err == nil {
		t.Error("expected upload error")
	}
}

func TestDisabledArchive(t *testing.T) {
	a, err := New(context.Background(), Config{})
	if err != nil || a != nil {
		t.Fatalf("expected nil archive without credentials, got %v %v", a, err)
	}
	if a.Enabled() {
		t.Error("nil archive must be disabled")
	}
	key, err := a.StoreCrawl(context.Background(), "u", "id", &seo.CrawlData{})
	if key != "" || err != nil {
		t.Errorf("disabled archive should do nothing, got %q %v", key, err)
	}
}

func TestArchiveAgainstS3Endpoint(t *testing.T) {
	var mu sync.Mutex
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		mu.Lock()
		method, path = r.Method, r.URL.Path
		mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, err := New(context.Background(), Config{
		ServiceURL: srv.URL,
		AccessKey:  "key",
		SecretKey:  "secret",
		Bucket:     "crawls-test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key, err := a.StoreCrawl(context.Background(), "user-1", "abc", &seo.CrawlData{URL: "https://example.se/"})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut || !strings.HasPrefix(path, "/crawls-test/") || !strings.HasSuffix(path, key) {
		t.Errorf("unexpected request %s %s for key %s", method, path, key)
	}
}
