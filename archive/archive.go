// Package archive keeps a copy of every crawl in S3 compatible storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/seo-maskinen/backend/seo"
)

const defaultBucket = "seo-crawls"

type Config struct {
	ServiceURL string
	AccessKey  string
	SecretKey  string
	Bucket     string
	HTTPClient *http.Client
}

type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive uploads crawl JSON. A nil *Archive is valid and does nothing.
type Archive struct {
	client putter
	bucket string
	now    func() time.Time
}

// New returns nil when no credentials are configured
func New(ctx context.Context, cfg Config) (*Archive, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, nil
	}

	opts := []func(*config.LoadOptions) error{
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		config.WithRegion("us-east-1"),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, config.WithHTTPClient(cfg.HTTPClient))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ServiceURL != "" {
			o.BaseEndpoint = aws.String(cfg.ServiceURL)
		}
		o.UsePathStyle = true
	})

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}
	return newWithClient(client, bucket), nil
}

func newWithClient(client putter, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket, now: time.Now}
}

func (a *Archive) Enabled() bool {
	return a != nil && a.client != nil
}

// Key is the object key for an analysis: crawls/YYYY/MM/DD/<user>/<id>.json
func (a *Archive) Key(userID, analysisID string) string {
	day := a.now().UTC().Format("2006/01/02")
	return path.Join("crawls", day, userID, analysisID+".json")
}

// StoreCrawl uploads data and returns its key
func (a *Archive) StoreCrawl(ctx context.Context, userID, analysisID string, data *seo.CrawlData) (string, error) {
	if !a.Enabled() {
		return "", nil
	}

	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode crawl data: %w", err)
	}

	key := a.Key(userID, analysisID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload crawl data: %w", err)
	}
	return key, nil
}
