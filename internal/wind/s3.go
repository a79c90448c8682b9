package wind

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures dataset downloads from s3://bucket/key sources.
type S3Config struct {
	Region    string // default: us-east-1
	Endpoint  string // S3-compatible endpoint; path-style addressing when set
	Anonymous bool   // unsigned requests, for public buckets
	AccessKey string // static credentials; the default AWS chain when empty
	SecretKey string
}

// parseS3URL splits s3://bucket/key.
func parseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing source URL: %w", err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("source URL %q must be s3://bucket/key", raw)
	}
	return bucket, key, nil
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	switch {
	case cfg.Anonymous:
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	case cfg.AccessKey != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// fetchS3 downloads the archive object named by f.sourceURL.
func (f *Fetcher) fetchS3(ctx context.Context) ([]byte, error) {
	bucket, key, err := parseS3URL(f.sourceURL)
	if err != nil {
		return nil, err
	}

	f.s3Once.Do(func() {
		f.s3Client, f.s3Err = newS3Client(ctx, f.s3Config)
	})
	if f.s3Err != nil {
		return nil, f.s3Err
	}

	out, err := f.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching wind dataset: %w", err)
	}
	defer out.Body.Close()

	return f.readLimited(out.Body)
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("wind dataset exceeds %d byte limit", f.maxBytes)
	}
	return body, nil
}
