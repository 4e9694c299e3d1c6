package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tanq16/parafetch/internal/utils"
)

type objectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher serves s3://bucket/key URLs using the ambient AWS credential chain.
// The client is created on first use.
type Fetcher struct {
	profile string
	region  string

	once sync.Once
	api  objectAPI
	err  error
}

func NewFetcher(profile, region string) *Fetcher {
	return &Fetcher{profile: profile, region: region}
}

func getS3Client(ctx context.Context, profile, region string) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMaxAttempts(1),
	}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %v", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func (f *Fetcher) client(ctx context.Context) (objectAPI, error) {
	f.once.Do(func() {
		if f.api != nil {
			return
		}
		f.api, f.err = getS3Client(ctx, f.profile, f.region)
	})
	return f.api, f.err
}

func parseS3URL(link string) (string, string, error) {
	parsed, err := url.Parse(link)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URL: %v", err)
	}
	if parsed.Scheme != "s3" || parsed.Host == "" {
		return "", "", fmt.Errorf("invalid S3 URL format")
	}
	key := strings.TrimPrefix(parsed.Path, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("S3 URL must name an object, not a prefix")
	}
	return parsed.Host, key, nil
}

// Probe issues HeadObject. S3 always honours byte ranges.
func (f *Fetcher) Probe(ctx context.Context, link string) (utils.ProbeResult, error) {
	bucket, key, err := parseS3URL(link)
	if err != nil {
		return utils.ProbeResult{}, err
	}
	api, err := f.client(ctx)
	if err != nil {
		return utils.ProbeResult{}, err
	}
	head, err := api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return utils.ProbeResult{}, fmt.Errorf("error accessing S3 object: %v", err)
	}
	size := int64(-1)
	if head.ContentLength != nil {
		size = *head.ContentLength
	}
	log := utils.GetLogger("s3")
	log.Debug().Str("op", "s3/probe").Msgf("s3://%s/%s is %d bytes", bucket, key, size)
	return utils.ProbeResult{Size: size, RangeSupported: size >= 0}, nil
}

func (f *Fetcher) Open(ctx context.Context, link string) (io.ReadCloser, error) {
	return f.get(ctx, link, "")
}

func (f *Fetcher) OpenRange(ctx context.Context, link string, start, end int64) (io.ReadCloser, error) {
	return f.get(ctx, link, fmt.Sprintf("bytes=%d-%d", start, end))
}

func (f *Fetcher) get(ctx context.Context, link, byteRange string) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(link)
	if err != nil {
		return nil, err
	}
	api, err := f.client(ctx)
	if err != nil {
		return nil, err
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if byteRange != "" {
		input.Range = aws.String(byteRange)
	}
	result, err := api.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error getting object: %v", err)
	}
	return result.Body, nil
}
