// Package archive stores durable copies of images in S3-compatible
// object storage (S3 proper or R2 via a custom endpoint).
package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"kpopdemonz-relay/internal/config"
)

// Key prefixes for the two archived classes of objects.
const (
	OriginalsPrefix   = "originals/"
	TransformedPrefix = "transformed/"
)

// Archive wraps the S3 client for one bucket.
type Archive struct {
	client     *s3.Client
	bucket     string
	publicBase string
}

// New builds the archive from config. Callers should skip construction
// entirely when no bucket is configured.
func New(ctx context.Context, cfg config.Config) (*Archive, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ArchiveRegion),
	}
	if cfg.ArchiveEndpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.ArchiveEndpoint,
					HostnameImmutable: cfg.ArchivePathStyle,
					SigningRegion:     cfg.ArchiveRegion,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ArchivePathStyle
	})
	return &Archive{
		client:     client,
		bucket:     cfg.ArchiveBucket,
		publicBase: strings.TrimSuffix(cfg.ArchivePublicURL, "/"),
	}, nil
}

// Upload writes one object and returns a reference URL: the public base
// URL if one is configured, an s3:// URI otherwise.
func (a *Archive) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	if a.publicBase != "" {
		return a.publicBase + "/" + key, nil
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

// DeletePrefix removes every object under the prefix, one delete per
// object so a single failure does not abort the rest. Returns the count
// of objects actually deleted.
func (a *Archive) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	var lastErr error

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(a.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				lastErr = err
				continue
			}
			deleted++
		}
	}
	if lastErr != nil {
		return deleted, fmt.Errorf("delete under %s: %w", prefix, lastErr)
	}
	return deleted, nil
}
