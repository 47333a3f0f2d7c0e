package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/simple-flow/find-image/internal/config"
)

// Mirror shadows saved images into an S3-compatible bucket.
type Mirror struct {
	client     *s3.Client
	bucket     string
	prefix     string
	publicBase string
}

func NewMirror(cfg config.S3Config) (*Mirror, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	region := strings.TrimSpace(cfg.Region)
	accessKey := strings.TrimSpace(cfg.AccessKeyID)
	secretKey := strings.TrimSpace(cfg.SecretAccessKey)
	if bucket == "" || region == "" || accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("incomplete s3 config: bucket/region/access_key_id/secret_access_key are required")
	}

	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		UsePathStyle: cfg.PathStyleAccess,
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		endpoint = strings.TrimSuffix(endpoint, "/")
		opts.BaseEndpoint = aws.String(endpoint)
		// Custom endpoints rarely support virtual-hosted buckets.
		opts.UsePathStyle = true
	}

	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")

	publicBase := strings.TrimRight(strings.TrimSpace(cfg.CustomDomain), "/")
	if publicBase == "" {
		if endpoint != "" {
			publicBase = endpoint + "/" + bucket
		} else {
			publicBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
		}
	}

	return &Mirror{
		client:     s3.New(opts),
		bucket:     bucket,
		prefix:     prefix,
		publicBase: publicBase,
	}, nil
}

// Upload puts payload under the configured prefix and returns the object's
// public URL.
func (m *Mirror) Upload(ctx context.Context, name string, payload []byte, contentType string) (string, error) {
	key := name
	if m.prefix != "" {
		key = m.prefix + "/" + name
	}

	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return m.publicBase + "/" + key, nil
}
