package services

import (
	"autoservice/internal/models"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures the S3 report mirror
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	UsePathStyle    bool
}

// S3ReportStore uploads reports to an S3 compatible bucket
type S3ReportStore struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3ReportStore(ctx context.Context, cfg S3Config) (*S3ReportStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if cfg.Endpoint != "" {
			options.BaseEndpoint = &cfg.Endpoint
		}
		options.UsePathStyle = cfg.UsePathStyle
	})

	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix == "" {
		prefix = "reports"
	}
	return &S3ReportStore{
		client: client,
		bucket: strings.TrimSpace(cfg.Bucket),
		prefix: prefix,
	}, nil
}

func (s *S3ReportStore) key(report models.ServiceReport) string {
	return fmt.Sprintf("%s/%s/%s.json", s.prefix, report.CreatedAt.UTC().Format("2006/01/02"), report.ID)
}

// Save uploads report and returns its s3:// location
func (s *S3ReportStore) Save(ctx context.Context, report models.ServiceReport) (string, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	key := s.key(report)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put object failed: %w", err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// Prune deletes uploaded reports last modified before the cutoff
func (s *S3ReportStore) Prune(ctx context.Context, before time.Time) (int, error) {
	prefix := s.prefix + "/"
	removed := 0
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return removed, fmt.Errorf("list objects failed: %w", err)
		}
		for _, object := range page.Contents {
			if object.Key == nil || object.LastModified == nil || !object.LastModified.Before(before) {
				continue
			}
			if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: &s.bucket,
				Key:    object.Key,
			}); err != nil {
				return removed, fmt.Errorf("delete object failed: %w", err)
			}
			removed++
		}
	}
	return removed, nil
}
