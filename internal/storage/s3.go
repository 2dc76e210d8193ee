// Package storage pushes staged local files to S3-compatible object storage.
// The local stage is released on every exit path, and a failed transfer yields
// an absent result instead of an error: the caller decides whether a missing
// asset is fatal.
package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"clipstream/internal/config"
	"clipstream/internal/pkg/logger"
)

// test seams
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(client *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return client.PutObject(ctx, in)
	}
)

// UploadResult describes one durably stored asset.
type UploadResult struct {
	URL    string
	Bucket string
	Key    string
	Size   int64
}

// Uploader transfers a staged local file to durable storage. A nil result with
// a nil error means the asset is absent (no input, or transfer failed).
type Uploader interface {
	Upload(ctx context.Context, localPath string) (*UploadResult, error)
}

type S3Uploader struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

func NewS3Uploader(ctx context.Context, cfg config.S3Config) (*S3Uploader, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load s3 config failed: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	publicBaseURL := cfg.PublicBaseURL
	if publicBaseURL == "" {
		publicBaseURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}

	return &S3Uploader{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Upload pushes localPath to the bucket and returns the public URL. The local
// file is removed whether or not the transfer succeeds.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (*UploadResult, error) {
	if localPath == "" {
		return nil, nil
	}

	file, err := os.Open(localPath)
	if err != nil {
		removeStaged(localPath)
		logger.Warn("open staged file failed", zap.String("path", localPath), zap.Error(err))
		return nil, nil
	}
	defer file.Close()
	defer removeStaged(localPath)

	info, err := file.Stat()
	if err != nil {
		logger.Warn("stat staged file failed", zap.String("path", localPath), zap.Error(err))
		return nil, nil
	}

	key := storageKey(localPath)
	_, err = putObject(u.client, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(localPath)),
	})
	if err != nil {
		logger.Warn("object upload failed", zap.String("key", key), zap.Error(err))
		return nil, nil
	}

	return &UploadResult{
		URL:    u.publicBaseURL + "/" + key,
		Bucket: u.bucket,
		Key:    key,
		Size:   info.Size(),
	}, nil
}

func storageKey(localPath string) string {
	d := time.Now()
	return fmt.Sprintf("media/%d/%02d/%02d/%s%s", d.Year(), d.Month(), d.Day(), uuid.New(), filepath.Ext(localPath))
}

func contentType(localPath string) string {
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func removeStaged(localPath string) {
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("remove staged file failed", zap.String("path", localPath), zap.Error(err))
	}
}
