package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm
}

// Backend is an S3-compatible implementation of thumbnail.ObjectStore
type Backend struct {
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	bucket   string
	config   Config
}

// New creates a new S3-compatible storage backend
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	// Custom endpoint for S3-compatible services (MinIO, etc.)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)
	return newBackend(client, s3.NewPresignClient(client), config), nil
}

func newBackend(client *s3.Client, presign *s3.PresignClient, config Config) *Backend {
	return &Backend{
		client:   client,
		presign:  presign,
		uploader: manager.NewUploader(client),
		bucket:   config.Bucket,
		config:   config,
	}
}

// Exists reports whether key is present in the bucket
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.HeadObject(ctx, key)
	if errors.Is(err, thumbnail.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// HeadObject retrieves metadata for an object in S3
func (b *Backend) HeadObject(ctx context.Context, key string) (*thumbnail.ObjectInfo, error) {
	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, thumbnail.ErrNotFound
		}
		return nil, &thumbnail.StorageError{Key: key, Op: "head", Err: err}
	}

	info := &thumbnail.ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(result.ContentLength),
		ContentType: aws.ToString(result.ContentType),
		ETag:        strings.Trim(aws.ToString(result.ETag), "\""),
	}
	if result.LastModified != nil {
		info.LastModified = *result.LastModified
	}
	return info, nil
}

// SignedReadURL returns a presigned GET URL for inline display
func (b *Backend) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	input := &s3.GetObjectInput{
		Bucket:                     aws.String(b.bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String("inline"),
	}

	result, err := b.presign.PresignGetObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", &thumbnail.StorageError{Key: key, Op: "presign", Err: err}
	}

	return result.URL, nil
}

// PutObject uploads content directly to S3
func (b *Backend) PutObject(ctx context.Context, key string, reader io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if b.config.EnableSSE {
		switch b.config.SSEAlgorithm {
		case "AES256":
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		case "aws:kms":
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			if b.config.SSEKMSKeyID != "" {
				input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
			}
		}
	}

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return &thumbnail.StorageError{Key: key, Op: "put", Err: err}
	}
	return nil
}

// isNotFound recognises the different shapes S3 and S3-compatible services
// use for a missing key
func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}
