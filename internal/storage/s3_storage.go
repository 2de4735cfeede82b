package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"furadapt/api/internal/config"
)

const presignExpiry = 15 * time.Minute

var (
	// ErrObjectNotFound is returned when the requested key does not exist in the bucket.
	ErrObjectNotFound = errors.New("object not found")
	// ErrUnsupportedImageType rejects uploads that the image pipeline cannot decode.
	ErrUnsupportedImageType = errors.New("unsupported image content type")
)

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// IS3Storage is the blob store holding pet images.
type IS3Storage interface {
	GeneratePresignedPutURL(ctx context.Context, ownerID, petID, contentType string) (url string, key string, err error)
	GetObject(ctx context.Context, key string) ([]byte, string, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	PublicURL(key string) string
}

type s3Storage struct {
	cfg           *config.Config
	s3Client      *s3.Client
	presignClient *s3.PresignClient
}

func NewS3Storage(cfg *config.Config) (IS3Storage, error) {
	opts := []func(*aws_config.LoadOptions) error{aws_config.WithRegion(cfg.AwsRegion)}
	if cfg.AwsAccessKeyID != "" {
		opts = append(opts, aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"",
		)))
	}
	awsCfg, err := aws_config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	return &s3Storage{
		cfg:           cfg,
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
	}, nil
}

// ImageKey builds the object key for a new upload of a pet image.
func ImageKey(ownerID, petID, contentType string) (string, error) {
	ext, ok := allowedImageTypes[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnsupportedImageType, contentType)
	}
	return ImagePrefix(ownerID, petID) + uuid.NewString() + ext, nil
}

// ImagePrefix is the key prefix shared by every image of one pet.
func ImagePrefix(ownerID, petID string) string {
	return path.Join("pets", ownerID, petID) + "/"
}

// GeneratePresignedPutURL returns a short-lived upload URL and the key it writes to.
func (s *s3Storage) GeneratePresignedPutURL(ctx context.Context, ownerID, petID, contentType string) (string, string, error) {
	objectKey, err := ImageKey(ownerID, petID, contentType)
	if err != nil {
		return "", "", err
	}

	presignedReq, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", "", fmt.Errorf("failed to generate presigned PUT URL for key %s: %w", objectKey, err)
	}

	zap.L().Debug("Generated presigned upload URL", zap.String("key", objectKey))
	return presignedReq.URL, objectKey, nil
}

func (s *s3Storage) GetObject(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.AwsS3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}
		return nil, "", fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, aws.ToString(out.ContentType), nil
}

func (s *s3Storage) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// PublicURL resolves key against the configured image base URL.
func (s *s3Storage) PublicURL(key string) string {
	if s.cfg.ImageBaseS3URL == "" {
		return key
	}
	return strings.TrimRight(s.cfg.ImageBaseS3URL, "/") + "/" + key
}
