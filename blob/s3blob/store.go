// Package s3blob implements the blob store on an S3-compatible bucket.
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/xrey167/molthub/blob"
	"github.com/xrey167/molthub/config"
)

// ErrIncompleteS3Config is returned when the S3 configuration is incomplete
var ErrIncompleteS3Config = errors.New("incomplete S3 configuration")

// Store implements the blob store on an s3 bucket. Objects live under
// blobs/<shard>/<id>.
type Store struct {
	S3Client *s3.Client
	Timeout  time.Duration
	Bucket   string
}

// New creates an s3-backed blob store from the persistence config.
func New(cfg config.S3Config) (*Store, error) {
	if strings.TrimSpace(cfg.AccessKey) == "" ||
		strings.TrimSpace(cfg.KeyID) == "" ||
		strings.TrimSpace(cfg.Endpoint) == "" ||
		strings.TrimSpace(cfg.Region) == "" ||
		strings.TrimSpace(cfg.Bucket) == "" ||
		strings.TrimSpace(cfg.Timeout) == "" {
		return nil, fmt.Errorf("%w", ErrIncompleteS3Config)
	}

	s3Client := s3.New(s3.Options{
		UsePathStyle: true,
		BaseEndpoint: aws.String(cfg.Endpoint),
		Region:       cfg.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				cfg.KeyID,
				cfg.AccessKey,
				"",
			),
		),
	})

	timeoutDuration, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid S3 timeout value: %w", err)
	}

	return &Store{
		S3Client: s3Client,
		Timeout:  timeoutDuration,
		Bucket:   cfg.Bucket,
	}, nil
}

func (s *Store) objectKey(id string) string {
	shard := "00"
	if len(id) >= 2 {
		shard = id[:2]
	}

	return path.Join("blobs", shard, id)
}

func (s *Store) Put(ctx context.Context, id string, content io.Reader) error {
	uploader := manager.NewUploader(s.S3Client)

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	result, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(id)),
		Body:   content,
	})
	if err != nil {
		var mu manager.MultiUploadFailure
		if errors.As(err, &mu) {
			log.Error().
				Msg(fmt.Sprintf("multi-upload failure (upload_id: %s): %v", mu.UploadID(), mu))

			return fmt.Errorf(
				"multi-upload failure (upload_id: %s): %w",
				mu.UploadID(),
				mu,
			)
		}
		log.Error().Err(err).Msg("upload failure")

		return fmt.Errorf("upload failure: %w", err)
	}
	log.Debug().
		Str("location", result.Location).
		Msg("uploaded blob to s3 bucket")

	return nil
}

func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	object, err := s.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		var notFoundErr *types.NoSuchKey
		if errors.As(err, &notFoundErr) {
			return nil, blob.ErrNotFound
		}

		return nil, fmt.Errorf("failed to get blob from S3: %w", err)
	}

	var content []byte
	if object.Body != nil {
		defer func() {
			if cerr := object.Body.Close(); cerr != nil {
				log.Error().Err(cerr).Msg("failed to close S3 object body")
			}
		}()
		content, err = io.ReadAll(object.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read blob content: %w", err)
		}
	} else {
		content = []byte{}
	}

	return content, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	_, err := s.S3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob from S3: %w", err)
	}

	return nil
}

var _ blob.Store = (*Store)(nil)
