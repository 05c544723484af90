package s3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"streamvault/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	maxListLimit   = 1000 // потолок ListObjectsV2
)

// Client предоставляет методы для работы с S3-совместимым хранилищем
type Client struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
}

// NewClient создает новый экземпляр клиента S3.
// Ошибки учётных данных фатальны: вызывающий код не должен их ретраить.
func NewClient(conf *Config) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	if conf.AccessKeyID == "" || conf.SecretAccessKey == "" || conf.Bucket == "" {
		return nil, fmt.Errorf("missing required configuration: accessKeyID, secretAccessKey, and bucket are required")
	}

	// Создаем конфигурацию AWS
	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	// Создаем клиента с кастомными настройками
	client := s3.New(s3.Options{
		BaseEndpoint:     aws.String(conf.Endpoint),
		Region:           conf.Region,
		Credentials:      creds,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
	})

	s3Client := &Client{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        conf.Bucket,
	}

	// Проверяем подключение к бакету
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	_, err := s3Client.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(conf.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to access bucket %s: %w", conf.Bucket, err)
	}

	return s3Client, nil
}

// PresignGet выдает подписанный URL на чтение одного объекта.
// Существование объекта не проверяется: это ответственность вызывающего.
func (h *Client) PresignGet(ctx context.Context, key string, validity time.Duration) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key is required")
	}
	if validity <= 0 {
		return "", fmt.Errorf("validity duration must be positive")
	}

	// S3 ожидает декодированный ключ: подписываем каноническую форму
	decoded := domain.DecodeStorageKey(key)

	result, err := h.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(decoded),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = validity
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign get object: %w", err)
	}

	return result.URL, nil
}

// ListPage возвращает страницу листинга бакета после указанного ключа.
// Ключи приходят в байтовом порядке, что используется аудитом при слиянии.
func (h *Client) ListPage(ctx context.Context, startAfter string, limit int32) ([]ObjectInfo, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(h.bucket),
		MaxKeys: aws.Int32(limit),
	}
	if startAfter != "" {
		input.StartAfter = aws.String(startAfter)
	}

	result, err := h.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	objects := make([]ObjectInfo, 0, len(result.Contents))
	for _, obj := range result.Contents {
		info := ObjectInfo{Key: aws.ToString(obj.Key)}
		if obj.Size != nil {
			info.Size = *obj.Size
		}
		objects = append(objects, info)
	}

	return objects, nil
}

// ObjectExists проверяет наличие объекта через HeadObject
func (h *Client) ObjectExists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key is required")
	}

	_, err := h.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(domain.DecodeStorageKey(key)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}

	return true, nil
}
