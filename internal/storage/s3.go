// Package storage выдаёт временные ссылки на файлы материалов в S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrEmptyKey возвращается, если у материала нет файла нужной категории.
var ErrEmptyKey = errors.New("empty object key")

// Config задаёт параметры доступа к бакету.
type Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	URLTTL          time.Duration
}

// S3 формирует presigned-ссылки на скачивание объектов.
type S3 struct {
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

// New создаёт клиент S3; статические ключи используются, если заданы.
func New(ctx context.Context, cfg Config) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &S3{
		presign: s3.NewPresignClient(s3.NewFromConfig(awsCfg)),
		bucket:  cfg.Bucket,
		ttl:     ttl,
	}, nil
}

// DownloadURL возвращает временную ссылку на объект с заданным именем файла при сохранении.
func (s *S3) DownloadURL(ctx context.Context, key, filename string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}

	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if filename != "" {
		in.ResponseContentDisposition = aws.String(mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	}

	req, err := s.presign.PresignGetObject(ctx, in, func(o *s3.PresignOptions) {
		o.Expires = s.ttl
	})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}
