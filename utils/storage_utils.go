package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Config addresses an S3 compatible bucket.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// S3Uploader stores objects in a single bucket under an optional prefix.
type S3Uploader struct {
	client s3iface.S3API
	cfg    S3Config
}

func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("s3 session: %w", err)
	}
	return &S3Uploader{client: s3.New(sess), cfg: cfg}, nil
}

// NewS3UploaderWithClient is used when the caller already holds an S3 client.
func NewS3UploaderWithClient(client s3iface.S3API, cfg S3Config) *S3Uploader {
	return &S3Uploader{client: client, cfg: cfg}
}

// Upload writes body under key and returns the object location.
func (u *S3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	objectKey := u.objectKey(key)
	_, err := u.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("unable to upload %s to S3: %w", objectKey, err)
	}
	return u.location(objectKey), nil
}

func (u *S3Uploader) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if u.cfg.Prefix == "" {
		return key
	}
	return path.Join(strings.Trim(u.cfg.Prefix, "/"), key)
}

func (u *S3Uploader) location(objectKey string) string {
	if u.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(u.cfg.Endpoint, "/"), u.cfg.Bucket, objectKey)
	}
	return fmt.Sprintf("s3://%s/%s", u.cfg.Bucket, objectKey)
}
