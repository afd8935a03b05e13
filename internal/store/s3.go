package store

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/conneroisu/devlens/internal/errors"
)

// objectAPI is the subset of the S3 client used by S3Backend.
type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures an S3Backend.
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
	// AccessKeyID and SecretAccessKey are optional static credentials.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Backend stores data files as objects keyed <prefix>/<site>/<file>.
type S3Backend struct {
	client objectAPI
	bucket string
	prefix string
}

// NewS3Backend creates an S3 backend from cfg.
func NewS3Backend(cfg S3Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "s3 bucket is required")
	}
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.Endpoint != "",
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		creds := aws.Credentials{AccessKeyID: cfg.AccessKeyID, SecretAccessKey: cfg.SecretAccessKey, Source: "devlens"}
		opts.Credentials = aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return creds, nil
		})
	}
	return newS3Backend(s3.New(opts), cfg.Bucket, cfg.Prefix), nil
}

func newS3Backend(client objectAPI, bucket, prefix string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (b *S3Backend) key(site, file string) (string, error) {
	if err := checkSite(site); err != nil {
		return "", err
	}
	clean := path.Clean("/" + file)[1:]
	if clean == "" || clean != file {
		return "", errors.ErrPathTraversal(file)
	}
	return path.Join(b.prefix, site, clean), nil
}

// Read implements Backend.
func (b *S3Backend) Read(ctx context.Context, site, file string) ([]byte, error) {
	key, err := b.key(site, file)
	if err != nil {
		return nil, err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *s3types.NoSuchKey
		if stderrors.As(err, &missing) {
			return nil, errors.NewIOError(errors.ErrCodeNotFound, fmt.Sprintf("data file %s not found", file), err)
		}
		return nil, errors.WrapNetwork(err, errors.ErrCodeRequestFailed, "s3 get failed")
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.WrapNetwork(err, errors.ErrCodeRequestFailed, "s3 read failed")
	}
	return data, nil
}

// Write implements Backend.
func (b *S3Backend) Write(ctx context.Context, site, file string, data []byte) error {
	key, err := b.key(site, file)
	if err != nil {
		return err
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errors.WrapNetwork(err, errors.ErrCodeRequestFailed, "s3 put failed")
	}
	return nil
}
