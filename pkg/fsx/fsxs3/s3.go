package fsxs3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/fsx"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3FileSystem implements fsx.FileSystem on an S3 bucket.
type S3FileSystem struct {
	client  s3API
	bucket  string
	prefix  string
	baseURL string
}

// Option configures an S3FileSystem.
type Option func(*S3FileSystem)

// WithPublicBaseURL makes URL return baseURL/<key> (a CDN or public bucket endpoint).
func WithPublicBaseURL(baseURL string) Option {
	return func(fs *S3FileSystem) { fs.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// NewS3FileSystem creates a file system storing objects under prefix in bucket.
func NewS3FileSystem(client *s3.Client, bucket, prefix string, opts ...Option) *S3FileSystem {
	return newS3FileSystem(client, bucket, prefix, opts...)
}

func newS3FileSystem(client s3API, bucket, prefix string, opts ...Option) *S3FileSystem {
	fs := &S3FileSystem{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
	for _, o := range opts {
		o(fs)
	}
	return fs
}

func (fs *S3FileSystem) key(p string) (string, error) {
	clean, err := fsx.CleanPath(p)
	if err != nil {
		return "", err
	}
	if fs.prefix == "" {
		return clean, nil
	}
	return path.Join(fs.prefix, clean), nil
}

func (fs *S3FileSystem) ReadFile(ctx context.Context, p string) ([]byte, error) {
	key, err := fs.key(p)
	if err != nil {
		return nil, err
	}
	out, err := fs.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fsx.NotFound(p)
		}
		return nil, fsx.Wrap(fsx.ErrReadFailed, p, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fsx.Wrap(fsx.ErrReadFailed, p, err)
	}
	return data, nil
}

func (fs *S3FileSystem) Stat(ctx context.Context, p string) (fsx.FileInfo, error) {
	key, err := fs.key(p)
	if err != nil {
		return fsx.FileInfo{}, err
	}
	out, err := fs.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fsx.FileInfo{}, fsx.NotFound(p)
		}
		return fsx.FileInfo{}, fsx.Wrap(fsx.ErrReadFailed, p, err)
	}

	info := fsx.FileInfo{
		Path:        p,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}
	if out.LastModified != nil {
		info.ModTime = *out.LastModified
	}
	return info, nil
}

func (fs *S3FileSystem) Exists(ctx context.Context, p string) (bool, error) {
	_, err := fs.Stat(ctx, p)
	if err == nil {
		return true, nil
	}
	if errx.HasCode(err, fsx.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (fs *S3FileSystem) WriteFile(ctx context.Context, p string, data []byte, contentType string) error {
	key, err := fs.key(p)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = fsx.ContentTypeFor(p)
	}
	_, err = fs.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(fs.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fsx.Wrap(fsx.ErrWriteFailed, p, err).WithDetail("bucket", fs.bucket)
	}
	return nil
}

func (fs *S3FileSystem) DeleteFile(ctx context.Context, p string) error {
	key, err := fs.key(p)
	if err != nil {
		return err
	}
	if _, err := fs.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fsx.Wrap(fsx.ErrDeleteFailed, p, err).WithDetail("bucket", fs.bucket)
	}
	return nil
}

// URL returns the public address of p, or its s3:// URI when no public base is set.
func (fs *S3FileSystem) URL(p string) string {
	key, err := fs.key(p)
	if err != nil {
		return ""
	}
	if fs.baseURL != "" {
		return fs.baseURL + "/" + key
	}
	return "s3://" + fs.bucket + "/" + key
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
