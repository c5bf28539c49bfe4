package fsxs3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/fsx"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type object struct {
	data        []byte
	contentType string
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]object
	putErr  error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string]object{}} }

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = object{data: data, contentType: aws.ToString(in.ContentType)}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(o.data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(o.data))),
		ContentType:   aws.String(o.contentType),
	}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3FileSystem_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fs := newS3FileSystem(fake, "assets", "/prod/")

	p := fsx.SessionPath("s1", "renders", "a1.png")
	require.NoError(t, fs.WriteFile(ctx, p, []byte("img"), "image/png"))
	assert.Contains(t, fake.objects, "assets/prod/sessions/s1/renders/a1.png")

	data, err := fs.ReadFile(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)

	info, err := fs.Stat(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size)
	assert.Equal(t, "image/png", info.ContentType)

	require.NoError(t, fs.DeleteFile(ctx, p))
	ok, err := fs.Exists(ctx, p)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3FileSystem_DefaultContentType(t *testing.T) {
	fake := newFakeS3()
	fs := newS3FileSystem(fake, "b", "")

	require.NoError(t, fs.WriteFile(context.Background(), "plan.pdf", []byte("%PDF"), ""))
	assert.Equal(t, "application/pdf", fake.objects["b/plan.pdf"].contentType)
}

func TestS3FileSystem_Errors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fs := newS3FileSystem(fake, "b", "")

	_, err := fs.ReadFile(ctx, "nope.png")
	assert.True(t, errx.HasCode(err, fsx.ErrNotFound))

	fake.putErr = errors.New("RequestTimeout")
	err = fs.WriteFile(ctx, "x.png", []byte("x"), "image/png")
	assert.True(t, errx.HasCode(err, fsx.ErrWriteFailed))
}

func TestS3FileSystem_URL(t *testing.T) {
	assert.Equal(t, "s3://b/p/x.png", newS3FileSystem(newFakeS3(), "b", "p").URL("x.png"))
	assert.Equal(t, "https://cdn.example.com/x.png",
		newS3FileSystem(newFakeS3(), "b", "", WithPublicBaseURL("https://cdn.example.com/")).URL("x.png"))
}
