package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/pkg/config"
)

type fakeS3 struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestS3Archive_PutGet(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	a := newS3Archive(fake, "dte-respuestas", "sii-responses")
	ctx := context.Background()

	ref, err := a.Put(ctx, "tenant-a", "doc-1/upload-1.xml", []byte("<RECEPCIONDTE/>"))
	require.NoError(t, err)
	assert.Equal(t, "s3://dte-respuestas/sii-responses/tenant-a/doc-1/upload-1.xml", ref)
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "application/xml", aws.ToString(fake.puts[0].ContentType))

	body, err := a.Get(ctx, "tenant-a", "doc-1/upload-1.xml")
	require.NoError(t, err)
	assert.Equal(t, "<RECEPCIONDTE/>", string(body))
}

func TestS3Archive_TenantsSeparados(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	a := newS3Archive(fake, "b", "p")
	ctx := context.Background()

	_, err := a.Put(ctx, "tenant-a", "k.xml", []byte("a"))
	require.NoError(t, err)

	_, err = a.Get(ctx, "tenant-b", "k.xml")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNewS3Archive_SinBucket(t *testing.T) {
	_, err := NewS3Archive(context.Background(), config.ArchiveConfig{})
	assert.Error(t, err)
}
