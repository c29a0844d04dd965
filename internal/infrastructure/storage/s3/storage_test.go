package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type objectAPIFake struct {
	objects map[string][]byte
	getErr  error
}

func (f *objectAPIFake) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	raw, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)] = raw
	return &s3.PutObjectOutput{}, nil
}

func (f *objectAPIFake) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	raw, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(raw))}, nil
}

func TestSaveAndOpenUsePrefixedKeys(t *testing.T) {
	api := &objectAPIFake{}
	store := NewWithClient(api, "uploads", "/analyzer/")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "id_post.pdf", strings.NewReader("%PDF")))
	assert.Contains(t, api.objects, "uploads/analyzer/id_post.pdf")

	rc, err := store.Open(ctx, "id_post.pdf")
	require.NoError(t, err)
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	assert.Equal(t, "%PDF", string(raw))
}

func TestOpenWrapsClientErrors(t *testing.T) {
	store := NewWithClient(&objectAPIFake{getErr: errors.New("access denied")}, "uploads", "")

	_, err := store.Open(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
