package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"dbkompare-functions/internal/domain"
)

type fakeS3 struct {
	objects map[string][]byte
	put     *s3.PutObjectInput
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	return &s3.PutObjectOutput{}, nil
}

func TestFetchAndStore(t *testing.T) {
	api := &fakeS3{objects: map[string][]byte{"COMMON/Certificate.pdf": []byte("%PDF-template")}}
	s := New(api, "certs")

	body, err := s.Fetch(context.Background(), "COMMON/Certificate.pdf")
	if err != nil || string(body) != "%PDF-template" {
		t.Fatalf("fetch: %q %v", body, err)
	}
	if _, err := s.Fetch(context.Background(), "missing.pdf"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	uri, err := s.Store(context.Background(), "CERTIFICATES/X-u1-s1.pdf", []byte("pdf"), "application/pdf")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if uri != "s3://certs/CERTIFICATES/X-u1-s1.pdf" {
		t.Fatalf("unexpected uri %s", uri)
	}
	if aws.ToString(api.put.ContentType) != "application/pdf" || api.put.ACL != types.ObjectCannedACLPrivate {
		t.Fatalf("unexpected put input %+v", api.put)
	}
}
