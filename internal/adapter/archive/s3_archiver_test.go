package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3ArchiverArchive(t *testing.T) {
	client := &fakeS3{}
	a := newS3Archiver(client, "pizzaline", "transcripts")

	s, _ := domain.NewSession("call-1", "roma", time.Date(2026, 5, 15, 17, 30, 0, 0, time.UTC))
	s.Append(domain.RoleUser, "una diavola", s.CreatedAt)

	if err := a.Archive(context.Background(), *s); err != nil {
		t.Fatal(err)
	}
	if aws.ToString(client.input.Bucket) != "pizzaline" {
		t.Errorf("bucket = %s", aws.ToString(client.input.Bucket))
	}
	if got := aws.ToString(client.input.Key); got != "transcripts/roma/2026-05-15/call-1.json" {
		t.Errorf("key = %s", got)
	}

	var stored domain.Session
	if err := json.Unmarshal(client.body, &stored); err != nil {
		t.Fatal(err)
	}
	if len(stored.Messages) != 1 || stored.Messages[0].Content != "una diavola" {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestS3ArchiverError(t *testing.T) {
	a := newS3Archiver(&fakeS3{err: errors.New("access denied")}, "b", "")
	s, _ := domain.NewSession("call-1", "roma", time.Now())
	if err := a.Archive(context.Background(), *s); err == nil {
		t.Fatal("expected error")
	}
}
