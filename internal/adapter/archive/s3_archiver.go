package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver stores finished transcripts as JSON objects under
// <prefix>/<business>/<date>/<session>.json
type S3Archiver struct {
	client putObjectAPI
	bucket string
	prefix string
}

func NewS3Archiver(ctx context.Context, region, bucket, prefix string) (*S3Archiver, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return newS3Archiver(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func newS3Archiver(client putObjectAPI, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix}
}

func (a *S3Archiver) objectKey(s domain.Session) string {
	return path.Join(a.prefix, s.BusinessID, s.CreatedAt.UTC().Format(domain.DateLayout), s.ID+".json")
}

func (a *S3Archiver) Archive(ctx context.Context, s domain.Session) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.objectKey(s)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("unable to upload transcript to S3: %w", err)
	}
	return nil
}
