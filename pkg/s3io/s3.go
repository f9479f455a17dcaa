package s3io

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Presigner defines the interface for presigning S3 requests.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Signer wraps a presign client behind the service layer's UploadURLSigner
// shape.
type Signer struct {
	p Presigner
}

func NewSigner(p Presigner) *Signer {
	return &Signer{p: p}
}

func (s *Signer) SignPut(ctx context.Context, bucket, key, contentType string, meta map[string]string, ttl time.Duration) (string, time.Duration, error) {
	return PresignPut(ctx, s.p, bucket, key, contentType, meta, ttl)
}

// PresignPut generates a presigned URL for uploading an object to S3.
func PresignPut(ctx context.Context, p Presigner, bucket, key, contentType string, meta map[string]string, ttl time.Duration) (string, time.Duration, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Metadata:    meta,
	}

	req, err := p.PresignPutObject(ctx, input, func(o *s3.PresignOptions) { o.Expires = ttl })
	if err != nil {
		return "", 0, err
	}
	return req.URL, ttl, nil
}
