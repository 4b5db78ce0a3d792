// Package uploads issues presigned S3 URLs so clients upload evidence and
// proof images directly to the bucket.
package uploads

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"
)

// Presigner is the subset of *s3.PresignClient used here.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Upload struct {
	Key       string            `json:"key"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	ExpiresIn int               `json:"expires_in"`
}

type Service struct {
	presigner Presigner
	bucket    string
	ttl       time.Duration
}

func NewService(p Presigner, bucket string, ttl time.Duration) *Service {
	return &Service{presigner: p, bucket: bucket, ttl: ttl}
}

// NewS3Service builds a presigning client from the default AWS chain.
// AWS_ENDPOINT_URL points it at LocalStack or MinIO in development.
func NewS3Service(ctx context.Context, region, bucket string, ttl time.Duration) (*Service, error) {
	cfg, err := awsCfg.LoadDefaultConfig(ctx, awsCfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	endpoint := os.Getenv("AWS_ENDPOINT_URL")
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewService(s3.NewPresignClient(client), bucket, ttl), nil
}

// ProofKey is the object key for a claim's proof image.
func ProofKey(claimID, contentType string) string {
	ext := "jpg"
	if i := strings.IndexByte(contentType, '/'); i >= 0 {
		ext = contentType[i+1:]
	}
	if ext == "jpeg" {
		ext = "jpg"
	}
	return fmt.Sprintf("claims/%s/proof/%s.%s", claimID, strings.ToLower(ulid.Make().String()), ext)
}

// PresignProof returns a PUT URL for one proof image of claimID.
func (s *Service) PresignProof(ctx context.Context, claimID, userID, contentType string) (*Upload, error) {
	key := ProofKey(claimID, contentType)
	meta := map[string]string{"claim_id": claimID, "user_id": userID}
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Metadata:    meta,
	}, func(o *s3.PresignOptions) { o.Expires = s.ttl })
	if err != nil {
		return nil, fmt.Errorf("presign proof upload: %w", err)
	}
	return &Upload{
		Key: key,
		URL: req.URL,
		Headers: map[string]string{
			"Content-Type":        contentType,
			"x-amz-meta-claim_id": claimID,
			"x-amz-meta-user_id":  userID,
		},
		ExpiresIn: int(s.ttl.Seconds()),
	}, nil
}
