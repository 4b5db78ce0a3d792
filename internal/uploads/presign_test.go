package uploads

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresigner struct {
	input   *s3.PutObjectInput
	expires time.Duration
	err     error
}

func (f *fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.input = in
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.s3.amazonaws.com/" + *in.Key + "?X-Amz-Signature=abc",
		Method: "PUT",
	}, nil
}

func TestProofKey(t *testing.T) {
	key := ProofKey("claim-1", "image/png")
	assert.True(t, strings.HasPrefix(key, "claims/claim-1/proof/"), key)
	assert.True(t, strings.HasSuffix(key, ".png"), key)
	assert.Equal(t, strings.ToLower(key), key)

	assert.True(t, strings.HasSuffix(ProofKey("c", "image/jpeg"), ".jpg"))
	assert.NotEqual(t, ProofKey("c", "image/png"), ProofKey("c", "image/png"))
}

func TestPresignProof(t *testing.T) {
	fake := &fakePresigner{}
	svc := NewService(fake, "evidence", 15*time.Minute)

	up, err := svc.PresignProof(context.Background(), "claim-1", "user-1", "image/webp")
	require.NoError(t, err)

	require.NotNil(t, fake.input)
	assert.Equal(t, "evidence", *fake.input.Bucket)
	assert.Equal(t, up.Key, *fake.input.Key)
	assert.Equal(t, "image/webp", *fake.input.ContentType)
	assert.Equal(t, map[string]string{"claim_id": "claim-1", "user_id": "user-1"}, fake.input.Metadata)
	assert.Equal(t, 15*time.Minute, fake.expires)

	assert.Contains(t, up.URL, up.Key)
	assert.Equal(t, 900, up.ExpiresIn)
	assert.Equal(t, "image/webp", up.Headers["Content-Type"])
	assert.Equal(t, "claim-1", up.Headers["x-amz-meta-claim_id"])
}

func TestPresignProofError(t *testing.T) {
	svc := NewService(&fakePresigner{err: errors.New("no credentials")}, "evidence", time.Minute)

	_, err := svc.PresignProof(context.Background(), "claim-1", "user-1", "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "presign proof upload")
}
