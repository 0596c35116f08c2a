package clients

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestS3(t *testing.T, prefix string) *S3Client {
	t.Helper()
	c, err := NewS3Client(context.Background(), S3Config{
		Endpoint:        "localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		Bucket:          "documents",
		Region:          "us-east-1",
		Prefix:          prefix,
		URLTTL:          time.Hour,
	})
	require.NoError(t, err)
	return c
}

func TestS3Client_ObjectKey(t *testing.T) {
	assert.Equal(t, "ledger/c1/I-2026-1.xlsx", newTestS3(t, "ledger").ObjectKey("c1/I-2026-1.xlsx"))
	assert.Equal(t, "c1/I-2026-1.xlsx", newTestS3(t, "").ObjectKey("c1/I-2026-1.xlsx"))
}

func TestS3Client_PresignedURL(t *testing.T) {
	c := newTestS3(t, "ledger")

	raw, err := c.PresignedURL(context.Background(), "ledger/c1/R-2026-1.xlsx")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/documents/ledger/c1/R-2026-1.xlsx", u.Path)
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
}

func TestNewS3Client_RequiresBucket(t *testing.T) {
	_, err := NewS3Client(context.Background(), S3Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}
