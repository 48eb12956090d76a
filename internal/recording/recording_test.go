package recording

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NoBucket_ReturnsDisabledUploader(t *testing.T) {
	u := New(aws.Config{}, "")
	assert.False(t, u.Enabled())
	assert.Nil(t, u.Client)
}

func TestNew_WithBucket_ReturnsEnabledUploader(t *testing.T) {
	u := New(aws.Config{}, "call-recordings")
	assert.True(t, u.Enabled())
	assert.Equal(t, "call-recordings", u.Bucket)
	assert.NotNil(t, u.Client)
}

func TestUpload_Disabled_NoOp(t *testing.T) {
	u := New(aws.Config{}, "")
	uri, err := u.Upload(context.Background(), "tenant-1", "session-1", []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Empty(t, uri)
}

func TestUploader_NilReceiver_EnabledIsFalse(t *testing.T) {
	var u *Uploader
	assert.False(t, u.Enabled())
}
