// Package recording uploads call audio to S3 for the sessions that
// carry active call_recording consent (§4.6's consent gate). Grounded
// on ebook-service/internal/storage/s3client.go's S3Uploader — kept
// HOW (env-configured bucket, Enabled() no-op guard, timestamped key,
// config.LoadDefaultConfig for credentials), replaced WHAT (ebook
// export JSON blobs -> raw PCM call recordings).
package recording

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
)

// Uploader stores finished call recordings in S3. A nil Client (no
// bucket configured) makes every method a no-op, matching the
// teacher's Enabled()-guarded pattern.
type Uploader struct {
	Client *s3.Client
	Bucket string
}

func New(awsCfg aws.Config, bucket string) *Uploader {
	if bucket == "" {
		return &Uploader{}
	}
	return &Uploader{Client: s3.NewFromConfig(awsCfg), Bucket: bucket}
}

func (u *Uploader) Enabled() bool { return u != nil && u.Client != nil && u.Bucket != "" }

// Upload stores raw 16kHz mono PCM16 audio for one session under a
// tenant-scoped, timestamped key and returns the s3:// URI recorded on
// the Job (§4.10's recording_flag/recording_url pair).
func (u *Uploader) Upload(ctx context.Context, tenantID, sessionID string, pcm []byte) (string, error) {
	if !u.Enabled() {
		return "", nil
	}
	key := fmt.Sprintf("recordings/%s/%s-%s.pcm", tenantID, sessionID, time.Now().UTC().Format("20060102T150405Z"))
	_, err := u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &u.Bucket,
		Key:         &key,
		Body:        bytes.NewReader(pcm),
		ContentType: aws.String("audio/l16"),
	})
	if err != nil {
		return "", apperr.Wrap(apperr.ProviderTransient, "recording_upload_failed", "uploading call recording", err)
	}
	return fmt.Sprintf("s3://%s/%s", u.Bucket, key), nil
}
