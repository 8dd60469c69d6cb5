package ttsengine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader persists a finalized part's joined audio payload to object
// storage and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) (url string, err error)
}

// S3Uploader uploads via aws-sdk-go-v2, the object storage client already
// used elsewhere in this module for Bedrock's AWS credential chain.
type S3Uploader struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

// NewS3Uploader builds an Uploader backed by an S3-compatible bucket.
// publicBaseURL is prefixed to the object key to form the returned URL
// (e.g. "https://cdn.example.com/audio").
func NewS3Uploader(client *s3.Client, bucket, publicBaseURL string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, publicBaseURL: publicBaseURL}
}

func (u *S3Uploader) Upload(ctx context.Context, key string, data []byte) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("audio/mpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("ttsengine: upload %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s", u.publicBaseURL, key), nil
}

// AudioObjectKey builds the OSS key for a finalized part, per §4.7.3 step 4.
func AudioObjectKey(audioBID string) string {
	return fmt.Sprintf("tts-audio/%s.mp3", audioBID)
}
