package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ethpandaops/pagespeedoor/pkg/config"
	"github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ Writer = (*s3Writer)(nil)

type s3Writer struct {
	log    logrus.FieldLogger
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Writer creates a Writer backed by S3-compatible storage.
func NewS3Writer(
	log logrus.FieldLogger,
	cfg *config.S3ArchiveConfig,
) Writer {
	return &s3Writer{
		log:    log.WithField("component", "archive"),
		client: newS3Client(cfg),
		bucket: cfg.Bucket,
		prefix: strings.TrimRight(cfg.Prefix, "/"),
	}
}

// Put uploads data to {prefix}/{key} in the configured bucket.
func (w *s3Writer) Put(
	ctx context.Context, key string, data []byte,
) error {
	objKey := key
	if w.prefix != "" {
		objKey = w.prefix + "/" + key
	}

	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(objKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting object %q: %w", objKey, err)
	}

	w.log.WithField("key", objKey).Debug("Archived raw response")

	return nil
}

func newS3Client(cfg *config.S3ArchiveConfig) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}
