package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store stores attachments in an S3 bucket. Use it when more than one
// CityPulse node serves the same city.
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := upload.NewS3Store(s3.NewFromConfig(cfg), "csc-attachments", "complaints/", 10<<20)
type S3Store struct {
	client  *s3.Client
	bucket  string
	prefix  string
	maxSize int64
}

// NewS3Store creates an S3-backed attachment store. maxSize of 0 disables
// the size limit.
func NewS3Store(client *s3.Client, bucket, prefix string, maxSize int64) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix, maxSize: maxSize}
}

func (s *S3Store) key(id string) string { return s.prefix + id }

// Save uploads the file to S3 with its metadata as object metadata.
func (s *S3Store) Save(ctx context.Context, filename, contentType string, r io.Reader) (*Attachment, error) {
	id := newID()

	// Buffer the body; attachments are bounded by maxSize and PutObject
	// wants a seekable or length-known body.
	var buf bytes.Buffer
	reader := r
	if s.maxSize > 0 {
		reader = io.LimitReader(r, s.maxSize+1)
	}
	written, err := io.Copy(&buf, reader)
	if err != nil {
		return nil, err
	}
	if s.maxSize > 0 && written > s.maxSize {
		return nil, ErrTooLarge
	}

	createdAt := time.Now().UTC()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(id)),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"filename":   filename,
			"created-at": createdAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload: s3 put: %w", err)
	}

	return &Attachment{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		Size:        written,
		CreatedAt:   createdAt,
	}, nil
}

// Open fetches the attachment content and reconstructs its record from the
// object metadata.
func (s *S3Store) Open(ctx context.Context, id string) (io.ReadCloser, *Attachment, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return nil, nil, ErrNotFound
	}

	att := &Attachment{
		ID:       id,
		Filename: out.Metadata["filename"],
		Size:     aws.ToInt64(out.ContentLength),
	}
	if out.ContentType != nil {
		att.ContentType = *out.ContentType
	}
	if raw, ok := out.Metadata["created-at"]; ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			att.CreatedAt = t
		}
	}
	return out.Body, att, nil
}

// Delete removes the object. S3 treats deleting a missing key as success,
// which matches the Store contract.
func (s *S3Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return fmt.Errorf("upload: s3 delete: %w", err)
	}
	return nil
}

// Cleanup removes objects under the prefix older than maxAge.
func (s *S3Store) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	var continuation *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return fmt.Errorf("upload: s3 list: %w", err)
		}
		for _, obj := range out.Contents {
			if obj.LastModified != nil && obj.LastModified.Before(cutoff) {
				_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(s.bucket),
					Key:    obj.Key,
				})
				if err != nil {
					return fmt.Errorf("upload: s3 delete %s: %w", aws.ToString(obj.Key), err)
				}
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			return nil
		}
		continuation = out.NextContinuationToken
	}
}

// String implements fmt.Stringer for log output.
func (s *S3Store) String() string {
	return "s3://" + s.bucket + "/" + s.prefix + " (limit " + strconv.FormatInt(s.maxSize, 10) + " bytes)"
}
