package kbadmin

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// UploadDocuments copies every regular file under dir into bucket, keyed by
// its slash-separated path relative to dir. It returns the uploaded keys.
func (c *Client) UploadDocuments(ctx context.Context, bucket, dir string) ([]string, error) {
	if c.deps.Objects == nil {
		return nil, fmt.Errorf("%w: object storage client", ErrMissingInput)
	}
	if bucket == "" {
		return nil, fmt.Errorf("%w: bucket", ErrMissingInput)
	}

	var keys []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)

		if err := c.putFile(ctx, bucket, key, path); err != nil {
			return err
		}
		keys = append(keys, key)
		c.logger.Info("uploaded document", zap.String("bucket", bucket), zap.String("key", key))
		return nil
	})
	if err != nil {
		return keys, fmt.Errorf("upload %s: %w", dir, err)
	}
	return keys, nil
}

func (c *Client) putFile(ctx context.Context, bucket, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if contentType := mime.TypeByExtension(filepath.Ext(path)); contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := c.deps.Objects.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
