// Package deploy uploads the built site to an S3 bucket. A deploy is a
// one-way sync: every file under the site root is uploaded, then keys
// under the prefix that no longer exist locally are removed.
package deploy

import (
	"context"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sitewatch-dev/sitewatch/internal/config"
	"github.com/sitewatch-dev/sitewatch/internal/errors"
)

// Client is the S3 surface the uploader needs.
type Client interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Summary reports what a sync changed.
type Summary struct {
	Uploaded int
	Deleted  int
}

// Uploader syncs a local tree to a bucket prefix.
type Uploader struct {
	client Client
	bucket string
	prefix string
	logf   func(format string, args ...any)
}

// New creates an uploader on an existing client.
func New(client Client, cfg config.DeployConfig, logf func(format string, args ...any)) *Uploader {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
		logf:   logf,
	}
}

// NewFromEnvironment creates an uploader using the ambient AWS
// configuration (env vars, shared config, instance role), with the
// region optionally overridden from the project config.
func NewFromEnvironment(ctx context.Context, cfg config.DeployConfig, logf func(format string, args ...any)) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("E151").WithDetail("deploy.bucket is not configured")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.New("E151").Wrap(err)
	}
	return New(s3.NewFromConfig(awsCfg), cfg, logf), nil
}

// Sync uploads every file under root and removes keys under the prefix
// that no longer have a local counterpart.
func (u *Uploader) Sync(ctx context.Context, root string) (*Summary, error) {
	summary := &Summary{}
	uploaded := make(map[string]bool)

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return errors.New("E150").WithDetail(path).Wrap(err)
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := u.prefix + filepath.ToSlash(rel)
		if err := u.put(ctx, path, key); err != nil {
			return err
		}
		uploaded[key] = true
		summary.Uploaded++
		return nil
	})
	if err != nil {
		return nil, err
	}

	deleted, err := u.deleteStale(ctx, uploaded)
	if err != nil {
		return nil, err
	}
	summary.Deleted = deleted
	return summary, nil
}

func (u *Uploader) put(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.New("E150").WithDetail(path).Wrap(err)
	}
	defer f.Close()

	u.logf("deploy: uploading %s", key)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(path)),
	})
	if err != nil {
		return errors.New("E150").WithDetail(key).Wrap(err)
	}
	return nil
}

// deleteStale removes keys under the prefix that were not part of this
// sync.
func (u *Uploader) deleteStale(ctx context.Context, keep map[string]bool) (int, error) {
	paginator := s3.NewListObjectsV2Paginator(u.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(u.bucket),
		Prefix: aws.String(u.prefix),
	})

	var stale []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, errors.New("E151").Wrap(err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil && !keep[*obj.Key] {
				stale = append(stale, *obj.Key)
			}
		}
	}

	for _, key := range stale {
		u.logf("deploy: deleting %s", key)
		_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(u.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return 0, errors.New("E151").WithDetail(key).Wrap(err)
		}
	}
	return len(stale), nil
}

// contentType maps a file to its MIME type, with explicit entries for
// the artifacts the build produces.
func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wasm":
		return "application/wasm"
	case ".js":
		return "text/javascript; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".html":
		return "text/html; charset=utf-8"
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
