package deploy

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sitewatch-dev/sitewatch/internal/config"
)

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string // key -> content type
}

func newFakeS3(existing ...string) *fakeS3 {
	f := &fakeS3{objects: make(map[string]string)}
	for _, key := range existing {
		f.objects[key] = "application/octet-stream"
	}
	return f
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for key := range f.objects {
		if in.Prefix == nil || len(*in.Prefix) == 0 || startsWith(key, *in.Prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func startsWith(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestSync_UploadsTree(t *testing.T) {
	root := writeSite(t, map[string]string{
		"index.html":   "<html></html>",
		"pkg/app.wasm": "wasm",
		"img/logo.png": "png",
	})
	fake := newFakeS3()
	u := New(fake, config.DeployConfig{Bucket: "b", Prefix: "site"}, nil)

	summary, err := u.Sync(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Uploaded != 3 {
		t.Errorf("uploaded = %d, want 3", summary.Uploaded)
	}
	for _, key := range []string{"site/index.html", "site/pkg/app.wasm", "site/img/logo.png"} {
		if _, ok := fake.objects[key]; !ok {
			t.Errorf("missing key %q (have %v)", key, fake.objects)
		}
	}
}

func TestSync_SetsContentTypes(t *testing.T) {
	root := writeSite(t, map[string]string{
		"index.html":  "<html></html>",
		"pkg/a.wasm":  "wasm",
		"pkg/a.js":    "js",
		"pkg/a.css":   "css",
		"data/x.blob": "?",
	})
	fake := newFakeS3()
	u := New(fake, config.DeployConfig{Bucket: "b"}, nil)

	if _, err := u.Sync(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	want := map[string]string{
		"index.html":  "text/html; charset=utf-8",
		"pkg/a.wasm":  "application/wasm",
		"pkg/a.js":    "text/javascript; charset=utf-8",
		"pkg/a.css":   "text/css; charset=utf-8",
		"data/x.blob": "application/octet-stream",
	}
	for key, ct := range want {
		if got := fake.objects[key]; got != ct {
			t.Errorf("%s content type = %q, want %q", key, got, ct)
		}
	}
}

func TestSync_DeletesStaleKeys(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": "x"})
	fake := newFakeS3("site/index.html", "site/old.css", "other/untouched")
	u := New(fake, config.DeployConfig{Bucket: "b", Prefix: "site"}, nil)

	summary, err := u.Sync(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", summary.Deleted)
	}
	if _, ok := fake.objects["site/old.css"]; ok {
		t.Error("stale key survived the sync")
	}
	if _, ok := fake.objects["other/untouched"]; !ok {
		t.Error("key outside the prefix was deleted")
	}
}

func TestNewFromEnvironment_RequiresBucket(t *testing.T) {
	if _, err := NewFromEnvironment(context.Background(), config.DeployConfig{}, nil); err == nil {
		t.Fatal("expected error when bucket is not configured")
	}
}
