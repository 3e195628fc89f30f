package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestFSSinkPut(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFSSink(filepath.Join(dir, "evidence"))
	if err != nil {
		t.Fatalf("NewFSSink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	if err := sink.Put(context.Background(), "frames/A/frame_0001.png", []byte("png-bytes")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(sink.Dir(), "frames", "A", "frame_0001.png"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "png-bytes" {
		t.Errorf("content = %q", got)
	}
}

func TestFSSinkPutCanceledContext(t *testing.T) {
	sink, err := NewFSSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSSink: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.Put(ctx, "k", []byte("v")); err == nil {
		t.Fatal("Put succeeded with canceled context")
	}
}

func TestNewFSSinkEmptyDir(t *testing.T) {
	if _, err := NewFSSink(""); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

func TestS3ConfigValidate(t *testing.T) {
	cfg := S3Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing bucket")
	}
	cfg.Bucket = "evidence"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		in, bucket, prefix string
	}{
		{"bucket", "bucket", ""},
		{"bucket/prefix", "bucket", "prefix"},
		{"bucket/a/b/c", "bucket", "a/b/c"},
	}
	for _, tt := range tests {
		bucket, prefix := ParseS3Path(tt.in)
		if bucket != tt.bucket || prefix != tt.prefix {
			t.Errorf("ParseS3Path(%q) = %q/%q, want %q/%q", tt.in, bucket, prefix, tt.bucket, tt.prefix)
		}
	}
}

// fakeS3 records PutObject calls.
type fakeS3 struct {
	keys         []string
	contentTypes []string
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.keys = append(f.keys, *params.Key)
	f.contentTypes = append(f.contentTypes, *params.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestS3SinkKeyPrefixAndContentType(t *testing.T) {
	fake := &fakeS3{}
	sink := &S3Sink{client: fake, config: S3Config{Bucket: "b", Prefix: "runs/r1"}}

	if err := sink.Put(context.Background(), "frames/A/frame_0001.png", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := sink.Put(context.Background(), "report.json", []byte("{}")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if fake.keys[0] != "runs/r1/frames/A/frame_0001.png" {
		t.Errorf("key = %q", fake.keys[0])
	}
	if fake.contentTypes[0] != "image/png" {
		t.Errorf("content type = %q, want image/png", fake.contentTypes[0])
	}
	if fake.keys[1] != "runs/r1/report.json" {
		t.Errorf("key = %q", fake.keys[1])
	}
}
