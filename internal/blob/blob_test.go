package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil || s.Driver() != DriverMemory {
		t.Fatalf("memory driver: %v %v", s, err)
	}
	s, err = Open(ctx, Config{FSRoot: t.TempDir()})
	if err != nil || s.Driver() != DriverFilesystem {
		t.Fatalf("default fs driver: %v %v", s, err)
	}
	s, err = Open(ctx, Config{Driver: DriverS3, S3: S3Config{Bucket: "media", Endpoint: "http://minio.local:9000", PathStyle: true}})
	if err != nil || s.Driver() != DriverS3 {
		t.Fatalf("s3 driver: %v %v", s, err)
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
	if _, err := Open(ctx, Config{Driver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

// streamOnly hides any Copier implementation of the wrapped store.
type streamOnly struct{ Store }

func TestCopyFallsBackToStreaming(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	if _, err := mem.Put(ctx, "a/src.jpg", bytes.NewReader([]byte("pixels")), PutOptions{ContentType: "image/jpeg", Metadata: map[string]string{"w": "10"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	s := streamOnly{mem}
	if _, ok := Store(s).(Copier); ok {
		t.Fatalf("wrapper must not expose Copier")
	}
	info, err := Copy(ctx, s, "a/src.jpg", "b/dst.jpg")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if info.ContentType != "image/jpeg" || info.Metadata["w"] != "10" {
		t.Fatalf("copy lost attributes: %+v", info)
	}
	_, rc, err := mem.Get(ctx, "b/dst.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "pixels" {
		t.Fatalf("unexpected copy body %q", b)
	}

	if _, err := Copy(ctx, s, "missing", "c/dst.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := Copy(ctx, s, "a/src.jpg", "b/dst.jpg"); !errors.Is(err, ErrExists) {
		t.Fatalf("expected exists, got %v", err)
	}
}

func TestCopyUsesServerSideCopier(t *testing.T) {
	ctx := context.Background()
	for _, s := range []Store{NewMemory(), NewMockS3ForTests()} {
		if _, ok := s.(Copier); !ok {
			t.Fatalf("%s store should implement Copier", s.Driver())
		}
		if _, err := s.Put(ctx, "src/key.mp4", bytes.NewReader([]byte("frames")), PutOptions{ContentType: "video/mp4"}); err != nil {
			t.Fatalf("%s put: %v", s.Driver(), err)
		}
		if _, err := Copy(ctx, s, "src/key.mp4", "dst/key.mp4"); err != nil {
			t.Fatalf("%s copy: %v", s.Driver(), err)
		}
		list, err := s.List(ctx, "dst/")
		if err != nil || len(list) != 1 || list[0].Key != "dst/key.mp4" {
			t.Fatalf("%s list after copy: %+v %v", s.Driver(), list, err)
		}
	}
}
