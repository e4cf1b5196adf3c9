package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"morphocore/internal/blob/core"
)

func TestMockStoreBasicFlow(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if store.Driver() != core.DriverS3 || store.Bucket() != "mock-bucket" {
		t.Fatalf("unexpected store identity")
	}
	info, err := store.Put(ctx, "media_files/images/1/2/1_2_original.jpg", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "image/jpeg", Metadata: map[string]string{"source": "upload"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ContentType != "image/jpeg" || info.Size != 5 || info.ETag != "etag" {
		t.Fatalf("unexpected info %#v", info)
	}
	if _, err := store.Put(ctx, "media_files/images/1/2/1_2_original.jpg", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := store.Get(ctx, "media_files/images/1/2/1_2_original.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" {
		t.Fatalf("get mismatch: %q", data)
	}
	list, err := store.List(ctx, "media_files/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	if u, err := store.PresignURL(ctx, "media_files/images/1/2/1_2_original.jpg", core.SignedURLOptions{Expiry: 30 * time.Second}); err != nil || u == "" {
		t.Fatalf("presign: %v %s", err, u)
	}
	if ok, err := store.Delete(ctx, "media_files/images/1/2/1_2_original.jpg"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "media_files/images/1/2/1_2_original.jpg"); err != nil || ok {
		t.Fatalf("second delete should report missing: %v %v", ok, err)
	}
}

func TestMockStoreCopy(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Put(ctx, "src/a b.glb", bytes.NewReader([]byte("mesh")), core.PutOptions{ContentType: "model/gltf-binary"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, err := store.Copy(ctx, "src/a b.glb", "dst/a.glb")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if info.Key != "dst/a.glb" || info.ContentType != "model/gltf-binary" || info.Size != 4 {
		t.Fatalf("unexpected copy info %+v", info)
	}
	if _, err := store.Copy(ctx, "src/a b.glb", "dst/a.glb"); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := store.Copy(ctx, "src/missing.glb", "dst/b.glb"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMockStoreMissingKeys(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: %v", err)
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign, got %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
	s, err := New(context.Background(), Config{Bucket: "bkt", Endpoint: "https://minio.local", AccessKeyID: "AKIA", SecretAccessKey: "SECRET", PathStyle: true})
	if err != nil || s.Bucket() != "bkt" {
		t.Fatalf("New: %v", err)
	}
	s, err = New(context.Background(), Config{Bucket: "media", Region: "eu-west-1"})
	if err != nil || s.Bucket() != "media" {
		t.Fatalf("New with region: %v", err)
	}
}

func TestCopySourceEscapesSegments(t *testing.T) {
	if got := copySource("b", "media_files/a b/c#d.jpg"); got != "b/media_files/a%20b/c%23d.jpg" {
		t.Fatalf("unexpected copy source %s", got)
	}
}

func TestDecodeChunked(t *testing.T) {
	if _, ok := decodeChunked([]byte("not-chunked")); ok {
		t.Fatalf("plain body must not decode")
	}
	if _, ok := decodeChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("size mismatch must not decode")
	}
	if b, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected hello, got %q", b)
	}
}

func TestFakeS3RejectsUnknownMethod(t *testing.T) {
	rt := &fakeS3{objects: make(map[string]fakeObject)}
	req, _ := http.NewRequest(http.MethodPatch, "https://mock.s3.local/bucket/key", nil)
	resp, _ := rt.RoundTrip(req)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}
