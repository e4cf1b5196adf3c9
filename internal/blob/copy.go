package blob

import (
	"context"
	"fmt"
)

// Copy duplicates srcKey to dstKey. Stores implementing Copier copy server
// side; others are streamed through Get and Put, keeping content type and
// metadata.
func Copy(ctx context.Context, store Store, srcKey, dstKey string) (Info, error) {
	if c, ok := store.(Copier); ok {
		return c.Copy(ctx, srcKey, dstKey)
	}
	info, rc, err := store.Get(ctx, srcKey)
	if err != nil {
		return Info{}, fmt.Errorf("read %s: %w", srcKey, err)
	}
	defer func() { _ = rc.Close() }()
	out, err := store.Put(ctx, dstKey, rc, PutOptions{ContentType: info.ContentType, Metadata: info.Metadata})
	if err != nil {
		return Info{}, fmt.Errorf("write %s: %w", dstKey, err)
	}
	return out, nil
}
