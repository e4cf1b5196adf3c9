package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"morphocore/internal/blob"
	"morphocore/internal/observability"
)

// singleVariant names a locator stored at the top level of the metadata.
const singleVariant = "original"

// RemoteDuplicator copies object-store assets and remembers every key it
// created so a failed run can delete them. One instance serves one run.
type RemoteDuplicator struct {
	store  blob.Store
	logger observability.Logger
	ledger []string
}

// NewRemoteDuplicator returns a duplicator writing to store.
func NewRemoteDuplicator(store blob.Store, logger observability.Logger) *RemoteDuplicator {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RemoteDuplicator{store: store, logger: logger}
}

// RemoteKey is the key of a copied variant.
func RemoteKey(t MediaType, newOwner, newAsset int64, variant, ext string) string {
	return fmt.Sprintf("media_files/%s/%d/%d/%d_%d_%s%s", t.Dir(), newOwner, newAsset, newOwner, newAsset, variant, ext)
}

// Copy duplicates each variant of req.Metadata and returns the metadata with
// rewritten keys. Any copy failure is returned; keys copied before it stay in
// the ledger.
func (d *RemoteDuplicator) Copy(ctx context.Context, req Request) (Metadata, error) {
	if d.store == nil {
		return nil, fmt.Errorf("no object store configured for %s.%s", req.Table, req.Column)
	}
	out := cloneMetadata(req.Metadata)
	refs := variants(out, singleVariant, remoteKeyFields...)
	if len(refs) == 0 {
		d.logger.Warn("asset has no object key", "table", req.Table, "column", req.Column, "id", req.OldAssetID)
		return nil, nil
	}
	mt, ok := DetectMediaType(req.Metadata)
	if !ok {
		d.logger.Warn("media type undetermined, assuming image", "table", req.Table, "column", req.Column, "id", req.OldAssetID)
	}
	for _, ref := range refs {
		keyField, src, _ := field(ref.loc, remoteKeyFields...)
		dst := RemoteKey(mt, req.NewOwnerID, req.NewAssetID, ref.name, strings.ToLower(path.Ext(src)))
		if _, err := blob.Copy(ctx, d.store, src, dst); err != nil {
			return nil, fmt.Errorf("copy object %s to %s: %w", src, dst, err)
		}
		d.ledger = append(d.ledger, dst)
		ref.loc[keyField] = dst
	}
	return out, nil
}

// Ledger returns the keys created so far.
func (d *RemoteDuplicator) Ledger() []string {
	return append([]string(nil), d.ledger...)
}

// Rollback deletes every created key in reverse order and clears the ledger.
// Every key is attempted; failures are joined.
func (d *RemoteDuplicator) Rollback(ctx context.Context) error {
	var errs []error
	for i := len(d.ledger) - 1; i >= 0; i-- {
		key := d.ledger[i]
		if _, err := d.store.Delete(ctx, key); err != nil {
			d.logger.Error("delete copied object", "key", key, "err", err)
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	d.ledger = nil
	return errors.Join(errs...)
}
