package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"morphocore/internal/observability"
)

// LocalConfig locates the hashed-directory store. Files live at
// <Root>/<VOLUME>/<HASH>/<FILENAME>.
type LocalConfig struct {
	Root string
	// Owner, when set, is applied to every created file.
	Owner *FileOwner
	// FileMode defaults to 0644.
	FileMode fs.FileMode
}

// FileOwner is a numeric uid/gid pair.
type FileOwner struct {
	UID int
	GID int
}

// LocalResult carries the rewritten metadata and every path created, also on
// failure. A nil Metadata means no variant could be copied.
type LocalResult struct {
	Metadata Metadata
	Created  []string
}

// LocalDuplicator copies assets in the hashed-directory store.
type LocalDuplicator struct {
	cfg    LocalConfig
	logger observability.Logger
	magic  func() string
}

// NewLocalDuplicator returns a duplicator over cfg.Root.
func NewLocalDuplicator(cfg LocalConfig, logger observability.Logger) *LocalDuplicator {
	if cfg.FileMode == 0 {
		cfg.FileMode = 0o644
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LocalDuplicator{cfg: cfg, logger: logger, magic: newMagic}
}

func newMagic() string {
	id := uuid.New()
	return hex.EncodeToString(id[:4])
}

// HashDir is the two-level directory for a row, e.g. "3f/a9".
func HashDir(table string, id int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", table, id)))
	h := hex.EncodeToString(sum[:2])
	return h[:2] + "/" + h[2:4]
}

// Copy duplicates every variant of req.Metadata under req.NewAssetID. A
// variant whose source file is missing is dropped with a warning.
func (d *LocalDuplicator) Copy(ctx context.Context, req Request) (LocalResult, error) {
	var res LocalResult
	out := cloneMetadata(req.Metadata)
	refs := variants(out, "", filenameField)
	if len(refs) == 0 {
		d.logger.Warn("asset has no local filename", "table", req.Table, "column", req.Column, "id", req.OldAssetID)
		return res, nil
	}
	copied := 0
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		path, err := d.copyVariant(req, ref)
		if path != "" {
			res.Created = append(res.Created, path)
		}
		if errors.Is(err, fs.ErrNotExist) {
			d.logger.Warn("local source file missing, skipping", "table", req.Table, "column", req.Column, "id", req.OldAssetID, "variant", ref.name, "err", err)
			ref.drop()
			continue
		}
		if err != nil {
			return res, fmt.Errorf("copy %s.%s variant %q: %w", req.Table, req.Column, ref.name, err)
		}
		copied++
	}
	if copied > 0 {
		res.Metadata = out
	}
	return res, nil
}

func (d *LocalDuplicator) sourcePath(loc map[string]any) (string, error) {
	_, name, ok := field(loc, filenameField)
	if !ok {
		return "", fmt.Errorf("missing filename")
	}
	_, volume, _ := field(loc, volumeField)
	_, hash, _ := field(loc, hashField)
	return d.join(volume, hash, name)
}

func (d *LocalDuplicator) join(parts ...string) (string, error) {
	for _, p := range parts {
		if strings.Contains(p, "..") || filepath.IsAbs(p) {
			return "", fmt.Errorf("invalid path segment %q", p)
		}
	}
	return filepath.Join(append([]string{d.cfg.Root}, parts...)...), nil
}

// copyVariant copies one locator and rewrites it in place. The created path
// is returned as soon as the file exists so a later failure still reports it.
func (d *LocalDuplicator) copyVariant(req Request, ref variantRef) (string, error) {
	src, err := d.sourcePath(ref.loc)
	if err != nil {
		return "", err
	}
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer func() { _ = in.Close() }()

	fnKey, oldName, _ := field(ref.loc, filenameField)
	_, volume, _ := field(ref.loc, volumeField)
	magic := d.magic()
	name := fmt.Sprintf("%s_%s_%s_%d", magic, req.Table, req.Column, req.NewAssetID)
	if ref.name != "" {
		name += "_" + ref.name
	}
	name += strings.ToLower(filepath.Ext(oldName))
	hash := HashDir(req.Table, req.NewAssetID)

	dst, err := d.join(volume, hash, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create hash dir: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, d.cfg.FileMode)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dst, err)
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(dst, d.cfg.FileMode)
	}
	if err == nil && d.cfg.Owner != nil {
		err = os.Chown(dst, d.cfg.Owner.UID, d.cfg.Owner.GID)
	}
	if err != nil {
		return dst, fmt.Errorf("write %s: %w", dst, err)
	}

	ref.loc[fnKey] = name
	ref.loc[keyLike(ref.loc, hashField, "HASH")] = hash
	ref.loc[keyLike(ref.loc, magicField, "MAGIC")] = magic
	return dst, nil
}

// RemoveFiles unlinks paths in reverse creation order. Missing files are
// ignored; other failures are joined.
func RemoveFiles(paths []string) error {
	var errs []error
	for i := len(paths) - 1; i >= 0; i-- {
		if err := os.Remove(paths[i]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
