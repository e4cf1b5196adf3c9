package duplication

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"morphocore/internal/blob"
	"morphocore/internal/media"
	"morphocore/internal/schema"
)

const (
	localBundle = `{"ORIGINAL_FILENAME":"IMG.JPG",
		"original":{"VOLUME":"images","HASH":"aa/bb","FILENAME":"m40_original.jpg"},
		"thumbnail":{"VOLUME":"images","HASH":"aa/bb","FILENAME":"m40_thumbnail.jpg"}}`
	remoteBundle = `{"original":{"s3_key":"media_files/images/1/41/1_41_original.jpg","MIMETYPE":"image/jpeg"},
		"thumbnail":{"s3_key":"media_files/images/1/41/1_41_thumbnail.jpg"}}`
	remoteSingle = `{"s3_key":"media_files/images/1/42/1_42_original.jpg"}`
)

// seedProject creates project 1 with taxa, specimens, media and an
// annotation, plus an unrelated project 2.
func seedProject(t *testing.T, db *sql.DB, root string) {
	t.Helper()
	exec(t, db, `INSERT INTO ca_users (user_id, email) VALUES (1, 'curator@example.org')`)
	exec(t, db, `INSERT INTO institutions (institution_id, name) VALUES (1, 'Museum')`)
	exec(t, db, `INSERT INTO projects (project_id, user_id, name) VALUES (1, 1, 'Alpha'), (2, 1, 'Other')`)
	exec(t, db, `INSERT INTO project_documents (document_id, project_id, user_id, title, upload)
		VALUES (5, 1, 1, 'notes', '{"VOLUME":"documents","HASH":"01/02","FILENAME":"gone.pdf"}')`)
	exec(t, db, `INSERT INTO taxa (taxon_id, project_id, user_id, genus) VALUES (10, 1, 1, 'Homo'), (11, 1, 1, 'Pan'), (12, 2, 1, 'Gorilla')`)
	exec(t, db, `INSERT INTO specimens (specimen_id, project_id, user_id, institution_id, catalog_number) VALUES (20, 1, 1, 1, 'A-1')`)
	exec(t, db, `INSERT INTO taxa_x_specimens (link_id, taxon_id, specimen_id, user_id) VALUES (30, 10, 20, 1)`)
	exec(t, db, `INSERT INTO media_files (media_id, project_id, user_id, specimen_id, media) VALUES (40, 1, 1, 20, ?), (41, 1, 1, NULL, ?)`,
		localBundle, remoteBundle)
	exec(t, db, `INSERT INTO annotations (annotation_id, table_num, row_id, user_id, annotation) VALUES (50, 7, 10, 1, 'check'), (51, 7, 12, 1, 'other')`)
	exec(t, db, `INSERT INTO matrices (matrix_id, project_id, user_id, title, other_options) VALUES (60, 1, 1, 'M', '{"gap":"-"}')`)

	for _, name := range []string{"m40_original.jpg", "m40_thumbnail.jpg"} {
		p := filepath.Join(root, "images", "aa", "bb", name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(name), 0o600))
	}
}

func decodeBundle(t *testing.T, raw string) map[string]any {
	t.Helper()
	var bundle map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &bundle), raw)
	return bundle
}

func variantField(t *testing.T, bundle map[string]any, variant, field string) string {
	t.Helper()
	v, ok := bundle[variant].(map[string]any)
	require.True(t, ok, "variant %s missing", variant)
	s, ok := v[field].(string)
	require.True(t, ok, "%s.%s missing", variant, field)
	return s
}

func TestDuplicateProject(t *testing.T) {
	reg := catalog(t)
	db := openDB(t, reg)
	root := t.TempDir()
	seedProject(t, db, root)
	store := blob.NewMemory()
	seedObjects(t, store, "media_files/images/1/41/1_41_original.jpg", "media_files/images/1/41/1_41_thumbnail.jpg")

	log := &captureLogger{}
	cfg := ProjectConfig(reg, 1)
	cfg.Local = &media.LocalConfig{Root: root}
	cfg.Remote = store
	o, err := New(cfg, WithLogger(log))
	require.NoError(t, err)
	newProject, err := o.Run(context.Background(), db)
	require.NoError(t, err)
	require.Equal(t, int64(3), newProject)
	ids := o.IDs()

	require.Equal(t, "Alpha", text(t, db, `SELECT name FROM projects WHERE project_id = ?`, newProject))
	require.Equal(t, 2, count(t, db, `SELECT COUNT(*) FROM taxa WHERE project_id = ?`, newProject))
	require.Equal(t, 5, count(t, db, `SELECT COUNT(*) FROM taxa`))
	_, err = ids.Lookup(schema.TableTaxa, 12)
	require.ErrorIs(t, err, ErrMissingMapping)

	// referential integrity: every link points at clones
	taxon, err := ids.Lookup(schema.TableTaxa, 10)
	require.NoError(t, err)
	specimen, err := ids.Lookup(schema.TableSpecimens, 20)
	require.NoError(t, err)
	require.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM taxa_x_specimens WHERE taxon_id = ? AND specimen_id = ?`, taxon, specimen))
	require.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM specimens WHERE specimen_id = ? AND institution_id = 1 AND user_id = 1`, specimen))

	// numbered reference remapped through table_num
	require.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM annotations WHERE table_num = 7 AND row_id = ? AND annotation = 'check'`, taxon))
	require.Equal(t, 3, count(t, db, `SELECT COUNT(*) FROM annotations`))

	// structured column survives the round trip
	matrix, err := ids.Lookup(schema.TableMatrices, 60)
	require.NoError(t, err)
	require.JSONEq(t, `{"gap":"-"}`, text(t, db, `SELECT other_options FROM matrices WHERE matrix_id = ?`, matrix))

	// a missing document file is soft: the clone exists without an upload
	doc, err := ids.Lookup(schema.TableDocuments, 5)
	require.NoError(t, err)
	require.Equal(t, "", text(t, db, `SELECT upload FROM project_documents WHERE document_id = ?`, doc))
	require.GreaterOrEqual(t, log.count("warn"), 1)

	// local bundle copied into the new hash directory
	localMedia, err := ids.Lookup(schema.TableMediaFiles, 40)
	require.NoError(t, err)
	require.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM media_files WHERE media_id = ? AND ancestor_media_id = 40 AND specimen_id = ?`, localMedia, specimen))
	bundle := decodeBundle(t, text(t, db, `SELECT media FROM media_files WHERE media_id = ?`, localMedia))
	require.Equal(t, "IMG.JPG", bundle["ORIGINAL_FILENAME"])
	for _, variant := range []string{"original", "thumbnail"} {
		name := variantField(t, bundle, variant, "FILENAME")
		require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{8}_media_files_media_`+strconv.FormatInt(localMedia, 10)+`_`+variant+`\.jpg$`), name)
		require.Equal(t, media.HashDir(schema.TableMediaFiles, localMedia), variantField(t, bundle, variant, "HASH"))
		_, err := os.Stat(filepath.Join(root, "images", media.HashDir(schema.TableMediaFiles, localMedia), name))
		require.NoError(t, err)
	}
	require.Len(t, o.CreatedFiles(), 2)

	// remote variants copied under the new owner and asset
	remoteMedia, err := ids.Lookup(schema.TableMediaFiles, 41)
	require.NoError(t, err)
	bundle = decodeBundle(t, text(t, db, `SELECT media FROM media_files WHERE media_id = ?`, remoteMedia))
	for _, variant := range []string{"original", "thumbnail"} {
		key := media.RemoteKey(media.TypeImage, newProject, remoteMedia, variant, ".jpg")
		require.Equal(t, key, variantField(t, bundle, variant, "s3_key"))
		_, err := store.Head(context.Background(), key)
		require.NoError(t, err)
	}
	require.Len(t, o.CreatedObjects(), 2)

	// mapping uniqueness: one clone per source row
	for _, tbl := range reg.Tables() {
		srcs := ids.Sources(tbl.Name)
		seen := make(map[int64]bool)
		for _, src := range srcs {
			dst, err := ids.Lookup(tbl.Name, src)
			require.NoError(t, err)
			require.False(t, seen[dst], "%s clone %d assigned twice", tbl.Name, dst)
			seen[dst] = true
		}
	}
}

// failingStore fails every copy after the first allow and records deletes.
type failingStore struct {
	blob.Store
	allow   int
	copies  int
	deletes []string
}

func (f *failingStore) Copy(ctx context.Context, src, dst string) (blob.Info, error) {
	f.copies++
	if f.copies > f.allow {
		return blob.Info{}, errors.New("object store unavailable")
	}
	return blob.Copy(ctx, f.Store, src, dst)
}

func (f *failingStore) Delete(ctx context.Context, key string) (bool, error) {
	f.deletes = append(f.deletes, key)
	return f.Store.Delete(ctx, key)
}

func TestDuplicateRollbackCompleteness(t *testing.T) {
	reg := catalog(t)
	db := openDB(t, reg)
	root := t.TempDir()
	seedProject(t, db, root)
	exec(t, db, `INSERT INTO media_files (media_id, project_id, user_id, media) VALUES (42, 1, 1, ?)`, remoteSingle)
	sources := []string{
		"media_files/images/1/41/1_41_original.jpg",
		"media_files/images/1/41/1_41_thumbnail.jpg",
		"media_files/images/1/42/1_42_original.jpg",
	}
	store := &failingStore{Store: blob.NewMemory(), allow: 2}
	seedObjects(t, store, sources...)

	cfg := ProjectConfig(reg, 1)
	cfg.Local = &media.LocalConfig{Root: root}
	cfg.Remote = store
	o, err := New(cfg)
	require.NoError(t, err)
	_, err = o.Run(context.Background(), db)

	var de *DuplicationError
	require.ErrorAs(t, err, &de)
	require.Equal(t, KindBlob, de.Kind)
	require.Equal(t, schema.TableMediaFiles, de.Table)
	require.Equal(t, int64(42), de.SourceID)
	require.Contains(t, err.Error(), "object store unavailable")

	// both copied objects deleted, newest first
	require.Len(t, store.deletes, 2)
	require.Contains(t, store.deletes[0], "_thumbnail.jpg")
	require.Contains(t, store.deletes[1], "_original.jpg")
	infos, err := store.List(context.Background(), "")
	require.NoError(t, err)
	var keys []string
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	sort.Strings(keys)
	require.Equal(t, sources, keys)
	require.Empty(t, o.CreatedObjects())

	// both copied local files removed; only the sources remain
	var files []string
	require.NoError(t, filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, filepath.Base(p))
		}
		return err
	}))
	sort.Strings(files)
	require.Equal(t, []string{"m40_original.jpg", "m40_thumbnail.jpg"}, files)
	require.Empty(t, o.CreatedFiles())

	// the transaction was rolled back
	require.Equal(t, 2, count(t, db, `SELECT COUNT(*) FROM projects`))
	require.Equal(t, 3, count(t, db, `SELECT COUNT(*) FROM media_files`))
}
