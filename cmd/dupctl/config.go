package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"morphocore/internal/blob"
	"morphocore/internal/infra/persistence/sqldb"
	"morphocore/internal/media"
)

// Config keys. Every key can be set in dupctl.yaml, by flag, or through the
// MORPHOCORE_<KEY> environment variable.
const (
	keyStorageDriver = "storage_driver"
	keySQLitePath    = "sqlite_path"
	keyPostgresDSN   = "postgres_dsn"
	keyBlobDriver    = "blob_driver"
	keyBlobFSRoot    = "blob_fs_root"
	keyS3Bucket      = "blob_s3_bucket"
	keyS3Region      = "blob_s3_region"
	keyS3Endpoint    = "blob_s3_endpoint"
	keyS3PathStyle   = "blob_s3_path_style"
	keyS3AccessKey   = "blob_s3_access_key_id"
	keyS3SecretKey   = "blob_s3_secret_access_key"
	keyMediaRoot     = "media_root"
	keyMediaUID      = "media_uid"
	keyMediaGID      = "media_gid"
	keyLogLevel      = "log_level"
	keyConcurrency   = "concurrency"
)

const envPrefix = "MORPHOCORE"

// loadConfig reads the optional config file and binds flags and environment.
// A missing file is not an error unless it was named explicitly.
func loadConfig(path string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(keyStorageDriver, string(sqldb.SQLite))
	v.SetDefault(keySQLitePath, "morphocore.db")
	v.SetDefault(keyBlobDriver, string(blob.DriverFilesystem))
	v.SetDefault(keyBlobFSRoot, "blobdata")
	v.SetDefault(keyS3Region, "us-east-1")
	v.SetDefault(keyMediaUID, -1)
	v.SetDefault(keyMediaGID, -1)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyConcurrency, 2)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dupctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}
	return v, nil
}

func openDatabase(ctx context.Context, v *viper.Viper) (*sql.DB, sqldb.Dialect, error) {
	d, err := sqldb.ParseDialect(v.GetString(keyStorageDriver))
	if err != nil {
		return nil, "", err
	}
	dsn := v.GetString(keySQLitePath)
	if d == sqldb.Postgres {
		dsn = v.GetString(keyPostgresDSN)
		if dsn == "" {
			return nil, "", errors.New("postgres_dsn is required for the postgres driver")
		}
	}
	db, err := sqldb.Open(ctx, d, dsn)
	if err != nil {
		return nil, "", err
	}
	return db, d, nil
}

func openObjectStore(ctx context.Context, v *viper.Viper) (blob.Store, error) {
	return blob.Open(ctx, blob.Config{
		Driver: blob.Driver(v.GetString(keyBlobDriver)),
		FSRoot: v.GetString(keyBlobFSRoot),
		S3: blob.S3Config{
			Bucket:          v.GetString(keyS3Bucket),
			Region:          v.GetString(keyS3Region),
			Endpoint:        v.GetString(keyS3Endpoint),
			PathStyle:       v.GetBool(keyS3PathStyle),
			AccessKeyID:     v.GetString(keyS3AccessKey),
			SecretAccessKey: v.GetString(keyS3SecretKey),
		},
	})
}

// localMedia returns the hashed-directory store configuration, or nil when
// no media root is configured.
func localMedia(v *viper.Viper) *media.LocalConfig {
	root := v.GetString(keyMediaRoot)
	if root == "" {
		return nil
	}
	cfg := &media.LocalConfig{Root: root}
	if uid, gid := v.GetInt(keyMediaUID), v.GetInt(keyMediaGID); uid >= 0 && gid >= 0 {
		cfg.Owner = &media.FileOwner{UID: uid, GID: gid}
	}
	return cfg
}
