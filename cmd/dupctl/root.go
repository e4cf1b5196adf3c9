package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"morphocore/internal/duplication"
	"morphocore/internal/infra/persistence/sqldb"
	"morphocore/internal/observability"
	"morphocore/internal/schema"
	"morphocore/internal/tasks"
)

// app carries what every subcommand needs once the root has loaded config.
type app struct {
	out      io.Writer
	errOut   io.Writer
	cfgFile  string
	v        *viper.Viper
	logger   *observability.ZerologLogger
	registry *schema.Registry
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:           "dupctl",
		Short:         "Duplicate projects and publish partitions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := loadConfig(a.cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			a.v = v
			a.logger = observability.NewConsoleLogger(a.errOut, v.GetString(keyLogLevel))
			reg, err := schema.NewCatalogRegistry()
			if err != nil {
				return err
			}
			a.registry = reg
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./dupctl.yaml)")
	pf.String("storage-driver", "", "sqlite or postgres")
	pf.String("sqlite-path", "", "sqlite database file")
	pf.String("postgres-dsn", "", "postgres connection string")
	pf.String("blob-driver", "", "object store driver: fs, s3 or memory")
	pf.String("blob-fs-root", "", "object store directory for the fs driver")
	pf.String("media-root", "", "root of the hashed-directory media store")
	pf.String("log-level", "", "debug, info, warn or error")

	root.AddCommand(
		a.projectCmd(),
		a.publishCmd(),
		a.orderCmd(),
		a.requestCmd(),
		a.workerCmd(),
		a.schemaCmd(),
	)
	return root
}

// withDB opens the configured database for the duration of fn.
func (a *app) withDB(ctx context.Context, fn func(*sql.DB, sqldb.Dialect) error) error {
	db, d, err := openDatabase(ctx, a.v)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(db, d)
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return id, nil
}

// runConfig clones cfg in its own transaction and prints the new root id.
func (a *app) runConfig(cmd *cobra.Command, cfg duplication.Config, userID int64) error {
	ctx := cmd.Context()
	return a.withDB(ctx, func(db *sql.DB, d sqldb.Dialect) error {
		store, err := openObjectStore(ctx, a.v)
		if err != nil {
			return err
		}
		cfg.Dialect = d
		cfg.Remote = store
		cfg.Local = localMedia(a.v)
		cfg.Overrides = duplication.CloneOverrides(userID)
		o, err := duplication.New(cfg, duplication.WithLogger(a.logger))
		if err != nil {
			return err
		}
		id, err := o.Run(ctx, db)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.out, id)
		return err
	})
}

func (a *app) projectCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "project <project-id>",
		Short: "Duplicate a project and print the new project id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project id")
			if err != nil {
				return err
			}
			return a.runConfig(cmd, duplication.ProjectConfig(a.registry, id), userID)
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "assign cloned rows to this user")
	return cmd
}

func (a *app) publishCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "publish-partition <project-id> <partition-id>",
		Short: "Publish one partition of a project as a new project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := parseID(args[0], "project id")
			if err != nil {
				return err
			}
			partition, err := parseID(args[1], "partition id")
			if err != nil {
				return err
			}
			return a.runConfig(cmd, duplication.PartitionConfig(a.registry, project, partition), userID)
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "assign cloned rows to this user")
	return cmd
}

func (a *app) orderCmd() *cobra.Command {
	var partition bool
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Print the order tables are cloned in",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg := duplication.ProjectConfig(a.registry, 1)
			if partition {
				cfg = duplication.PartitionConfig(a.registry, 1, 1)
			}
			o, err := duplication.New(cfg)
			if err != nil {
				return err
			}
			for i, t := range o.Order() {
				if _, err := fmt.Fprintf(a.out, "%2d %s\n", i+1, t.Name); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&partition, "partition", false, "show the partition publishing order")
	return cmd
}

func (a *app) requestCmd() *cobra.Command {
	var (
		userID    int64
		partition int64
		status    string
	)
	cmd := &cobra.Command{
		Use:   "request <project-id>",
		Short: "Queue a duplication request, or a publishing request with --partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := parseID(args[0], "project id")
			if err != nil {
				return err
			}
			r := tasks.Request{Kind: tasks.KindDuplication, ProjectID: project, UserID: userID, Status: status}
			if partition > 0 {
				r.Kind = tasks.KindPartitionPublish
				r.PartitionID = partition
			}
			return a.withDB(cmd.Context(), func(db *sql.DB, d sqldb.Dialect) error {
				id, err := tasks.NewStore(db, d).Create(cmd.Context(), r)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(a.out, id)
				return err
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "requesting user")
	cmd.Flags().Int64Var(&partition, "partition", 0, "partition to publish")
	cmd.Flags().StringVar(&status, "status", tasks.StatusApproved, "initial request status")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (a *app) schemaCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "schema", Short: "Development schema helpers"}
	apply := &cobra.Command{
		Use:   "apply",
		Short: "Create the catalog and request tables if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withDB(ctx, func(db *sql.DB, d sqldb.Dialect) error {
				if err := sqldb.ApplyCatalog(ctx, db, d, a.registry); err != nil {
					return err
				}
				if err := tasks.NewStore(db, d).Migrate(ctx); err != nil {
					return err
				}
				a.logger.Info("schema applied", "driver", string(d))
				return nil
			})
		},
	}
	cmd.AddCommand(apply)
	return cmd
}
