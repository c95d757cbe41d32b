package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"graphtrack/api/internal/app"
	"graphtrack/api/internal/config"
	"graphtrack/api/internal/export"
	"graphtrack/api/internal/logging"
	"graphtrack/api/internal/store"
	"graphtrack/api/internal/validation"
)

var errUnusable = errors.New("batch is not usable")

// globals holds the persistent flags; empty values keep the environment's.
type globals struct {
	store         string
	sqlitePath    string
	databaseURL   string
	migrationsDir string
	logLevel      string
}

func (g *globals) config() config.Config {
	cfg := config.Load()
	if g.store != "" {
		cfg.Store = g.store
	}
	if g.sqlitePath != "" {
		cfg.SQLitePath = g.sqlitePath
	}
	if g.databaseURL != "" {
		cfg.DatabaseURL = g.databaseURL
	}
	if g.migrationsDir != "" {
		cfg.MigrationsDir = g.migrationsDir
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg
}

func (g *globals) logger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	return logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
}

// runtime bootstraps the service without applying migrations.
func (g *globals) runtime(cmd *cobra.Command) (*app.Runtime, error) {
	cfg := g.config()
	return app.Bootstrap(cmd.Context(), cfg, g.logger(cmd, cfg), false)
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "graphctl",
		Short:         "Operate a graphtrack dependency graph store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&g.store, "store", "", "store dialect: sqlite or postgres (env GRAPHTRACK_STORE)")
	flags.StringVar(&g.sqlitePath, "sqlite-path", "", "SQLite database file (env GRAPHTRACK_SQLITE_PATH)")
	flags.StringVar(&g.databaseURL, "database-url", "", "Postgres URL (env DATABASE_URL)")
	flags.StringVar(&g.migrationsDir, "migrations-dir", "", "migrations root holding one directory per dialect")
	flags.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newMigrateCmd(g),
		newValidateCmd(),
		newImportCmd(g),
		newCyclesCmd(g),
		newPathCmd(g),
		newStatsCmd(g),
		newExportCmd(g),
	)
	return root
}

func newMigrateCmd(g *globals) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or with --down, roll back) schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := g.config()
			dialect, err := store.ParseDialect(cfg.Store)
			if err != nil {
				return err
			}
			dsn := cfg.DatabaseURL
			if dialect == store.DialectSQLite {
				dsn = cfg.SQLitePath
			}
			db, err := store.Connect(cmd.Context(), dialect, dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			dir := cfg.MigrationsPath(string(dialect))
			if down {
				if err := store.RollbackMigrations(cmd.Context(), db, dir); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back migrations in %s\n", dir)
				return nil
			}
			if err := store.ApplyMigrations(cmd.Context(), db, dialect, dir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied migrations from %s\n", dir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back every migration")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <batch-file>",
		Short: "Validate a JSON or YAML batch without touching the store",
		Long: `Validate a batch of node and edge candidates and print the report.

The file is YAML when it ends in .yaml or .yml and JSON otherwise; "-" reads
JSON from stdin. The command fails when the batch is not usable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := readBatch(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			report := validation.ValidateBatch(batch)
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Usable {
				return errUnusable
			}
			return nil
		},
	}
}

func newImportCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "import <batch-file>",
		Short: "Validate a batch and persist its valid part",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := readBatch(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			rt, err := g.runtime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			outcome, err := rt.Service.ImportBatch(cmd.Context(), batch)
			var domainErr *app.DomainError
			if errors.As(err, &domainErr) {
				if report, ok := domainErr.Details.(validation.Report); ok {
					_ = printJSON(cmd.OutOrStdout(), report)
					return errUnusable
				}
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), outcome)
		},
	}
}

func newCyclesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "cycles",
		Short: "List elementary DependsOn cycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := g.runtime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.Service.DetectCycles(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newPathCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "path <from> <to>",
		Short: "Print the shortest DependsOn chain between two nodes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.runtime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.Service.ShortestPath(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func newStatsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print node and edge counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := g.runtime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			stats, err := rt.Service.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func newExportCmd(g *globals) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a graph snapshot as JSON or YAML",
		Long: `Export a consistent snapshot of every node and edge.

Without --out the document is written to stdout. When object storage is
configured (MINIO_ENDPOINT) the export is also uploaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			rt, err := g.runtime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			results, err := rt.Service.Export(cmd.Context(), []export.Format{parsed})
			if err != nil {
				return err
			}
			result := results[0]
			if out == "" {
				_, err := cmd.OutOrStdout().Write(result.Data)
				return err
			}
			if err := os.WriteFile(out, result.Data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", result.Size, out)
			if result.Location != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "uploaded to %s/%s\n", result.Location.Bucket, result.Location.Key)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or yaml")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func readBatch(stdin io.Reader, path string) (validation.Batch, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return validation.Batch{}, fmt.Errorf("read batch: %w", err)
	}

	var batch validation.Batch
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &batch)
	default:
		err = json.Unmarshal(raw, &batch)
	}
	if err != nil {
		return validation.Batch{}, fmt.Errorf("parse batch %s: %w", path, err)
	}
	return batch, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
