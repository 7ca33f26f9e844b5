package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/playperu/reelquiz/internal/catalog"
	"github.com/playperu/reelquiz/internal/database"
	"github.com/playperu/reelquiz/internal/migrations"
	"github.com/playperu/reelquiz/internal/moviequiz"
)

type options struct {
	dbPath  string
	verbose bool
}

func newCmd(stdout io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Load and inspect the movie catalog.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVar(&opts.dbPath, "db", envOr("DB_PATH", "data/reelquiz.db"), "catalog database path (env: DB_PATH)")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log migrations and import progress")

	cmd.AddCommand(newImportCmd(opts, stdout), newSeedCmd(opts, stdout), newSearchCmd(opts, stdout))
	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	return cmd
}

func newImportCmd(opts *options, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import a JSON catalog file; - reads stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			return withCatalog(cmd.Context(), opts, func(c *catalog.Catalog) error {
				stats, err := c.Import(cmd.Context(), r)
				if err != nil {
					return err
				}
				return json.NewEncoder(stdout).Encode(stats)
			})
		},
	}
}

func newSeedCmd(opts *options, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the built-in demo catalog into an empty database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd.Context(), opts, func(c *catalog.Catalog) error {
				if err := c.SeedIfEmpty(cmd.Context()); err != nil {
					return err
				}
				n, err := c.Count(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "%d movies in catalog\n", n)
				return nil
			})
		},
	}
}

func newSearchCmd(opts *options, stdout io.Writer) *cobra.Command {
	var (
		industry string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search titles and aliases the way guess autocomplete does.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ind, err := moviequiz.ParseIndustry(industry)
			if err != nil {
				return err
			}
			return withCatalog(cmd.Context(), opts, func(c *catalog.Catalog) error {
				results, err := c.SearchByTitle(cmd.Context(), strings.Join(args, " "), ind, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tYEAR")
				for _, r := range results {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", r.ID, r.Title, r.ReleaseYear)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&industry, "industry", "i", "", "restrict to HOLLYWOOD, BOLLYWOOD, ANIME or GLOBAL")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results")
	return cmd
}

// withCatalog opens and migrates the database for the length of fn.
func withCatalog(ctx context.Context, opts *options, fn func(*catalog.Catalog) error) error {
	logger := slog.New(slog.DiscardHandler)
	if opts.verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	db, err := database.Open(ctx, opts.dbPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", opts.dbPath, err)
	}
	defer closeDB(db)

	if err := migrations.Run(ctx, db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return fn(catalog.New(db, nil, logger))
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "closing database: %v\n", err)
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
