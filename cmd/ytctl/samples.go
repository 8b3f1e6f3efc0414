package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/septivank/youtilitics-worker/internal/reconciler"
	"github.com/septivank/youtilitics-worker/internal/repository"
)

func newSamplesCommand() *cobra.Command {
	var (
		databaseURL string
		window      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "samples <entity-key>",
		Short: "Print an entity's stored state and recent samples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return fmt.Errorf("database URL is required; set DATABASE_URL or pass --database-url")
			}

			pool, err := pgxpool.New(cmd.Context(), databaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			repo := repository.NewRepository(pool)
			key := args[0]

			state, err := repo.GetEntityState(cmd.Context(), key)
			if err != nil {
				return err
			}
			if state == nil {
				return fmt.Errorf("no stored state for %s", key)
			}

			value := "unknown"
			if state.State != nil {
				value = strconv.FormatFloat(*state.State, 'f', -1, 64)
			}
			fmt.Printf("%s = %s %s (available=%t, backfilled=%s, last=%s)\n",
				key,
				value,
				state.Attributes[reconciler.AttrUnit],
				state.Available,
				state.Attributes[reconciler.AttrBackfilled],
				state.Attributes[reconciler.AttrLastTimestamp],
			)

			to := time.Now()
			samples, err := repo.GetSamples(cmd.Context(), key, to.Add(-window), to)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SAMPLED AT\tVALUE")
			for _, s := range samples {
				fmt.Fprintf(w, "%s\t%s\n", s.SampledAt.Format(time.RFC3339), strconv.FormatFloat(s.Value, 'f', -1, 64))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL URL")
	cmd.Flags().DurationVar(&window, "window", 7*24*time.Hour, "how far back to list samples")
	return cmd
}
