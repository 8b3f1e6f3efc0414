package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/septivank/youtilitics-worker/internal/config"
	"github.com/septivank/youtilitics-worker/internal/reconciler"
	"github.com/septivank/youtilitics-worker/internal/service"
	"github.com/septivank/youtilitics-worker/internal/youtilitics"
)

func newAPIClient(cmd *cobra.Command, logger *zap.Logger) (*youtilitics.Client, error) {
	cfg, err := config.LoadAPI()
	if err != nil {
		return nil, err
	}
	httpClient := youtilitics.NewHTTPClient(cmd.Context(), *cfg)
	return youtilitics.NewClient(cfg.APIURL, httpClient, logger), nil
}

func newAccountsCommand(logger func() *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List accounts, their services and the entities the worker derives from them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newAPIClient(cmd, logger())
			if err != nil {
				return err
			}

			accounts, err := client.FetchAccounts(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch accounts: %w", err)
			}
			types, err := client.FetchServiceTypes(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch service types: %w", err)
			}
			return printAccounts(os.Stdout, accounts, types)
		},
	}
}

func printAccounts(out io.Writer, accounts []youtilitics.Account, types youtilitics.ServiceType) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tUTILITY\tSERVICE\tCATEGORY\tENTITIES")
	for _, account := range accounts {
		for _, svc := range account.Services {
			category, ok := types.Category(svc.Type)
			entities := "-"
			if ok {
				entities = service.EntityKey(svc.ID, reconciler.KindInterval) + ", " + service.EntityKey(svc.ID, reconciler.KindMeter)
			} else {
				category = "unknown (" + strconv.Itoa(svc.Type) + ")"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", account.ID, account.Utility.Name, svc.ID, category, entities)
		}
	}
	return w.Flush()
}

func newReadingsCommand(logger func() *zap.Logger) *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "readings <service-id>",
		Short: "Print readings for a service",
		Long:  "Print readings for a service, optionally only those after --since (an API timestamp).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(cmd, logger())
			if err != nil {
				return err
			}

			readings, err := client.FetchReadings(cmd.Context(), args[0], since)
			if err != nil {
				return fmt.Errorf("fetch readings for %s: %w", args[0], err)
			}
			return printReadings(os.Stdout, readings)
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "only readings after this timestamp")
	return cmd
}

func printReadings(out io.Writer, readings []youtilitics.Reading) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIMESTAMP\tREADING\tUNIT\tRAW")
	for _, r := range readings {
		raw := "-"
		if r.RawUnit != "" {
			raw = strconv.FormatFloat(r.RawReading, 'f', -1, 64) + " " + r.RawUnit
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.RawTimestamp,
			strconv.FormatFloat(r.Reading, 'f', -1, 64),
			r.Unit,
			raw,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	byUnit := lo.GroupBy(readings, func(r youtilitics.Reading) string { return r.Unit })
	units := lo.Keys(byUnit)
	slices.Sort(units)
	for _, unit := range units {
		total := lo.SumBy(byUnit[unit], func(r youtilitics.Reading) float64 { return r.Reading })
		fmt.Fprintf(out, "total %s: %s (%d readings)\n", unit, strconv.FormatFloat(total, 'f', -1, 64), len(byUnit[unit]))
	}
	return nil
}
