package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"samledger/internal/core"
	"samledger/internal/importer"
	"samledger/internal/scheduler"
	"samledger/internal/seed"
	"samledger/pkg/domain"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultStatusReason = "manual change by admin"

func newRootCommand(stdout io.Writer) *cobra.Command {
	a := &app{stdout: stdout}
	root := &cobra.Command{
		Use:   "samctl",
		Short: "Software license allocation ledger",
		Long: `samctl seeds an in-memory license ledger from the configured source
(embedded fixture, file, blob, SQLite or Postgres) and runs one operation
against it: reharvesting, allocation status changes, imports and reports.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.teardown()
		},
	}
	root.SetOut(stdout)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file (environment only when empty)")
	root.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the command")
	root.PersistentFlags().StringVar(&a.saveFixture, "save-fixture", "", "write the resulting ledger as a seed fixture")

	root.AddCommand(
		newReharvestCommand(a),
		newAllocationCommand(a),
		newImportCommand(a),
		newReportCommand(a),
		newScheduleCommand(a),
		newSeedCommand(a),
	)
	return root
}

func newReharvestCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reharvest",
		Short: "Move allocations awaiting inactivation to history and release their licenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := a.ledger.RunReharvestingJob(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(report)
		},
	}
}

func newAllocationCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allocation",
		Short: "Inspect and change license allocations",
	}
	var reason string
	setStatus := &cobra.Command{
		Use:   "set-status <allocation-id> <ACTIVE|AWAITING_INACT|HISTORY>",
		Short: "Change an allocation's status and record it in the audit trail",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, status := args[0], core.AllocStatus(strings.ToUpper(strings.TrimSpace(args[1])))
			before, err := findAllocation(ctx, a.ledger, id)
			if err != nil {
				return err
			}
			if before.Status == status {
				return a.printJSON(before.LicenseAllocation)
			}
			updated, err := a.ledger.UpdateAllocationStatus(ctx, id, status, reason)
			if err != nil {
				return err
			}
			if _, err := a.ledger.AddAudit(ctx, core.AuditLog{
				Entity:   "LicenseAllocation",
				EntityID: id,
				Action:   "update_status",
				Details:  fmt.Sprintf("Status changed from %q to %q. Allocated to %s.", before.Status, status, before.Person.DisplayName),
			}); err != nil {
				return err
			}
			a.ledger.AddNotification(core.Notification{
				Severity: core.NotificationSuccess,
				Message:  "Allocation status updated.",
			})
			return a.printJSON(updated)
		},
	}
	setStatus.Flags().StringVar(&reason, "reason", defaultStatusReason, "reason recorded in the allocation history")
	cmd.AddCommand(setStatus)
	return cmd
}

func findAllocation(ctx context.Context, ledger *core.Service, id string) (core.AllocationWithDetails, error) {
	all, err := ledger.AllocationsWithDetails(ctx)
	if err != nil {
		return core.AllocationWithDetails{}, err
	}
	for _, a := range all {
		if a.ID == id {
			return a, nil
		}
	}
	return core.AllocationWithDetails{}, core.ErrNotFound{Entity: domain.EntityAllocation, ID: id}
}

type importOutput struct {
	Source  string          `json:"source"`
	DryRun  bool            `json:"dry_run"`
	Mapping string          `json:"mapping"`
	Result  importer.Result `json:"result"`
}

func newImportCommand(a *app) *cobra.Command {
	var (
		fromBlob bool
		forceXLS bool
		autoMap  bool
		dryRun   bool
		pairs    []string
	)
	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Import allocations from a CSV or XLSX export",
		Long: `Import reads a CSV or XLSX export, creating vendors, products, people and
pools on demand and one allocation per new person and pool pair.

Columns are chosen with --map field=Header (fields: productName, personEmail,
personName, vendorName, cost). Without --map the columns are guessed from the
header row; --auto-map also guesses the fields --map leaves out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			explicit, err := importer.ParseMapping(pairs)
			if err != nil {
				return err
			}
			var mapping importer.ColumnMapping
			if len(explicit) > 0 {
				mapping = explicit
			}
			key := args[0]

			var (
				result importer.Result
				source string
			)
			if fromBlob {
				store, err := a.blobStore(ctx)
				if err != nil {
					return err
				}
				if autoMap && mapping != nil {
					_, rc, err := store.Get(ctx, key)
					if err != nil {
						return fmt.Errorf("fetch import %s: %w", key, err)
					}
					data, err := io.ReadAll(rc)
					_ = rc.Close()
					if err != nil {
						return fmt.Errorf("read import %s: %w", key, err)
					}
					if mapping, err = completeMapping(data, isXLSX(key, false), mapping); err != nil {
						return err
					}
				}
				source = "blob:" + key
				result, err = a.ledger.ImportFromBlob(ctx, store, key, mapping, dryRun)
				if err != nil {
					return err
				}
			} else {
				data, err := os.ReadFile(key)
				if err != nil {
					return fmt.Errorf("read import: %w", err)
				}
				xlsx := isXLSX(key, forceXLS)
				if autoMap && mapping != nil {
					if mapping, err = completeMapping(data, xlsx, mapping); err != nil {
						return err
					}
				}
				source = key
				if xlsx {
					result, err = a.ledger.ImportDataFromXLSX(ctx, bytes.NewReader(data), mapping, dryRun)
				} else {
					result, err = a.ledger.ImportDataFromCSV(ctx, bytes.NewReader(data), mapping, dryRun)
				}
				if err != nil {
					return err
				}
			}
			label := "auto"
			if mapping != nil {
				label = mapping.String()
			}
			return a.printJSON(importOutput{Source: source, DryRun: dryRun, Mapping: label, Result: result})
		},
	}
	cmd.Flags().BoolVar(&fromBlob, "blob", false, "treat <path> as a key in the configured blob store")
	cmd.Flags().BoolVar(&forceXLS, "xlsx", false, "parse the file as an XLSX workbook regardless of extension")
	cmd.Flags().StringArrayVar(&pairs, "map", nil, "column mapping as field=Header (repeatable)")
	cmd.Flags().BoolVar(&autoMap, "auto-map", false, "guess the fields --map does not name")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be imported without changing the ledger")
	return cmd
}

func isXLSX(name string, force bool) bool {
	return force || strings.EqualFold(filepath.Ext(name), ".xlsx")
}

// completeMapping fills the fields explicit leaves out from the file's headers.
func completeMapping(data []byte, xlsx bool, explicit importer.ColumnMapping) (importer.ColumnMapping, error) {
	var (
		table importer.Table
		err   error
	)
	if xlsx {
		table, err = importer.ParseXLSX(bytes.NewReader(data))
	} else {
		table, err = importer.ParseCSV(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	return importer.AutoMap(table.Headers).Merge(explicit), nil
}

var reportKinds = []string{"dashboard", "compliance", "reclaimable", "products", "pools", "allocations", "requests", "audit"}

func newReportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "report <" + strings.Join(reportKinds, "|") + ">",
		Short:     "Print a ledger report or projection",
		ValidArgs: reportKinds,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var (
				out any
				err error
			)
			switch args[0] {
			case "dashboard":
				out, err = a.ledger.Dashboard(ctx)
			case "compliance":
				out, err = a.ledger.Compliance(ctx)
			case "reclaimable":
				out, err = a.ledger.Reclaimable(ctx)
			case "products":
				out, err = a.ledger.ProductsWithDetails(ctx)
			case "pools":
				out, err = a.ledger.PoolsWithDetails(ctx)
			case "allocations":
				out, err = a.ledger.AllocationsWithDetails(ctx)
			case "requests":
				out, err = a.ledger.RequestsWithDetails(ctx)
			case "audit":
				out, err = a.ledger.AuditLog(ctx)
			}
			if err != nil {
				return err
			}
			return a.printJSON(out)
		},
	}
}

func newScheduleCommand(a *app) *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run reharvesting on the configured cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Reharvest.Disabled {
				return errors.New("reharvesting is disabled by configuration")
			}
			loc, err := a.cfg.Location()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := scheduler.NewService(a.ledger,
				scheduler.WithLogger(a.logger.Named("scheduler")),
				scheduler.WithLocation(loc),
				scheduler.WithSchedule(a.cfg.Reharvest.Schedule))
			if runNow {
				if _, err := svc.RunNow(ctx); err != nil {
					return err
				}
			}
			if err := svc.Run(ctx); err != nil {
				return err
			}
			a.logger.Info("scheduler stopped", zap.Int("runs", svc.State().Runs))
			return a.printJSON(svc.State())
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "reharvest once before waiting for the schedule")
	return cmd
}

func newSeedCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Export or publish the seed snapshot",
	}

	var driver, sqlitePath string
	publish := &cobra.Command{
		Use:   "publish",
		Short: "Store the seeded snapshot in a SQLite or Postgres seed source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg.SeedSource()
			cfg.Driver = driver
			if sqlitePath != "" {
				cfg.SQLitePath = sqlitePath
			}
			pub, err := seed.OpenPublisher(ctx, cfg)
			if err != nil {
				return err
			}
			if err := pub.Save(ctx, a.snapshot); err != nil {
				_ = pub.Close()
				return fmt.Errorf("publish snapshot: %w", err)
			}
			if err := pub.Close(); err != nil {
				return err
			}
			return a.printJSON(map[string]any{
				"driver":      driver,
				"pools":       len(a.snapshot.Pools),
				"allocations": len(a.snapshot.Allocations),
			})
		},
	}
	publish.Flags().StringVar(&driver, "driver", seed.DriverSQLite, "target driver: sqlite or postgres")
	publish.Flags().StringVar(&sqlitePath, "sqlite-path", "", "SQLite database file (defaults to seed.sqlite_path)")

	export := &cobra.Command{
		Use:   "export",
		Short: "Print the seeded snapshot as a YAML fixture",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return seed.Encode(a.stdout, seed.FromSnapshot(a.snapshot))
		},
	}
	cmd.AddCommand(publish, export)
	return cmd
}
