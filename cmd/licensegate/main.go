// Package main is the entrypoint for the LicenseGate admin CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/HoangDuong1310/licensegate/internal/db"
	"github.com/HoangDuong1310/licensegate/internal/licensing"
	"github.com/HoangDuong1310/licensegate/internal/models"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "licensegate",
		Short:        "LicenseGate admin CLI - manage plans and license keys",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newPlanCmd(),
		newKeyCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("LicenseGate %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// connect opens the database and builds the licensing service.
func connect(ctx context.Context) (*db.DB, *licensing.Service, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)

	cfg := db.DefaultConfig(url)
	cfg.MaxConns = 5
	cfg.MinConns = 1

	database, err := db.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	return database, licensing.NewService(database, database, logger), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newPlanCmd() *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage entitlement plans",
	}
	planCmd.AddCommand(newPlanCreateCmd(), newPlanListCmd())
	return planCmd
}

func newPlanCreateCmd() *cobra.Command {
	var (
		name          string
		durationType  string
		durationValue int
		maxDevices    int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			dt := models.DurationType(durationType)
			if !dt.IsValid() {
				return fmt.Errorf("invalid duration type %q (valid: %v)", durationType, models.ValidDurationTypes())
			}
			if durationValue < 1 || maxDevices < 1 {
				return fmt.Errorf("duration value and max devices must be at least 1")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			database, _, err := connect(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			plan := models.NewPlan(name, dt, durationValue, maxDevices)
			if err := database.CreatePlan(ctx, plan); err != nil {
				return err
			}
			return printJSON(plan)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Plan name (required)")
	cmd.Flags().StringVar(&durationType, "duration-type", "MONTH", "Duration unit: HOUR, DAY, WEEK, MONTH, QUARTER, YEAR, LIFETIME")
	cmd.Flags().IntVar(&durationValue, "duration-value", 1, "Number of duration units")
	cmd.Flags().IntVar(&maxDevices, "max-devices", 1, "Device quota for keys on this plan")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newPlanListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			database, _, err := connect(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			plans, err := database.ListPlans(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDURATION\tMAX DEVICES")
			for _, p := range plans {
				fmt.Fprintf(w, "%s\t%s\t%d %s\t%d\n", p.ID, p.Name, p.DurationValue, p.DurationType, p.MaxDevices)
			}
			return w.Flush()
		},
	}
}

func newKeyCmd() *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "Manage license keys",
	}
	keyCmd.AddCommand(
		newKeyCreateCmd(),
		newKeyListCmd(),
		newKeyShowCmd(),
		newKeyStatusCmd("suspend", "Suspend a key until an explicit unsuspend"),
		newKeyStatusCmd("unsuspend", "Lift a suspension"),
		newKeyStatusCmd("ban", "Permanently ban a key"),
		newKeyStatusCmd("revoke", "Permanently revoke a key"),
		newKeyExtendCmd(),
		newKeyResetHWIDCmd(),
	)
	return keyCmd
}

func newKeyCreateCmd() *cobra.Command {
	var (
		planID     string
		notes      string
		maxDevices int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new license key against a plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(planID)
			if err != nil {
				return fmt.Errorf("invalid plan ID: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			database, service, err := connect(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			var override *int
			if maxDevices > 0 {
				override = &maxDevices
			}

			key, err := service.CreateKey(ctx, id, notes, override)
			if err != nil {
				return err
			}
			return printJSON(key)
		},
	}

	cmd.Flags().StringVar(&planID, "plan", "", "Plan ID (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes on the key")
	cmd.Flags().IntVar(&maxDevices, "max-devices", 0, "Override the plan's device quota")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}

func newKeyListCmd() *cobra.Command {
	var (
		status string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issued license keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			st := models.KeyStatus(status)
			if status != "" && !st.IsValid() {
				return fmt.Errorf("invalid status %q", status)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			database, _, err := connect(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			keys, err := database.ListLicenseKeys(ctx, st, limit, offset)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tSTATUS\tDEVICES\tEXPIRES")
			for _, k := range keys {
				expires := "never"
				if k.ExpiresAt != nil {
					expires = k.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\n", k.KeyCode, k.Status, k.CurrentDevices, k.MaxDevices, expires)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum keys to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Listing offset")

	return cmd
}

func newKeyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <key-code>",
		Short: "Show a license key with its device bindings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			database, _, err := connect(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			key, err := database.GetLicenseKeyByCode(ctx, args[0])
			if err != nil {
				return err
			}
			activations, err := database.GetActivationsByKeyID(ctx, key.ID)
			if err != nil {
				return err
			}

			return printJSON(map[string]any{
				"key":         key,
				"activations": activations,
			})
		},
	}
}

func newKeyStatusCmd(op, short string) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   op + " <key-code>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			database, service, err := connect(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			var key *models.LicenseKey
			switch op {
			case "suspend":
				key, err = service.Suspend(ctx, args[0], reason)
			case "unsuspend":
				key, err = service.Unsuspend(ctx, args[0])
			case "ban":
				key, err = service.Ban(ctx, args[0], reason)
			case "revoke":
				key, err = service.Revoke(ctx, args[0], reason)
			}
			if err != nil {
				return err
			}
			return printJSON(key)
		},
	}

	if op != "unsuspend" {
		cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the usage ledger")
	}

	return cmd
}

func newKeyExtendCmd() *cobra.Command {
	var (
		durationType  string
		durationValue int
	)

	cmd := &cobra.Command{
		Use:   "extend <key-code>",
		Short: "Extend a key's expiration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt := models.DurationType(durationType)
			if !dt.IsValid() {
				return fmt.Errorf("invalid duration type %q", durationType)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			database, service, err := connect(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			key, err := service.Extend(ctx, args[0], dt, durationValue)
			if err != nil {
				return err
			}
			return printJSON(key)
		},
	}

	cmd.Flags().StringVar(&durationType, "duration-type", "MONTH", "Duration unit")
	cmd.Flags().IntVar(&durationValue, "duration-value", 1, "Number of duration units")

	return cmd
}

func newKeyResetHWIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-hwid <key-code>",
		Short: "Release every device binding on a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			database, service, err := connect(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			key, err := service.ResetHWID(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(key)
		},
	}
}
