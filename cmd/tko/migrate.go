package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Tomlord1122/takeout/internal/config"
	"github.com/Tomlord1122/takeout/internal/database"
)

func newMigrateCmd(cfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, revert or list database migrations",
	}

	withMigrator := func(fn func(cmd *cobra.Command, m *database.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			db, err := database.New(cfg().Database)
			if err != nil {
				return err
			}
			defer db.Close()
			return fn(cmd, database.NewMigrator(db.SQL()))
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m *database.Migrator) error {
			n, err := m.Up(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
			return nil
		}),
	}

	var steps int
	down := &cobra.Command{
		Use:   "down [N]",
		Short: "Revert the newest N migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			steps = 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("N must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			return nil
		},
		RunE: withMigrator(func(cmd *cobra.Command, m *database.Migrator) error {
			n, err := m.Down(cmd.Context(), steps)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reverted %d migration(s)\n", n)
			return nil
		}),
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m *database.Migrator) error {
			rows, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED AT")
			for _, r := range rows {
				at := "pending"
				if r.Applied {
					at = r.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(tw, "%04d\t%s\t%s\n", r.Version, r.Name, at)
			}
			return tw.Flush()
		}),
	}

	cmd.AddCommand(up, down, status)
	return cmd
}
