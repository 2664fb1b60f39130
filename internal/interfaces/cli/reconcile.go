package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
)

func newReconcileCmd() *cobra.Command {
	var (
		dataDir string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-apply mineral reconciliation to stored rows and fill missing mineral groups",
		Long: `Re-run the mineral taxonomy reconciliation over every simulant's stored
mineral rows.  Double-counted parent/child minerals and oversized totals are
repaired, and missing mineral group rows are derived.  Tables are backed up
before they are rewritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if dataDir != "" {
				cliCtx.Config.Store.DataDir = dataDir
				cliCtx.Config.Store.BackupDir = ""
			}
			_, infra, err := openInfra(cmd)
			if err != nil {
				return err
			}
			defer infra.Close()

			rep, err := extraction.Reconcile(cmd.Context(), infra.Store, dryRun, cliCtx.Logger)
			if err != nil {
				return err
			}
			return PrintResult(cmd, rep, func(w io.Writer) { printRepair(w, rep) })
		},
	}
	cmd.Flags().StringVar(&dataDir, "data", "", "JSON store directory (default: store.data_dir)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the repair without writing")
	return cmd
}

func printRepair(w io.Writer, rep *extraction.RepairReport) {
	rows := make([][]string, 0, len(rep.Entities))
	rewritten, groups := 0, 0
	for _, e := range rep.Entities {
		action := "unchanged"
		if e.Rewritten {
			action = "rewritten"
			rewritten++
		}
		groups += e.GroupsAdded
		rows = append(rows, []string{
			e.EntityID, e.EntityName,
			fmt.Sprintf("%.2f", e.TotalBefore), fmt.Sprintf("%.2f", e.TotalAfter),
			action, fmt.Sprintf("%d", e.GroupsAdded), strings.Join(e.Dropped, ", "),
		})
	}
	fmt.Fprint(w, FormatTable([]string{"ID", "NAME", "BEFORE", "AFTER", "MINERALS", "GROUPS ADDED", "DROPPED"}, rows))
	suffix := ""
	if rep.DryRun {
		suffix = " (dry run)"
	}
	fmt.Fprintf(w, "%d simulants checked, %d rewritten, %d group rows added, %d errors%s\n",
		len(rep.Entities), rewritten, groups, rep.Errors, suffix)
}
