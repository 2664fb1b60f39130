package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	domain "github.com/turtacn/Regolith-Intelligence/internal/domain/simulant"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List or register simulants",
	}
	cmd.AddCommand(newCatalogListCmd(), newCatalogAddCmd())
	return cmd
}

func newCatalogListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the registered simulants and the names they are matched by",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, infra, err := openInfra(cmd)
			if err != nil {
				return err
			}
			defer infra.Close()

			cat, err := infra.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			entities := cat.Entities()
			return PrintResult(cmd, entities, func(w io.Writer) { printCatalog(w, entities) })
		},
	}
}

func printCatalog(w io.Writer, entities []*domain.Entity) {
	rows := make([][]string, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, []string{e.ID, e.Name, strings.Join(e.Variants(), ", ")})
	}
	fmt.Fprint(w, FormatTable([]string{"ID", "NAME", "MATCHED AS"}, rows))
	fmt.Fprintf(w, "%d simulants\n", len(entities))
}

func newCatalogAddCmd() *cobra.Command {
	var aliases []string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a simulant; registering an existing name returns its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, infra, err := openInfra(cmd)
			if err != nil {
				return err
			}
			defer infra.Close()

			e, err := infra.Store.Register(cmd.Context(), args[0], aliases...)
			if err != nil {
				return err
			}
			return PrintResult(cmd, e, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", e.ID, e.Name)
			})
		},
	}
	cmd.Flags().StringSliceVar(&aliases, "alias", nil, "alternative name (repeatable)")
	return cmd
}
