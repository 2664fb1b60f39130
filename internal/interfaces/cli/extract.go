package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

func newExtractCmd() *cobra.Command {
	var entity string

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract properties from one document without writing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, infra, err := openInfra(cmd)
			if err != nil {
				return err
			}
			defer infra.Close()

			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeStorageError, "read document").WithDetail(path)
			}
			svc, err := infra.NewService(cmd.Context())
			if err != nil {
				return err
			}
			ref := extraction.DocumentRef{Name: filepath.Base(path), Key: path, Size: int64(len(data))}
			res := svc.ExtractDocument(cmd.Context(), ref, data, entity)
			if res.Err != nil {
				return res.Err
			}
			return PrintResult(cmd, res.Records, func(w io.Writer) {
				fmt.Fprintf(w, "%s: %s document, mentions %v\n", ref.Name, res.Kind, res.Mentioned)
				if len(res.Unmatched) > 0 {
					fmt.Fprintf(w, "not in catalog: %v\n", res.Unmatched)
				}
				for _, rec := range res.Records {
					printRecord(w, rec)
				}
			})
		},
	}
	cmd.Flags().StringVar(&entity, "simulant", "", "only report this simulant")
	return cmd
}

func printRecord(w io.Writer, rec *simulant.ExtractionRecord) {
	id := rec.EntityID
	if id == "" {
		id = "not in catalog"
	}
	fmt.Fprintf(w, "\n%s (%s) confidence %.1f via %v\n", rec.EntityName, id, rec.Confidence, rec.ExtractionMethods)
	printValues(w, "chemical", rec.ChemicalComposition)
	printValues(w, "mineral", rec.MineralComposition)
	printValues(w, "groups", rec.MineralGroups)
	printValues(w, "physical", rec.PhysicalProperties)
	for _, k := range simulant.SortedKeys(rec.PhysicalText) {
		fmt.Fprintf(w, "  physical  %s = %s\n", k, rec.PhysicalText[k])
	}
	for _, k := range simulant.SortedKeys(rec.BasicInfo) {
		fmt.Fprintf(w, "  info      %s = %s\n", k, rec.BasicInfo[k])
	}
	if len(rec.RawMaterials) > 0 {
		fmt.Fprintf(w, "  info      raw_materials = %s\n", strings.Join(rec.RawMaterials, ", "))
	}
	for _, k := range simulant.SortedKeys(rec.Metadata) {
		fmt.Fprintf(w, "  metadata  %s = %s\n", k, rec.Metadata[k])
	}
	for _, n := range rec.Notes {
		fmt.Fprintf(w, "  note: %s\n", n)
	}
}

func printValues(w io.Writer, label string, values map[string]float64) {
	if len(values) == 0 {
		return
	}
	total := 0.0
	for _, k := range simulant.SortedKeys(values) {
		fmt.Fprintf(w, "  %-9s %s = %g\n", label, k, values[k])
		total += values[k]
	}
	if label != "physical" {
		fmt.Fprintf(w, "  %-9s total = %.2f\n", label, total)
	}
}
