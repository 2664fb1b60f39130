package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

type pushedDoc struct {
	File string `json:"file"`
	Key  string `json:"key"`
}

func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage documents in the object store",
	}
	cmd.AddCommand(newDocsPushCmd())
	return cmd
}

func newDocsPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <file>...",
		Short: "Upload documents to the MinIO bucket read by 'run --source minio'",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, infra, err := openInfra(cmd)
			if err != nil {
				return err
			}
			defer infra.Close()
			if infra.MinIO == nil {
				return errors.New(errors.ErrCodeServiceUnavailable, "minio is not enabled (minio.enabled)")
			}

			docs := infra.MinIO.Documents()
			pushed := make([]pushedDoc, 0, len(args))
			for _, path := range args {
				if !extraction.Supported(path) {
					return errors.Newf(errors.ErrCodeUnsupportedFormat, "unsupported document %s", path)
				}
				data, err := os.ReadFile(path)
				if err != nil {
					return errors.Wrap(err, errors.ErrCodeStorageError, "read document").WithDetail(path)
				}
				key, err := docs.Upload(cmd.Context(), filepath.Base(path), data)
				if err != nil {
					return err
				}
				pushed = append(pushed, pushedDoc{File: path, Key: key})
			}
			return PrintResult(cmd, pushed, func(w io.Writer) {
				for _, p := range pushed {
					fmt.Fprintf(w, "%s -> %s\n", p.File, p.Key)
				}
			})
		},
	}
}
