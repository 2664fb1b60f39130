package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/Regolith-Intelligence/internal/app"
	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/internal/config"
	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/llm"
)

type runOptions struct {
	docs      string
	source    string
	simulant  string
	mode      string
	dryRun    bool
	workers   int
	threshold float64
	minSrc    int
	model     string
	noLLM     bool
}

func newRunCmd() *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract every document of a directory or bucket into the record store",
		Long: `Process a batch of documents, aggregate the values found for each simulant and
apply them to the record store.

Modes:
  auto         write fields that clear the confidence bar, queue the rest
  conflicts    write nothing; list what would be written and what needs review
  interactive  write confident fields and ask about each of the others

Stored values are never overwritten; a differing extracted value is reported
as a conflict.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := o.apply(cmd, cliCtx.Config); err != nil {
				return err
			}
			mode, err := extraction.ParseMode(o.mode)
			if err != nil {
				return err
			}

			infra, err := app.Open(cmd.Context(), cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer infra.Close()

			var opts []extraction.Option
			if mode == extraction.ModeInteractive {
				opts = append(opts, extraction.WithReviewer(NewPromptReviewer(cmd.InOrStdin(), cmd.OutOrStdout())))
			}
			svc, err := infra.NewService(cmd.Context(), opts...)
			if err != nil {
				return err
			}
			src, err := infra.Documents(o.source, o.docs)
			if err != nil {
				return err
			}

			report, err := svc.Run(cmd.Context(), src, extraction.RunRequest{
				Simulant: o.simulant,
				Mode:     mode,
				DryRun:   o.dryRun,
			})
			if err != nil {
				return err
			}
			cliCtx.Logger.Info("run finished", report.Fields()...)
			return PrintResult(cmd, report, report.Print)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.docs, "docs", "", "documents directory (default: worker.docs_dir)")
	f.StringVar(&o.source, "source", "local", "document source (local, minio)")
	f.StringVar(&o.simulant, "simulant", "", "only process this simulant")
	f.StringVar(&o.mode, "mode", "", "auto, conflicts or interactive (default: extraction.mode)")
	f.BoolVar(&o.dryRun, "dry-run", false, "count what would be written without writing")
	f.IntVar(&o.workers, "workers", 0, "documents processed in parallel")
	f.Float64Var(&o.threshold, "confidence-threshold", 0, "auto-fill confidence bar in [0,1]")
	f.IntVar(&o.minSrc, "min-sources", 0, "sources required for auto-fill")
	f.StringVar(&o.model, "model", "", "enable the LLM collaborators with provider/model, e.g. openai/gpt-4o-mini")
	f.BoolVar(&o.noLLM, "no-llm", false, "disable the LLM collaborators")
	return cmd
}

// apply folds explicitly set flags into cfg.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if o.docs == "" {
		o.docs = cfg.Worker.DocsDir
	}
	if o.mode == "" {
		o.mode = string(cfg.Extraction.Run.Mode)
	}
	if !f.Changed("source") && cfg.Worker.Source != "" {
		o.source = cfg.Worker.Source
	}
	if f.Changed("dry-run") {
		cfg.Extraction.Run.DryRun = o.dryRun
	} else {
		o.dryRun = cfg.Extraction.Run.DryRun
	}
	if f.Changed("workers") {
		cfg.Extraction.Run.Workers = o.workers
	}
	if f.Changed("confidence-threshold") {
		cfg.Aggregation.ConfidenceThreshold = o.threshold
	}
	if f.Changed("min-sources") {
		cfg.Aggregation.MinSources = o.minSrc
	}
	if o.model != "" {
		provider, model, err := llm.ParseModelFlag(o.model)
		if err != nil {
			return err
		}
		if provider != cfg.LLM.Provider {
			cfg.LLM.Endpoint, cfg.LLM.APIKey, cfg.LLM.APIKeyEnv = "", "", ""
		}
		cfg.LLM.Enabled, cfg.LLM.Provider, cfg.LLM.Model = true, provider, model
	}
	if o.noLLM {
		cfg.LLM.Enabled = false
	}
	return cfg.Validate()
}
