// Package cli implements the regolith command line: single-document
// extraction, batch runs, the reconcile repair pass, catalog management,
// document upload and schema migrations.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/Regolith-Intelligence/internal/app"
	"github.com/turtacn/Regolith-Intelligence/internal/config"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	EnvFile      string
	LogLevel     string
	OutputFormat string
}

// CLIContext carries the loaded configuration through the command tree.
type CLIContext struct {
	Config       *config.Config
	ConfigFile   string
	Logger       logging.Logger
	OutputFormat string
}

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "regolith",
		Short: "Extract regolith simulant properties from technical documents",
		Long: "regolith reads simulant data sheets and research papers, extracts chemical,\n" +
			"mineral and physical properties, reconciles them across sources and fills the\n" +
			"simulant record store without overwriting data that is already there.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default: ./regolith.yaml, ~/.regolith/config.yaml, /etc/regolith/config.yaml)")
	pf.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file with API keys; missing files are ignored")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json)")

	cmd.AddCommand(
		newExtractCmd(),
		newRunCmd(),
		newReconcileCmd(),
		newCatalogCmd(),
		newDocsCmd(),
		newMigrateCmd(),
		newVersionCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	// version needs no configuration.
	if cmd.Name() == "version" {
		return nil
	}
	switch strings.ToLower(opts.OutputFormat) {
	case "text", "json":
	default:
		return errors.Newf(errors.ErrCodeBadRequest, "unknown output format %q (text|json)", opts.OutputFormat)
	}
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return err
	}
	cfg, used, err := config.Resolve(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "logger initialization failed")
	}
	logger.Debug("configuration loaded", logging.String("file", used))

	cliCtx := &CLIContext{Config: cfg, ConfigFile: used, Logger: logger, OutputFormat: strings.ToLower(opts.OutputFormat)}
	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
	return nil
}

// GetCLIContext extracts the CLIContext stored by the root command.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "CLIContext not found in command context")
	}
	return cliCtx, nil
}

// openInfra connects the configured backends for one command.
func openInfra(cmd *cobra.Command) (*CLIContext, *app.Infrastructure, error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	infra, err := app.Open(cmd.Context(), cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cliCtx, infra, nil
}

// Execute runs the root command with ctx and prints any error.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		PrintError(root, err)
		return err
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Output helpers
// ─────────────────────────────────────────────────────────────────────────────

// PrintResult writes data as JSON when --output json is set and calls text
// otherwise.
func PrintResult(cmd *cobra.Command, data interface{}, text func(w io.Writer)) error {
	if c, err := GetCLIContext(cmd); err == nil && c.OutputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), data)
	}
	text(cmd.OutOrStdout())
	return nil
}

func printJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// PrintError writes err to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}

// FormatTable renders headers and rows as an aligned text table.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len([]rune(h))
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if n := len([]rune(row[i])); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		var line strings.Builder
		for i := range headers {
			if i > 0 {
				line.WriteString("  ")
			}
			val := ""
			if i < len(cells) {
				val = cells[i]
			}
			line.WriteString(padRight(val, widths[i]))
		}
		sb.WriteString(strings.TrimRight(line.String(), " "))
		sb.WriteString("\n")
	}
	writeRow(headers)
	sep := make([]string, len(widths))
	for i, w := range widths {
		sep[i] = strings.Repeat("-", w)
	}
	writeRow(sep)
	for _, row := range rows {
		writeRow(row)
	}
	return sb.String()
}

func padRight(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
