package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dird/internal/events"
	"github.com/desertthunder/dird/internal/formatter"
	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/desertthunder/dird/internal/ui"
	"github.com/urfave/cli/v3"
)

// Output formats accepted by --format.
const (
	formatTable = "table"
	formatJSON  = "json"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	palette    *ui.Palette

	eventHandler events.Handler
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Palette    *ui.Palette
	// EventHandler receives the events published while a command runs; defaults to logging them.
	EventHandler events.Handler
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Palette == nil {
		opts.Palette = ui.Default()
	}
	if opts.EventHandler == nil {
		opts.EventHandler = events.LogHandler(opts.Logger)
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		palette:    opts.Palette,

		eventHandler: opts.EventHandler,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, lookupCommand, reverseCommand, phoneCommand, favoritesCommand, personalCommand,
		phonebookCommand, sourcesCommand, profilesCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads the file named by --config when it exists; the defaults stay in effect otherwise.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	r.configPath = path

	if _, err := os.Stat(path); err == nil {
		config, err := shared.LoadConfig(path)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", path)
	}

	shared.ConfigureLogger(r.logger, r.config.Log)
	return ctx, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	return r.writePlain(format+"\n", args...)
}

// writeTable renders rows, or a placeholder line when there are none.
func (r *Runner) writeTable(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		return r.writePlainln("%s", r.palette.Help("nothing to show"))
	}
	return r.writePlainln("%s", r.palette.Table(headers, rows))
}

// writeLookup renders a lookup result in format.
func (r *Runner) writeLookup(result *models.LookupResult, format, title string, pretty bool) error {
	switch format {
	case formatJSON:
		return r.writeJSON(result, pretty)
	case formatTable, "":
		return r.writePlainln("%s", r.palette.LookupTable(result))
	default:
		out, err := formatter.Export(result, format, title)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		_, err = r.output.Write(out)
		if err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}
}

// writeResult writes v as JSON, or through table when the format is table.
func (r *Runner) writeResult(cmd *cli.Command, v any, table func() error) error {
	if cmd.String("format") == formatJSON {
		return r.writeJSON(v, cmd.Bool("pretty"))
	}
	return table()
}
