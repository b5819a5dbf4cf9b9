package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/stateintent/internal/config"
	"github.com/hpungsan/stateintent/internal/contract"
	"github.com/hpungsan/stateintent/internal/errors"
	"github.com/hpungsan/stateintent/internal/validate"
	"github.com/hpungsan/stateintent/internal/web"
)

// maxStdinBytes caps what the CLI reads from a pipe.
const maxStdinBytes = 1 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(cfg *config.Config, logger *zap.Logger) *cli.App {
	app := &cli.App{
		Name:    "stateintent",
		Usage:   "Turn customer situations into state-intent records",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(cfg, logger),
			convertCmd(cfg, logger),
			validateCmd(),
			presetsCmd(),
			mcpCmd(cfg, logger),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(cfg *config.Config, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Usage: "Listen address (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port (default from config)"},
			maxRetriesFlag(),
		},
		Action: func(c *cli.Context) error {
			effective, err := withOverrides(c, cfg)
			if err != nil {
				return outputError(err)
			}

			conv, closeSink, err := newController(c.Context, effective, logger)
			if err != nil {
				return outputError(err)
			}
			defer closeSink()

			return web.Run(c.Context, web.NewServer(conv, effective, logger), logger)
		},
	}
}

// convertCmd creates the convert command.
func convertCmd(cfg *config.Config, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "convert",
		Usage: "Convert text into a state-intent record (reads text from stdin unless --text is given)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Input text"},
			maxRetriesFlag(),
		},
		Action: func(c *cli.Context) error {
			effective, err := withOverrides(c, cfg)
			if err != nil {
				return outputError(err)
			}

			text := c.String("text")
			if !c.IsSet("text") {
				if !stdinHasData() {
					return outputError(errors.NewInvalidInput("text must be given with --text or piped via stdin"))
				}
				if text, err = readStdin(maxStdinBytes); err != nil {
					return outputError(errors.NewInvalidInput(err.Error()))
				}
			}

			conv, closeSink, err := newController(c.Context, effective, logger)
			if err != nil {
				return outputError(err)
			}
			defer closeSink()

			final, err := conv.Convert(c.Context, text)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(final)
		},
	}
}

// validateCmd creates the validate command.
func validateCmd() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check a record against the structural rules (reads record JSON from stdin)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "strict", Usage: "Also check the record against the full constraints schema"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidInput("record must be piped via stdin"))
			}
			doc, err := readStdin(maxStdinBytes)
			if err != nil {
				return outputError(errors.NewInvalidInput(err.Error()))
			}

			v := validate.Default()
			check := v.ValidateJSON
			if c.Bool("strict") {
				check = v.StrictJSON
			}
			outcome, err := check([]byte(doc))
			if err != nil {
				return outputError(err)
			}
			if err := outputJSON(outcome); err != nil {
				return err
			}
			if !outcome.OK {
				return cli.Exit(fmt.Sprintf("record failed validation with %d issue(s)", len(outcome.Issues)), 1)
			}
			return nil
		},
	}
}

// presetsCmd creates the presets command.
func presetsCmd() *cli.Command {
	return &cli.Command{
		Name:  "presets",
		Usage: "List the catalog of example inputs",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "markdown", Aliases: []string{"m"}, Usage: "Render the catalog for the terminal instead of JSON"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("markdown") {
				out, err := renderMarkdown(contract.PresetsMarkdown())
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				_, err = fmt.Fprint(os.Stdout, out)
				return err
			}

			presets, err := contract.LoadPresets()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return outputJSON(map[string]any{"presets": presets})
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(cfg *config.Config, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio",
		Flags: []cli.Flag{maxRetriesFlag()},
		Action: func(c *cli.Context) error {
			effective, err := withOverrides(c, cfg)
			if err != nil {
				return outputError(err)
			}
			if err := runMCP(effective, logger); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

func maxRetriesFlag() cli.Flag {
	return &cli.IntFlag{Name: "max-retries", Usage: "Retries after a validation failure (default from config)"}
}

// withOverrides returns a copy of cfg with any flags set on c applied.
func withOverrides(c *cli.Context, cfg *config.Config) (*config.Config, error) {
	effective := *cfg
	if c.IsSet("bind") {
		effective.Bind = c.String("bind")
	}
	if c.IsSet("port") {
		effective.Port = c.Int("port")
	}
	if c.IsSet("max-retries") {
		n := c.Int("max-retries")
		effective.MaxRetries = &n
	}
	if err := effective.Validate(); err != nil {
		return nil, errors.NewInvalidInput(err.Error())
	}
	return &effective, nil
}

// renderMarkdown styles md for a terminal, or plainly when stdout is piped.
func renderMarkdown(md []byte) (string, error) {
	style := glamour.WithStylePath("notty")
	if stat, err := os.Stdout.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
		style = glamour.WithAutoStyle()
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(80))
	if err != nil {
		return "", err
	}
	out, err := renderer.RenderBytes(md)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// outputError formats error for CLI. Messages that may carry collaborator
// detail are masked.
func outputError(err error) error {
	if e, ok := errors.As(err); ok {
		message := e.Message
		if !e.Public() {
			message = "an internal error occurred"
		}
		return cli.Exit(fmt.Sprintf("[%s] %s", e.Code, message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin, failing past limit bytes.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}
