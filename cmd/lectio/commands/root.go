// Package commands implements the lectio command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mmcdole/lectio/internal/app"
)

// Builder constructs the application graph once flags are parsed.
type Builder func(ctx context.Context, opts app.Options) (*app.App, error)

// CLI represents the command line interface for lectio.
type CLI struct {
	build   Builder
	app     *app.App
	opts    app.Options
	rootCmd *cobra.Command
}

// New creates a new CLI. A nil builder uses app.New.
func New(version string, build Builder) *CLI {
	if build == nil {
		build = app.New
	}
	c := &CLI{build: build}

	rootCmd := &cobra.Command{
		Use:           "lectio",
		Short:         "Scripture, doctrine and learning tracks that keep working offline",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.build(cmd.Context(), c.opts)
			if err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			c.app = a
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.opts.ConfigPath, "config", "", "Path to config file")
	flags.StringVar(&c.opts.Locale, "locale", "", "Content locale (overrides config)")
	flags.BoolVar(&c.opts.Offline, "offline", false, "Use the local cache only")

	rootCmd.AddCommand(
		c.newBooksCmd(),
		c.newChaptersCmd(),
		c.newChapterCmd(),
		c.newPassageCmd(),
		c.newParagraphsCmd(),
		c.newDocumentsCmd(),
		c.newDocumentCmd(),
		c.newTracksCmd(),
		c.newTrackCmd(),
		c.newProgressCmd(),
		c.newPrefetchCmd(),
		c.newAuditCmd(),
		c.newSearchCmd(),
		c.newPurgeCmd(),
		c.newStatusCmd(),
	)

	c.rootCmd = rootCmd
	return c
}

// Execute runs the root command and releases the app afterwards.
func (c *CLI) Execute(ctx context.Context) error {
	err := c.rootCmd.ExecuteContext(ctx)
	if c.app != nil {
		err = errors.Join(err, c.app.Close())
		c.app = nil
	}
	return err
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput redirects command output. Used for testing.
func (c *CLI) SetOutput(out, errOut io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(errOut)
}

func (c *CLI) printer(cmd *cobra.Command) *printer {
	return newPrinter(cmd.OutOrStdout())
}

func positiveInt(name, arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive number", name, arg)
	}
	return n, nil
}
