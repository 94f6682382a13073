package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/navtags"
	"github.com/jpalmerr/navtags/config"
)

// tagsCmd fetches tags once and prints them.
var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Fetch tags once and print them",
	Long: `Fetch the tags from the configured source once and print them as a
table, or as JSON with --json. Nothing is cached and no server is started.

Example:
  navtags tags -c navtags.yaml
  navtags tags -c navtags.yaml --json`,
	RunE: runTags,
}

func init() {
	rootCmd.AddCommand(tagsCmd)

	tagsCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	tagsCmd.Flags().Bool("json", false, "print tags as JSON")
	_ = tagsCmd.MarkFlagRequired("config")
}

func runTags(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	src, err := config.BuildSource(cfg)
	if err != nil {
		return fmt.Errorf("failed to build source: %w", err)
	}
	nt, err := navtags.New(
		navtags.WithSource(src),
		navtags.WithHeadless(),
		navtags.WithLogger(newLogger(cmd, os.Stderr)),
	)
	if err != nil {
		return fmt.Errorf("failed to create navtags: %w", err)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	result := nt.FetchOnce(ctx)
	if result.Error != nil {
		return fmt.Errorf("fetch failed: %w", result.Error)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result.Tags)
	}

	printTags(cmd.OutOrStdout(), result)
	return nil
}

// styleColors maps badge style hints to terminal colors.
var styleColors = map[string]*color.Color{
	"important": color.New(color.FgRed, color.Bold),
	"warning":   color.New(color.FgYellow),
	"success":   color.New(color.FgGreen),
	"info":      color.New(color.FgCyan),
}

// printTags renders tags as an aligned table.
func printTags(w io.Writer, result navtags.TagResult) {
	bold := color.New(color.Bold)
	faint := color.New(color.Faint)

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold.Sprint("NAME"), bold.Sprint("VALUE"), bold.Sprint("STYLE"))
	for _, tag := range result.Tags {
		value := tag.Value
		if c, ok := styleColors[tag.Style]; ok {
			value = c.Sprint(value)
		}
		tbl.AddRow(tag.Name, value, faint.Sprint(tag.Style))
	}
	tbl.RightAlign(1)

	_, _ = fmt.Fprintln(w, tbl)
	_, _ = fmt.Fprintln(w, faint.Sprintf("%d tags in %dms", len(result.Tags), result.Latency.Milliseconds()))
}

// signalContext is used by commands that run until interrupted.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
