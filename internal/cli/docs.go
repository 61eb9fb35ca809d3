package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// NewDocCommand creates the doc command and its subcommands.
func NewDocCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Inspect or edit the local document offline",
	}
	cmd.AddCommand(newDocShowCommand(rootOpts))
	cmd.AddCommand(newDocSetCommand(rootOpts))
	return cmd
}

func newDocShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print the local document",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			docs, err := openDocs(cfg)
			if err != nil {
				return err
			}
			defer docs.Close()

			doc, err := docs.Snapshot()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read document", err)
			}

			keys := make([]string, 0, len(doc))
			for k := range doc {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			lines := make([]string, len(keys))
			for i, k := range keys {
				lines[i] = fmt.Sprintf("%s = %s", k, doc[k])
			}
			text := strings.Join(lines, "\n")
			if len(lines) == 0 {
				text = "(empty)"
			}

			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(map[string]string(doc), text)
		},
	}
}

func newDocSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one answer in the local document",
		Long: `Set one answer while no session is running. The next session start
sends it along (hosts) or discards it in favor of the host's document
(clients).`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			docs, err := openDocs(cfg)
			if err != nil {
				return err
			}
			defer docs.Close()

			if err := docs.Set(args[0], args[1]); err != nil {
				return WrapExitError(ExitCommandError, "failed to write document", err)
			}
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(map[string]string{args[0]: args[1]}, fmt.Sprintf("%s = %s", args[0], args[1]))
		},
	}
}
