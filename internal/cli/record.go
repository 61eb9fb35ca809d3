package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RecordStatus is the status command's payload.
type RecordStatus struct {
	Remembered bool   `json:"remembered"`
	Role       string `json:"role,omitempty"`
	Code       string `json:"code,omitempty"`
	Answers    int    `json:"answers"`
	Locked     bool   `json:"locked"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the remembered session and local document",
		Long: `Show the session remembered for resume and a summary of the local
document, read from the configured databases.

Example:
  peersync status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			records, err := openRecords(cfg)
			if err != nil {
				return err
			}
			defer records.Close()
			docs, err := openDocs(cfg)
			if err != nil {
				return err
			}
			defer docs.Close()

			var st RecordStatus
			d, found, err := records.Load(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read session record", err)
			}
			if found {
				st.Remembered, st.Role, st.Code = true, string(d.Role), d.Code
			}
			doc, err := docs.Snapshot()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read document", err)
			}
			st.Answers = len(doc)
			if st.Locked, err = docs.Locked(); err != nil {
				return WrapExitError(ExitCommandError, "failed to read document", err)
			}

			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(st, formatRecordStatus(st))
		},
	}
}

func formatRecordStatus(st RecordStatus) string {
	session := "No remembered session."
	if st.Remembered {
		session = fmt.Sprintf("Remembered session: %s (%s)", st.Code, st.Role)
	}
	lock := ""
	if st.Locked {
		lock = ", locked"
	}
	return fmt.Sprintf("%s\nDocument: %d answers%s", session, st.Answers, lock)
}

// NewForgetCommand creates the forget command.
func NewForgetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Forget the remembered session",
		Long: `Clear the remembered session so the next "peersync resume" does nothing.
The local document is kept.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			records, err := openRecords(cfg)
			if err != nil {
				return err
			}
			defer records.Close()

			if err := records.Clear(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, "failed to clear session record", err)
			}
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(map[string]bool{"forgotten": true}, "Session forgotten.")
		},
	}
}
