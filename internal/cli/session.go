package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/peersync/internal/room"
	"github.com/roach88/peersync/internal/session"
)

// startFunc begins the session on a running coordinator. Returning false
// ends the command once queued work is done.
type startFunc func(ctx context.Context, n *node, out io.Writer) (keepRunning bool, err error)

// NewHostCommand creates the host command.
func NewHostCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "host [code]",
		Short: "Host a session",
		Long: `Host a sync session and serve the local document to clients.

Without a code a fresh six-character room code is drawn. The session is
remembered so "peersync resume" can restore it after a restart.

Console commands (one per line on stdin):
  set <key> <value>   edit the document and broadcast it
  lock | unlock       make clients read-only, or writable again
  status              print the session status
  leave               end the session and forget it
  quit                exit, keeping the session for resume

Example:
  peersync host
  peersync host AB12CD --config ./peersync.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code := ""
			if len(args) == 1 {
				code = args[0]
			}
			return runSession(cmd, rootOpts, func(ctx context.Context, n *node, out io.Writer) (bool, error) {
				_, err := n.coord.StartHost(code)
				if err != nil {
					return false, WrapExitError(ExitCommandError, "invalid room code", err)
				}
				return true, nil
			})
		},
	}
}

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <code>",
		Short: "Join a hosted session",
		Long: `Join the session hosted under a room code. Codes are case-insensitive.

The local document is replaced by the host's. Edits made while the host is
unreachable are queued and sent once the connection is back.

Example:
  peersync join ab12cd`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, rootOpts, func(ctx context.Context, n *node, out io.Writer) (bool, error) {
				if err := n.coord.JoinRoom(args[0]); err != nil {
					return false, WrapExitError(ExitCommandError, "invalid room code", err)
				}
				return true, nil
			})
		},
	}
}

// NewResumeCommand creates the resume command.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Restore the remembered session",
		Long: `Restore the session remembered from the last run.

A hosted session is hosted again under the same code. A joined session is
not rejoined automatically; it is forgotten and has to be joined again.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, rootOpts, func(ctx context.Context, n *node, out io.Writer) (bool, error) {
				d, found, err := n.records.Load(ctx)
				if err != nil {
					return false, WrapExitError(ExitCommandError, "failed to read session record", err)
				}
				if !found {
					fmt.Fprintln(out, "No session to resume.")
					return false, nil
				}
				if err := n.coord.Resume(); err != nil {
					return false, err
				}
				return d.Role == room.RoleHost, nil
			})
		},
	}
}

// runSession runs a coordinator until the session fails, the console asks
// to quit, or the process is signalled.
func runSession(cmd *cobra.Command, opts *RootOptions, start startFunc) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	out := cmd.OutOrStdout()
	failed := make(chan struct{})
	var once sync.Once
	listener := func(st session.Status) {
		slog.Debug("status", "state", st.State, "code", st.Code,
			"participants", st.Participants, "error", st.Error, "locked", st.Locked)
		if st.State == session.StateIdle && st.Error {
			once.Do(func() { close(failed) })
		}
	}

	n, err := openNode(ctx, opts, out, session.WithStatusListener(listener))
	if err != nil {
		return err
	}
	defer n.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- n.coord.Run(ctx) }()

	keepRunning, err := start(ctx, n, out)
	if err != nil || !keepRunning {
		n.coord.Shutdown()
		<-runErr
		return err
	}

	go console(ctx, cmd.InOrStdin(), n, out)

	select {
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return WrapExitError(ExitFailure, "session error", err)
		}
		return nil
	case <-failed:
		n.coord.Shutdown()
		<-runErr
		return NewExitError(ExitFailure, "session ended")
	}
}

// console applies line commands from in until EOF or ctx ends.
func console(ctx context.Context, in io.Reader, n *node, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "set":
			if len(fields) < 3 {
				fmt.Fprintln(out, "usage: set <key> <value>")
				continue
			}
			if err := localEdit(n, fields[1], strings.Join(fields[2:], " ")); err != nil {
				fmt.Fprintf(out, "edit rejected: %v\n", err)
			}
		case "lock", "unlock":
			_ = n.coord.SetLock(fields[0] == "lock")
		case "status":
			fmt.Fprintln(out, formatStatus(n.coord.Status()))
		case "leave":
			_ = n.coord.StopSync()
			n.coord.Shutdown()
			return
		case "quit":
			n.coord.Shutdown()
			return
		default:
			fmt.Fprintf(out, "unknown command %q\n", fields[0])
		}
	}
}

var errLocked = errors.New("the host locked the session")

// localEdit writes one answer and broadcasts the resulting document.
func localEdit(n *node, key, value string) error {
	locked, err := n.docs.Locked()
	if err != nil {
		return err
	}
	if locked && n.coord.Status().State == session.StateClient {
		return errLocked
	}
	if err := n.docs.Set(key, value); err != nil {
		return err
	}
	doc, err := n.docs.Snapshot()
	if err != nil {
		return err
	}
	return n.coord.SendUpdate(doc)
}

func formatStatus(st session.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "state=%s", st.State)
	if st.Code != "" {
		fmt.Fprintf(&b, " code=%s role=%s", st.Code, st.Role)
	}
	fmt.Fprintf(&b, " participants=%d locked=%t", st.Participants, st.Locked)
	if st.Error {
		b.WriteString(" error")
	}
	return b.String()
}
