package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/spf13/cobra"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitSourceNotAccess  = 3
	ExitInterrupted      = 4
	ExitStorageError     = 5
	ExitTransferFailed   = 6
	ExitValidationFailed = 7
)

// exitError carries the process exit code for a failed command. A nil err
// means the command already printed its own diagnostics.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stderr, "\n[offliner] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	cmd := newRootCommand(ctx)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}
	// Unknown commands and flag errors.
	fmt.Fprintf(stderr, "Error: %v\n", err)
	fmt.Fprintln(stderr, "Run 'offliner --help' for usage.")
	return ExitInvalidArgs
}

type rootOptions struct {
	configPath string
	verbosity  int
}

func newRootCommand(ctx context.Context) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "offliner",
		Short: "Build offline mirrors of Maven repositories",
		Long: `offliner reads descriptors and artifact lists, resolves every referenced
artifact and downloads it, together with its descriptor, from an ordered
list of mirrors into a local repository layout. Every file is verified
against the mirror's md5 and sha1 checksums before it counts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	fs := cmd.PersistentFlags()
	fs.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	fs.CountVarP(&opts.verbosity, "verbose", "v", "Increase log verbosity (repeatable)")

	cmd.AddCommand(
		newMirrorCommand(ctx, opts),
		newValidateCommand(ctx, opts),
		newDeleteCommand(ctx, opts),
	)
	return cmd
}

// logger writes [offliner]-prefixed log lines to w.
func (o *rootOptions) logger(w io.Writer) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(w, "[offliner] %s: %s\n", prefix, args)
			return
		}
		fmt.Fprintf(w, "[offliner] %s\n", args)
	}, funcr.Options{Verbosity: o.verbosity})
}
