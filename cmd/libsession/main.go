// Package main provides the libsession command-line client.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const appName = "libsession"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1) //nolint:forbidigo // CLI must exit with failure status when a command fails
	}
}

func execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	cmd := rootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

func rootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Session client for the library backend",
		Long: `libsession signs in to the library backend and keeps the resulting
credential in a local credential store (memory, sqlite or redis).

Configuration comes from the environment (API_BASE_URL, CREDENTIAL_STORE, ...)
and an optional .env file in the working directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")

	cmd.AddCommand(
		loginCmd(a),
		registerCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		statusCmd(a),
		forgotPasswordCmd(a),
		resetPasswordCmd(a),
		debugCmd(a),
		guardCmd(a),
	)
	return cmd
}
