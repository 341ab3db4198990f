package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/target/libsession/config"
	"github.com/target/libsession/internal/bootstrap"
	domainauth "github.com/target/libsession/internal/domain/auth"
)

// closeGrace is added to the logout timeout when waiting for shutdown.
const closeGrace = time.Second

type app struct {
	logLevel string
}

type sessionEnv struct {
	Config    *config.AppConfig
	Logger    *slog.Logger
	Container *bootstrap.SessionContainer
}

// withSession loads configuration, wires the session stack, runs fn and
// closes the stack, waiting for any pending logout notification.
func (a *app) withSession(cmd *cobra.Command, fn func(ctx context.Context, env *sessionEnv) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	logger := bootstrap.InitLogger(level)

	c, err := bootstrap.NewSessionContainer(ctx, bootstrap.SessionDeps{Config: &cfg, Logger: logger})
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}

	runErr := fn(ctx, &sessionEnv{Config: &cfg, Logger: logger, Container: c})

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Session.LogoutTimeout+closeGrace)
	defer cancel()
	if cerr := c.Close(closeCtx); cerr != nil {
		logger.WarnContext(ctx, "close session stack", "error", cerr)
	}
	return runErr
}

// resultErr turns an unsuccessful Result into an error for the exit status.
func resultErr(res domainauth.Result) error {
	if res.Success {
		return nil
	}
	return errors.New(res.Error)
}

// promptLine reads one line from in after writing label to out.
func promptLine(in io.Reader, out io.Writer, label string) (string, error) {
	if _, err := fmt.Fprint(out, label); err != nil {
		return "", err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// secretFlag returns value, or reads it from stdin when empty.
func secretFlag(cmd *cobra.Command, value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	return promptLine(cmd.InOrStdin(), cmd.ErrOrStderr(), label)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSession(w io.Writer, s domainauth.Session) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "STATUS\t%s\n", s.Status)
	fmt.Fprintf(tw, "ROLE\t%s\n", s.Role)
	if p := s.Profile; p != nil {
		fmt.Fprintf(tw, "USER\t%s\n", p.ID)
		fmt.Fprintf(tw, "EMAIL\t%s\n", p.Email)
		fmt.Fprintf(tw, "NAME\t%s\n", p.DisplayName)
	}
	if !s.ExpiresAt.IsZero() {
		fmt.Fprintf(tw, "EXPIRES\t%s\n", s.ExpiresAt.Format(time.RFC3339))
	}
	if s.LastError != "" {
		fmt.Fprintf(tw, "ERROR\t%s\n", s.LastError)
	}
	return tw.Flush()
}
