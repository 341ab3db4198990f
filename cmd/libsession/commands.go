package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	domainauth "github.com/target/libsession/internal/domain/auth"
	"github.com/target/libsession/internal/guard"
	"github.com/target/libsession/internal/ports"
	"github.com/target/libsession/internal/service"
	"golang.org/x/sync/errgroup"
)

// errAccessDenied is returned by the guard command when the policy redirects.
var errAccessDenied = errors.New("access denied")

func loginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := secretFlag(cmd, password, "Password: ")
			if err != nil {
				return err
			}
			return a.withSession(cmd, func(ctx context.Context, env *sessionEnv) error {
				mgr := env.Container.Manager
				if err := resultErr(mgr.Login(ctx, email, pw)); err != nil {
					return err
				}
				return writeSession(cmd.OutOrStdout(), mgr.Session())
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (prompted when empty)")
	return cmd
}

func registerCmd(a *app) *cobra.Command {
	var in ports.RegisterInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := secretFlag(cmd, in.Password, "Password: ")
			if err != nil {
				return err
			}
			in.Password = pw
			return a.withSession(cmd, func(ctx context.Context, env *sessionEnv) error {
				if err := resultErr(env.Container.Manager.Register(ctx, in)); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Account created; sign in with %s login\n", appName)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&in.FullName, "name", "n", "", "Full name")
	cmd.Flags().StringVarP(&in.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&in.Password, "password", "p", "", "Account password (prompted when empty)")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored credential and notify the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, env *sessionEnv) error {
				if err := resultErr(env.Container.Manager.Logout(ctx)); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return err
			})
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Resolve the session for the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, env *sessionEnv) error {
				s := env.Container.Manager.Initialize(ctx)
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), s)
				}
				return writeSession(cmd.OutOrStdout(), s)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the session as JSON")
	return cmd
}

// statusReport combines the resolved session with a raw view of the credential slot.
type statusReport struct {
	Store      string              `json:"store"`
	Backend    string              `json:"backend"`
	Session    domainauth.Session  `json:"session"`
	Credential service.Diagnostics `json:"credential"`
}

func statusCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show session, credential and backend status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, env *sessionEnv) error {
				c := env.Container
				report := statusReport{Store: c.StoreLocation, Backend: c.Backend.BaseURL()}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					report.Credential = c.Manager.Diagnostics(gctx)
					return nil
				})
				g.Go(func() error {
					report.Session = c.Manager.Initialize(gctx)
					return nil
				})
				if err := g.Wait(); err != nil {
					return err
				}
				report.Credential.Session = report.Session

				if asJSON {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				return writeStatus(cmd, report)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func writeStatus(cmd *cobra.Command, r statusReport) error {
	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "STORE\t%s\n", r.Store)
	fmt.Fprintf(tw, "BACKEND\t%s\n", r.Backend)
	fmt.Fprintf(tw, "CREDENTIAL\t%s\n", credentialLine(r.Credential))
	if p := r.Credential.Profile; p != nil {
		line := fmt.Sprintf("HTTP %d", p.Status)
		if p.Error != "" {
			line = p.Error
		}
		fmt.Fprintf(tw, "PROFILE PROBE\t%s\n", line)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(out); err != nil {
		return err
	}
	return writeSession(out, r.Session)
}

func credentialLine(d service.Diagnostics) string {
	switch {
	case !d.CredentialPresent:
		return "none"
	case d.ClaimsError != "":
		return fmt.Sprintf("%s (undecodable: %s)", d.Fingerprint, d.ClaimsError)
	case d.Expired:
		return fmt.Sprintf("%s (expired %s)", d.Fingerprint, d.ExpiresAt.Format(time.RFC3339))
	default:
		return fmt.Sprintf("%s (expires %s)", d.Fingerprint, d.ExpiresAt.Format(time.RFC3339))
	}
}

func forgotPasswordCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, env *sessionEnv) error {
				if err := resultErr(env.Container.Manager.ForgotPassword(ctx, email)); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "If the account exists, a reset email is on its way")
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	return cmd
}

func resetPasswordCmd(a *app) *cobra.Command {
	var token, password string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with a reset token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := secretFlag(cmd, password, "New password: ")
			if err != nil {
				return err
			}
			return a.withSession(cmd, func(ctx context.Context, env *sessionEnv) error {
				if err := resultErr(env.Container.Manager.ResetPassword(ctx, token, pw)); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Password updated")
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&token, "token", "t", "", "Reset token")
	cmd.Flags().StringVarP(&password, "password", "p", "", "New password (prompted when empty)")
	return cmd
}

func debugCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Dump credential claims and the raw profile response as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, env *sessionEnv) error {
				return writeJSON(cmd.OutOrStdout(), env.Container.Manager.Diagnostics(ctx))
			})
		},
	}
}

func guardCmd(a *app) *cobra.Command {
	var roles []string
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Evaluate a route guard for the current session",
		Long: `guard resolves the session and evaluates a route guard against it.
Without --role it requires an authenticated session; with one or more --role
flags it requires one of the listed roles. A redirect exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			policy, err := guardPolicy(roles)
			if err != nil {
				return err
			}
			return a.withSession(cmd, func(ctx context.Context, env *sessionEnv) error {
				s := env.Container.Manager.Initialize(ctx)
				outcome := policy(s)
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s (status=%s role=%s)\n", outcome, s.Status, s.Role); err != nil {
					return err
				}
				if outcome == guard.Redirect {
					return fmt.Errorf("%w: redirect to %s", errAccessDenied, env.Config.Guard.LandingPath)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&roles, "role", "r", nil, "Allowed role (member, librarian, admin); repeatable")
	return cmd
}

func guardPolicy(names []string) (guard.Policy, error) {
	if len(names) == 0 {
		return guard.Authenticated, nil
	}
	roles := make([]domainauth.Role, 0, len(names))
	for _, name := range names {
		r, ok := domainauth.ParseRole(name)
		if !ok {
			return nil, fmt.Errorf("unknown role %q: want one of member, librarian, admin", strings.TrimSpace(name))
		}
		roles = append(roles, r)
	}
	return guard.AnyRole(roles...), nil
}
