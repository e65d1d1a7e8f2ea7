package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/metrics"
)

var (
	sessionLogout      bool
	sessionRefreshUser bool
	sessionMetricsAddr string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the locally persisted session",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		printSession(cmd.OutOrStdout(), a.Manager().Session(), time.Now())
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if sessionLogout {
			err = a.Manager().Logout(cmd.Context())
			if errors.Is(err, authsdk.ErrNoSession) {
				err = nil
			}
		} else {
			err = a.Manager().ClearSession()
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
		return nil
	},
}

var sessionRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the stored session if it is close to expiry",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		m := a.Manager()
		if m.Session() == nil {
			return authsdk.ErrNoSession
		}
		refreshed, err := m.RefreshSessionIfNeeded(cmd.Context())
		if err != nil {
			return err
		}
		if sessionRefreshUser {
			if err := m.RefreshUser(cmd.Context()); err != nil {
				return err
			}
		}

		w := cmd.OutOrStdout()
		if refreshed {
			fmt.Fprintln(w, "session refreshed")
		} else {
			fmt.Fprintln(w, "session still fresh")
		}
		printSession(w, m.Session(), time.Now())
		return nil
	},
}

var sessionWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the stored session fresh until interrupted",
	Long: `Run the refresh timer in the foreground, persisting every refreshed
session. With the file store, changes written by other processes are picked
up as they happen. Metrics are served at /metrics when --metrics-addr is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := a.Logger()
		m := a.Manager()

		serverErrors := make(chan error, 1)
		var server *http.Server
		if sessionMetricsAddr != "" {
			r := chi.NewRouter()
			r.Use(middleware.Recoverer)
			r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			r.Handle("/metrics", metrics.HandlerFor(a.Registry()))

			server = &http.Server{
				Addr:              sessionMetricsAddr,
				Handler:           r,
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				logger.Info("serving metrics", "addr", sessionMetricsAddr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErrors <- err
				}
			}()
		}

		if fs, ok := a.FileStore(); ok {
			go func() {
				err := fs.Watch(ctx, a.Config().ProjectID, func() {
					if err := m.ReloadSession(); err != nil {
						logger.Warn("failed to reload session", "error", err)
						return
					}
					logger.Info("session reloaded from disk")
				})
				if err != nil {
					logger.Warn("session file watch stopped", "error", err)
				}
			}()
		}

		m.Foreground()
		logger.Info("watching session", "project", a.Config().ProjectID, "period", a.Config().RefreshPeriod)

		select {
		case err = <-serverErrors:
			err = fmt.Errorf("metrics server error: %w", err)
		case <-ctx.Done():
			logger.Info("shutdown signal received")
		}

		m.Background()
		if server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := server.Shutdown(shutdownCtx); serr != nil {
				logger.Error("metrics server shutdown error", "error", serr)
			}
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionShowCmd, sessionClearCmd, sessionRefreshCmd, sessionWatchCmd)

	sessionClearCmd.Flags().BoolVar(&sessionLogout, "logout", false, "Revoke the refresh token with the backend first")
	sessionRefreshCmd.Flags().BoolVar(&sessionRefreshUser, "user", false, "Also reload the user profile")
	sessionWatchCmd.Flags().StringVar(&sessionMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func printSession(w io.Writer, s *authsdk.Session, now time.Time) {
	if s == nil {
		fmt.Fprintln(w, warnStyle.Render("no session"))
		return
	}

	u := s.User()
	field(w, "user", u.UserID)
	if u.Name != "" {
		field(w, "name", u.Name)
	}
	if len(u.LoginIDs) > 0 {
		field(w, "login ids", list(u.LoginIDs))
	}
	field(w, "session expires", expiry(s.SessionToken().ExpiresAt, now))
	field(w, "refresh expires", expiry(s.RefreshToken().ExpiresAt, now))
}

func expiry(at func() (time.Time, bool), now time.Time) string {
	exp, ok := at()
	if !ok {
		return "never"
	}
	if !exp.After(now) {
		return exp.UTC().Format(time.RFC3339) + " (expired)"
	}
	return exp.UTC().Format(time.RFC3339) + " (in " + exp.Sub(now).Round(time.Second).String() + ")"
}
