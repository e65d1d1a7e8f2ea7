package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/authkit/internal/app"
	"github.com/aussiebroadwan/authkit/internal/devserver"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
	"github.com/aussiebroadwan/authkit/pkg/metrics"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

var (
	devAddr          string
	devProject       string
	devAlg           string
	devSigningKey    string
	devOTPCode       string
	devRotateRefresh bool
	devSessionTTL    time.Duration
	devUsers         []string
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local identity backend for one project",
	Long: `Serve the REST endpoints the SDK calls, issuing real signed JWTs for a
single project. Users given with --user are seeded at startup; OTP and
enchanted link sign-ins create unknown users on first use.

Point clients at it with AUTHKIT_BASE_URL=http://localhost:8080.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slogx.New(slogx.Config{
			Service: "authkit-devserver",
			Version: app.BuildVersion,
			Env:     "dev",
			Level:   "info",
			Format:  "text",
			Output:  cmd.ErrOrStderr(),
		})

		signer, err := devSigner(devSigningKey, devAlg)
		if err != nil {
			return err
		}

		registry, _ := metrics.NewRegistry()
		srv, err := devserver.New(devserver.Config{
			ProjectID:     devProject,
			IssuerBase:    issuerBase(devAddr),
			SessionTTL:    devSessionTTL,
			OTPCode:       devOTPCode,
			RotateRefresh: devRotateRefresh,
			Signer:        signer,
			Registry:      registry,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		for _, entry := range devUsers {
			loginID, password, _ := strings.Cut(entry, ":")
			user, err := srv.AddUser(loginID, devserver.UserOptions{
				Name:     loginID,
				Email:    emailOf(loginID),
				Password: password,
			})
			if err != nil {
				return fmt.Errorf("failed to seed user %q: %w", loginID, err)
			}
			logger.Info("seeded user", "login_id", loginID, "user_id", user.UserID)
		}

		server := &http.Server{
			Addr:              devAddr,
			Handler:           srv,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting dev server", "addr", devAddr, "project", devProject, "alg", signer.Alg())
			serverErrors <- server.ListenAndServe()
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			logger.Info("shutdown signal received")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		logger.Info("server stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devserverCmd)

	f := devserverCmd.Flags()
	f.StringVar(&devAddr, "addr", ":8080", "Listen address")
	f.StringVar(&devProject, "project", "", "Project id to issue tokens for")
	f.StringVar(&devAlg, "alg", cryptox.AlgEdDSA, "Signing algorithm for a generated key (EdDSA, RS256, ES256)")
	f.StringVar(&devSigningKey, "signing-key", "", "PEM file holding the signing key (generated when empty)")
	f.StringVar(&devOTPCode, "otp-code", devserver.DefaultOTPCode, "Code every OTP verification accepts")
	f.BoolVar(&devRotateRefresh, "rotate-refresh", false, "Issue a new refresh token on every refresh")
	f.DurationVar(&devSessionTTL, "session-ttl", devserver.DefaultSessionTTL, "Session token lifetime")
	f.StringArrayVar(&devUsers, "user", nil, "Seed a user as login[:password] (repeatable)")
	_ = devserverCmd.MarkFlagRequired("project")
}

func devSigner(path, alg string) (*jwtx.Signer, error) {
	var (
		pemKey []byte
		err    error
	)
	if path != "" {
		pemKey, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read signing key: %w", err)
		}
	} else if pemKey, err = cryptox.GenerateSigningKey(alg); err != nil {
		return nil, err
	}
	return jwtx.NewSigner(devserver.DefaultKeyID, pemKey)
}

// issuerBase turns a listen address into the URL clients reach it on.
func issuerBase(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func emailOf(loginID string) string {
	if strings.Contains(loginID, "@") {
		return loginID
	}
	return ""
}
