// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/capsession/oidc"
	"github.com/hashicorp/capsession/oidc/callback"
	"github.com/spf13/cobra"
)

var loginFlags struct {
	register  bool
	loginHint string
	idpHint   string
	locale    string
	prompt    string
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in through the system browser",
	Long: `Opens the realm's login page in the system browser and waits for the provider
to redirect back to a loopback listener. The tokens are cached for the other
commands.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	f := loginCmd.Flags()
	f.BoolVar(&loginFlags.register, "register", false, "open the registration page instead of the login page")
	f.StringVar(&loginFlags.loginHint, "login-hint", "", "prefill the username")
	f.StringVar(&loginFlags.idpHint, "idp-hint", "", "identity provider to redirect to")
	f.StringVar(&loginFlags.locale, "locale", "", "login page locale, for example en-GB")
	f.StringVar(&loginFlags.prompt, "prompt", "", "prompt: login to always re-authenticate")
	rootCmd.AddCommand(loginCmd)
}

// loopbackRouter routes the provider's redirect, in query or fragment relay
// form, to h.
func loopbackRouter(h http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Get("/callback", h)
	r.Post("/callback", h)
	return r
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
	defer cancel()

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", flags.port))
	if err != nil {
		return fmt.Errorf("unable to start loopback listener: %w", err)
	}
	s, err := openSession(ctx, loopbackRedirect(ln.Addr().String()))
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer s.close()
	if _, err := s.init(ctx, false); err != nil {
		_ = ln.Close()
		return err
	}

	done, h := callback.WithChannel(s.client, callback.SuccessPage, callback.ErrorPage)
	srv := &http.Server{Handler: loopbackRouter(h), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("loopback listener failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	opts := oidc.LoginOptions{
		LoginHint: loginFlags.loginHint,
		IdpHint:   loginFlags.idpHint,
		Locale:    loginFlags.locale,
		Prompt:    oidc.Prompt(loginFlags.prompt),
	}
	if loginFlags.register {
		err = s.client.Register(ctx, opts)
	} else {
		err = s.client.Login(ctx, opts)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Complete the sign in in your browser.")

	select {
	case r := <-done:
		if r.Error != nil {
			return fmt.Errorf("sign in failed: %w", r.Error)
		}
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for the browser: %w", ctx.Err())
	}
	if err := s.save(ctx); err != nil {
		return fmt.Errorf("unable to cache tokens: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", displayName(s.client))
	return nil
}

func displayName(c *oidc.Client) string {
	ts := c.Tokens()
	for _, claims := range []*oidc.Claims{ts.IDTokenClaims, ts.AccessTokenClaims} {
		if claims != nil && claims.PreferredUsername != "" {
			return claims.PreferredUsername
		}
	}
	return c.Session().Subject
}
