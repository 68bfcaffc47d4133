// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	capjwt "github.com/hashicorp/capsession/jwt"
	"github.com/hashicorp/capsession/oidc"
	"github.com/hashicorp/capsession/oidc/adapter"
	"github.com/hashicorp/capsession/storage"
	boltstore "github.com/hashicorp/capsession/storage/bbolt"
	"github.com/hashicorp/go-hclog"
)

const (
	cacheBucket = "capsession"
	tokensKey   = "tokens"
)

// cachedTokens is the token cache record. The oidc token types redact
// themselves when marshaled, so the raw values are copied out.
type cachedTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token,omitempty"`
	TimeSkew     *int64 `json:"time_skew,omitempty"`
}

type session struct {
	logger  hclog.Logger
	store   *boltstore.Store
	client  *oidc.Client
	adapter *adapter.System
}

func loopbackRedirect(addr string) string {
	return "http://" + addr + "/callback"
}

// openSession opens the token cache and creates a client for the configured
// realm.
func openSession(ctx context.Context, redirectURI string) (*session, error) {
	const op = "openSession"
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "capsession",
		Level:  hclog.LevelFromString(flags.logLevel),
		Output: os.Stderr,
	})
	rc, err := loadRealmConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := rc.clientConfig(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ks, err := capjwt.NewJSONWebKeySet(ctx, cfg.ResolvedEndpoints().Certs, cfg.ProviderCA)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	decoder, err := oidc.NewKeySetDecoder(ks)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sys, err := adapter.NewSystem(redirectURI, adapter.WithLogger(logger.Named("adapter")))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	authOpts, err := rc.authOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	store, err := boltstore.Open(flags.dbPath, cacheBucket, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	client, err := oidc.NewClient(cfg, append([]oidc.Option{
		oidc.WithLogger(logger),
		oidc.WithStorage(store),
		oidc.WithClaimsDecoder(decoder),
	}, authOpts...)...)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	client.On(oidc.EventAuthRefreshError, func(e oidc.Event) {
		logger.Warn("token refresh failed", "error", e.Err)
	})
	return &session{logger: logger, store: store, client: client, adapter: sys}, nil
}

// init initializes the client, restoring cached tokens when restore is set.
func (s *session) init(ctx context.Context, restore bool) (bool, error) {
	opts := oidc.InitOptions{
		Adapter:          s.adapter,
		Flow:             oidc.Flow(flags.flow),
		CheckLoginIframe: oidc.Bool(false),
	}
	if restore {
		cached, err := s.cached(ctx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return false, err
		default:
			opts.Token, opts.RefreshToken, opts.IDToken = cached.AccessToken, cached.RefreshToken, cached.IDToken
			if cached.TimeSkew != nil {
				skew := time.Duration(*cached.TimeSkew) * time.Second
				opts.TimeSkew = &skew
			}
		}
	}
	return s.client.Init(ctx, opts)
}

func (s *session) cached(ctx context.Context) (*cachedTokens, error) {
	raw, err := s.store.Get(ctx, tokensKey)
	if err != nil {
		return nil, err
	}
	var c cachedTokens
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("corrupt token cache: %w", err)
	}
	return &c, nil
}

// save writes the client's tokens to the cache, or removes the cache entry
// when there are none.
func (s *session) save(ctx context.Context) error {
	ts := s.client.Tokens()
	if ts.AccessToken == "" {
		return s.store.Delete(ctx, tokensKey)
	}
	c := cachedTokens{
		AccessToken:  string(ts.AccessToken),
		RefreshToken: string(ts.RefreshToken),
		IDToken:      string(ts.IDToken),
	}
	if sess := s.client.Session(); sess.TimeSkewKnown {
		skew := int64(sess.TimeSkew / time.Second)
		c.TimeSkew = &skew
	}
	raw, err := json.Marshal(&c)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, tokensKey, raw)
}

func (s *session) close() {
	s.client.Destroy()
	if err := s.store.Close(); err != nil {
		s.logger.Warn("unable to close token cache", "error", err)
	}
}

// restoreSession opens a session and signs it in from the token cache.
func restoreSession(ctx context.Context) (*session, error) {
	s, err := openSession(ctx, loopbackRedirect(fmt.Sprintf("127.0.0.1:%d", flags.port)))
	if err != nil {
		return nil, err
	}
	authenticated, err := s.init(ctx, true)
	if err == nil && !authenticated {
		err = errors.New("not signed in, run: capsession login")
	}
	if err != nil {
		_ = s.save(ctx)
		s.close()
		return nil, err
	}
	if err := s.save(ctx); err != nil {
		s.logger.Warn("unable to update token cache", "error", err)
	}
	return s, nil
}
