// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/capsession/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRealmConfig(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    *realmConfig
		wantErr bool
	}{
		{
			name: "keycloak-json",
			content: `{
  "realm": "demo",
  "auth-server-url": "https://sso.example.com/",
  "ssl-required": "external",
  "resource": "cli",
  "public-client": true,
  "confidential-port": 0
}`,
			want: &realmConfig{AuthServerURL: "https://sso.example.com/", Realm: "demo", Resource: "cli", PublicClient: true, SSLRequired: "external"},
		},
		{
			name:    "yaml",
			content: "auth-server-url: https://sso.example.com\nrealm: demo\nresource: cli\nscopes: [email, roles]\n",
			want:    &realmConfig{AuthServerURL: "https://sso.example.com", Realm: "demo", Resource: "cli", Scopes: []string{"email", "roles"}},
		},
		{
			name:    "unknown-field",
			content: "realm: demo\nsecret: hunter2\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			path := filepath.Join(dir, tt.name)
			require.NoError(os.WriteFile(path, []byte(tt.content), 0o600))
			got, err := loadRealmConfig(path)
			if tt.wantErr {
				assert.Error(err)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)

			cfg, err := got.clientConfig("http://127.0.0.1:8250/callback")
			require.NoError(err)
			assert.Equal("https://sso.example.com/realms/demo", cfg.RealmURL())
			assert.Equal("cli", cfg.ClientID)
		})
	}

	_, err := loadRealmConfig(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestRealmConfig_authOptions(t *testing.T) {
	dir := t.TempDir()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	keyFile := filepath.Join(dir, "client.pem")
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), 0o600))
	badFile := filepath.Join(dir, "bad.pem")
	require.NoError(t, os.WriteFile(badFile, []byte("not a key"), 0o600))

	base := "auth-server-url: https://sso.example.com\nrealm: demo\nresource: backend\n"
	tests := []struct {
		name    string
		content string
		wantLen int
		wantErr bool
	}{
		{name: "public", content: base + "public-client: true\ncredentials: {secret: s3cr3t}\n"},
		{name: "no-credentials", content: base},
		{name: "secret", content: base + "credentials: {secret: s3cr3t}\n", wantLen: 1},
		{name: "signed-jwt", content: base + "credentials: {key-file: " + keyFile + ", key-id: k1}\n", wantLen: 1},
		{name: "bad-key", content: base + "credentials: {key-file: " + badFile + "}\n", wantErr: true},
		{name: "missing-key", content: base + "credentials: {key-file: " + filepath.Join(dir, "nope") + "}\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(os.WriteFile(path, []byte(tt.content), 0o600))
			rc, err := loadRealmConfig(path)
			require.NoError(err)
			cfg, err := rc.clientConfig("http://127.0.0.1:8250/callback")
			require.NoError(err)
			opts, err := rc.authOptions(cfg)
			if tt.wantErr {
				assert.Error(err)
				return
			}
			require.NoError(err)
			assert.Len(opts, tt.wantLen)
		})
	}
}

func TestCommands(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	p := oidc.StartTestProvider(t, "cli")
	dir := t.TempDir()
	caFile := filepath.Join(dir, "ca.pem")
	require.NoError(os.WriteFile(caFile, []byte(p.CACert()), 0o600))
	configFile := filepath.Join(dir, "keycloak.yaml")
	require.NoError(os.WriteFile(configFile, []byte(
		"auth-server-url: "+p.Addr()+"\nrealm: "+oidc.TestProviderRealm+"\nresource: cli\nca-file: "+caFile+"\n"), 0o600))
	flags = globalFlags{configPath: configFile, dbPath: filepath.Join(dir, "cache.db"), port: 8250, flow: "standard", logLevel: "off"}

	// sign in the way login does, with the test browser in place of the
	// system browser and the loopback listener
	redirect := loopbackRedirect("127.0.0.1:8250")
	s, err := openSession(ctx, redirect)
	require.NoError(err)
	_, err = s.init(ctx, false)
	require.NoError(err)
	authURL, err := s.client.CreateLoginURL(ctx, oidc.LoginOptions{})
	require.NoError(err)
	checker, _, err := oidc.NewBrowserContext(p.CACert())
	require.NoError(err)
	cb, err := checker.Check(ctx, authURL, redirect)
	require.NoError(err)
	ok, err := s.client.HandleCallback(ctx, cb)
	require.NoError(err)
	require.True(ok)
	assert.Equal("alice", displayName(s.client))
	require.NoError(s.save(ctx))
	s.close()

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(args)
		err := rootCmd.ExecuteContext(ctx)
		return out.String(), err
	}

	out, err := run("token", "--print")
	require.NoError(err)
	assert.Equal(2, strings.Count(strings.TrimSpace(out), "."))
	assert.Equal(1, p.TokenCalls("refresh_token"))

	out, err = run("userinfo")
	require.NoError(err)
	assert.Contains(out, `"preferred_username": "alice"`)

	out, err = run("userinfo", "--profile")
	require.NoError(err)
	assert.Contains(out, `"username": "alice"`)

	out, err = run("logout", "--local")
	require.NoError(err)
	assert.Contains(out, "Signed out")

	_, err = restoreSession(ctx)
	require.Error(err)
	assert.Contains(err.Error(), "not signed in")
}
