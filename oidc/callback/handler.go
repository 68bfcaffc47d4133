// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/hashicorp/capsession/oidc"
)

// Completer completes a provider callback. *oidc.Client implements it.
type Completer interface {
	HandleCallback(ctx context.Context, rawURL string) (bool, error)
}

var _ Completer = (*oidc.Client)(nil)

// fragmentField is the form field the relay page posts the fragment in.
const fragmentField = "fragment"

// relayPage posts the location fragment, which browsers never send to a
// server, back to the listener.
const relayPage = `<!DOCTYPE html>
<html><head><title>Signing in</title></head>
<body>
<form method="post" id="relay"><input type="hidden" name="` + fragmentField + `" id="fragment"></form>
<script>
document.getElementById("fragment").value = window.location.hash.substring(1);
document.getElementById("relay").submit();
</script>
</body></html>
`

// Handler creates a callback handler which hands each provider redirect to
// c. Query mode callbacks are completed on the GET request; a GET without
// a state is answered with a page relaying the fragment back in a POST. A
// relayed POST without a state is an error.
//
// The SuccessResponseFunc is used to create a response when the callback
// authenticated the client. The ErrorResponseFunc is used when it did not.
func Handler(c Completer, sFn SuccessResponseFunc, eFn ErrorResponseFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		const op = "callback.Handler"
		if c == nil {
			eFn("", nil, fmt.Errorf("%s: completer is nil: %w", op, oidc.ErrNilParameter), w, req)
			return
		}
		rawURL, state, ok := callbackURL(req)
		if !ok {
			if req.Method == http.MethodPost {
				// the relay already ran; serving it again would loop
				eFn("", nil, fmt.Errorf("%s: relayed fragment has no state: %w", op, oidc.ErrInvalidParameter), w, req)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			_, _ = w.Write([]byte(relayPage))
			return
		}
		authenticated, err := c.HandleCallback(req.Context(), rawURL)
		var authErr *oidc.AuthError
		switch {
		case errors.As(err, &authErr):
			eFn(state, &AuthenErrorResponse{Error: authErr.Code, Description: authErr.Description, Uri: authErr.URI}, nil, w, req)
		case err != nil:
			eFn(state, nil, fmt.Errorf("%s: %w", op, err), w, req)
		case !authenticated:
			eFn(state, nil, fmt.Errorf("%s: %w", op, oidc.ErrNotAuthenticated), w, req)
		default:
			sFn(state, w, req)
		}
	}
}

// LoginResp is sent by WithChannel once its callback completes.
type LoginResp struct {
	Authenticated bool
	Error         error
}

// WithChannel creates a one-time callback handler which also reports its
// outcome on the returned channel. It suits a loopback listener started by
// the same process that opened the browser; the relay page request does not
// count as the callback.
func WithChannel(c Completer, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (<-chan LoginResp, http.HandlerFunc) {
	doneCh := make(chan LoginResp, 1)
	var once sync.Once
	send := func(r LoginResp) {
		once.Do(func() {
			doneCh <- r
			close(doneCh)
		})
	}
	h := Handler(c,
		func(state string, w http.ResponseWriter, req *http.Request) {
			sFn(state, w, req)
			send(LoginResp{Authenticated: true})
		},
		func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
			eFn(state, respErr, e, w, req)
			if e == nil && respErr != nil {
				e = &oidc.AuthError{Code: respErr.Error, Description: respErr.Description, URI: respErr.Uri}
			}
			send(LoginResp{Error: e})
		},
	)
	return doneCh, h
}

// callbackURL rebuilds the URL the provider redirected the browser to.
func callbackURL(req *http.Request) (rawURL, state string, ok bool) {
	u := url.URL{Scheme: "http", Host: req.Host, Path: req.URL.Path, RawQuery: req.URL.RawQuery}
	if req.TLS != nil {
		u.Scheme = "https"
	}
	if req.Method == http.MethodPost {
		if err := req.ParseForm(); err != nil {
			return "", "", false
		}
		fragment := req.PostForm.Get(fragmentField)
		params, err := url.ParseQuery(fragment)
		if err != nil || params.Get("state") == "" {
			return "", "", false
		}
		return u.String() + "#" + fragment, params.Get("state"), true
	}
	state = req.URL.Query().Get("state")
	return u.String(), state, state != ""
}
