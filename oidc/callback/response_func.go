// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"html/template"
	"net/http"
)

// SuccessResponseFunc is used by callbacks to create a http response when the
// callback authenticated the client.
//
// The state parameter is the state returned by the provider. The function
// should use the http.ResponseWriter to send back whatever content it wishes
// to the browser that completed the flow.
type SuccessResponseFunc func(state string, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by callbacks to create a http response when the
// callback fails.
//
// The function receives the state returned by the provider, the provider's
// error response when it sent one, and/or the error raised while completing
// the callback.
type ErrorResponseFunc func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request)

// AuthenErrorResponse represents Oauth2 error responses.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Uri         string `json:"error_uri,omitempty"`
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html><head><title>{{.Title}}</title></head>
<body><h1>{{.Title}}</h1><p>{{.Message}}</p></body></html>
`))

// SuccessPage is a SuccessResponseFunc which tells the user they can close
// the browser window.
func SuccessPage(_ string, w http.ResponseWriter, _ *http.Request) {
	writePage(w, http.StatusOK, "Signed in", "You can close this window and return to the application.")
}

// ErrorPage is an ErrorResponseFunc which shows the provider's error, or a
// generic failure message.
func ErrorPage(_ string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, _ *http.Request) {
	switch {
	case respErr != nil:
		msg := respErr.Error
		if respErr.Description != "" {
			msg += ": " + respErr.Description
		}
		writePage(w, http.StatusUnauthorized, "Sign in failed", msg)
	case e != nil:
		writePage(w, http.StatusInternalServerError, "Sign in failed", e.Error())
	default:
		writePage(w, http.StatusInternalServerError, "Sign in failed", "unknown error")
	}
}

func writePage(w http.ResponseWriter, status int, title, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTmpl.Execute(w, struct{ Title, Message string }{title, msg})
}
