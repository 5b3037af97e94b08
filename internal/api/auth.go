// Package api provides the hosted-auth logout handler for CarePipe.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// authCookies are the session cookies cleared on logout.
var authCookies = []string{"id_token", "access_token"}

// logoutHandler handles GET /auth/logout. It clears the local session
// cookies and redirects to the hosted auth provider's logout endpoint so
// the provider-side session is also terminated.
func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	for _, name := range authCookies {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
		})
	}

	if s.opts.AuthDomain == "" {
		slog.Debug("Server.logoutHandler: no auth domain configured, cookies cleared only")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	redirect := fmt.Sprintf("%s/logout?client_id=%s&logout_uri=%s",
		s.opts.AuthDomain,
		url.QueryEscape(s.opts.AuthClientID),
		url.QueryEscape(s.opts.LogoutURI))
	slog.Info("Server.logoutHandler: redirecting to hosted logout", "domain", s.opts.AuthDomain)
	http.Redirect(w, r, redirect, http.StatusFound)
}
