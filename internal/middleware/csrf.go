package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"
)

const (
	// CSRFCookie holds the token the browser must echo back.
	CSRFCookie = "csrf_token"
	// CSRFHeader carries the echoed token on mutating requests.
	CSRFHeader = "X-CSRF-Token"
)

// NewCSRFToken returns a fresh random token.
func NewCSRFToken() string {
	return uuid.NewString()
}

// SetCSRFCookie stores token in the csrf cookie. The cookie is readable by
// page scripts on purpose: the frontend copies it into the header.
func SetCSRFCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
}

// CSRF enforces the double-submit check on mutating requests: the header
// must carry the same value as the cookie. A cross-site form can make the
// browser send the cookie but cannot read it to fill in the header.
//
// Safe methods (GET, HEAD, OPTIONS) pass untouched.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(CSRFCookie)
		header := r.Header.Get(CSRFHeader)
		if err != nil || cookie.Value == "" || header == "" ||
			subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"forbidden","message":"Invalid or missing CSRF token"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
