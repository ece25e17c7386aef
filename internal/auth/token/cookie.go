package token

import (
	"net/http"
	"time"
)

// CookieName is the credential cookie issued after a successful login.
const CookieName = "discord_token"

// CookieOptions defines how the credential cookie is issued.
type CookieOptions struct {
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

// normalize applies safe defaults without breaking callers.
func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/"
	}
	if !o.HttpOnly {
		o.HttpOnly = true
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// CookieStore reads and writes the credential cookie for one request/response
// pair. Writes are mirrored in memory so a Get after a Set or Clear observes
// the new value within the same request.
type CookieStore struct {
	w    http.ResponseWriter
	r    *http.Request
	opts CookieOptions

	written bool
	current string
}

// ForRequest binds a store to the given request and response.
func ForRequest(w http.ResponseWriter, r *http.Request, opts CookieOptions) *CookieStore {
	return &CookieStore{w: w, r: r, opts: opts.normalize()}
}

func (s *CookieStore) Get() (string, bool) {
	if s.written {
		if s.current == "" {
			return "", false
		}
		return s.current, true
	}

	cookie, err := s.r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (s *CookieStore) Set(token string, ttl time.Duration) {
	http.SetCookie(s.w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     s.opts.Path,
		Domain:   s.opts.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: s.opts.HttpOnly,
		Secure:   s.opts.Secure,
		SameSite: s.opts.SameSite,
	})

	s.written = true
	s.current = token
}

// Clear removes the cookie. Clearing an absent cookie is not an error.
func (s *CookieStore) Clear() {
	http.SetCookie(s.w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     s.opts.Path,
		Domain:   s.opts.Domain,
		MaxAge:   -1,
		HttpOnly: s.opts.HttpOnly,
		Secure:   s.opts.Secure,
		SameSite: s.opts.SameSite,
	})

	s.written = true
	s.current = ""
}
