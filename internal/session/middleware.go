package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// CookieName is the browser-session cookie carrying the signed session ID.
const CookieName = "pp_session"

type contextKey int

const sessionKey contextKey = iota

// FromContext extracts the session from the request context.
func FromContext(ctx context.Context) *Session {
	if v, ok := ctx.Value(sessionKey).(*Session); ok {
		return v
	}
	return nil
}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// Codec signs and verifies cookie values.
type Codec struct {
	secret []byte
}

// NewCodec creates a codec keyed by secret.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Encode returns "<id>.<mac>".
func (c *Codec) Encode(id string) string {
	return id + "." + c.sign(id)
}

// Decode returns the session ID if the value carries a valid signature.
func (c *Codec) Decode(value string) (string, bool) {
	id, mac, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	if !hmac.Equal([]byte(mac), []byte(c.sign(id))) {
		return "", false
	}
	return id, true
}

func (c *Codec) sign(id string) string {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Middleware resolves the session from the cookie. Requests without a valid
// cookie for a live session get a transient session that is not stored and
// sets no cookie; Establish turns it into a stored one.
func Middleware(st *Store, codec *Codec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sess *Session
			if c, err := r.Cookie(CookieName); err == nil {
				if id, ok := codec.Decode(c.Value); ok {
					sess = st.Get(id)
				}
			}

			if sess == nil {
				sess = New(uuid.NewString())
			}
			sess.Touch()

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// Establish stores the request's session and issues its cookie when the
// session is not stored yet. It runs after Middleware on the routes that
// open a session.
func Establish(st *Store, codec *Codec, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := FromContext(r.Context())
			if sess == nil {
				sess = New(uuid.NewString())
				r = r.WithContext(WithSession(r.Context(), sess))
			}

			if st.Get(sess.ID) == nil {
				st.Add(sess)
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    codec.Encode(sess.ID),
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
					Secure:   secure,
				})
			}

			next.ServeHTTP(w, r)
		})
	}
}
