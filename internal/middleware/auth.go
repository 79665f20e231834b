package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/ctxkeys"
	"github.com/templui/piggybank/internal/render"
	"github.com/templui/piggybank/internal/service"
)

// TokenVerifier returns the wallet address a session token was issued for.
// *service.AuthService implements it.
type TokenVerifier interface {
	VerifyJWT(token string) (string, error)
}

var _ TokenVerifier = (*service.AuthService)(nil)

// Auth reads a bearer token and adds the wallet address to the context if valid.
// Requests without a token continue anonymously, read routes stay public.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				render.Error(w, r, apperr.New(apperr.KindNotAuthorized, "authorization header must be a bearer token"))
				return
			}

			wallet, err := verifier.VerifyJWT(token)
			if err != nil {
				slog.Debug("rejected session token", "error", err, "path", r.URL.Path)
				render.Error(w, r, apperr.New(apperr.KindNotAuthorized, "invalid or expired session"))
				return
			}

			ctx := ctxkeys.WithWallet(r.Context(), wallet)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireWallet refuses requests without an authenticated wallet.
func RequireWallet(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.Wallet(r.Context()) == "" {
			render.Error(w, r, apperr.New(apperr.KindNotAuthorized, "connect a wallet first"))
			return
		}
		next.ServeHTTP(w, r)
	}
}
