package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/scrapco/scrapco-backend/api/responses"
	pkgerrors "github.com/scrapco/scrapco-backend/pkg/errors"
	"github.com/scrapco/scrapco-backend/pkg/logger"
)

// SignatureHeader carries the vendor callback HMAC.
const SignatureHeader = "x-scrapco-signature"

// maxCallbackBody caps how much of a callback body is read before verifying.
const maxCallbackBody = 1 << 20

// VendorSignature verifies the hex HMAC-SHA256 of the raw request body
// against the shared vendor secret. The body is re-buffered for downstream
// handlers.
func VendorSignature(secret string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vendor webhook secret not configured"))
				return
			}

			provided := strings.TrimSpace(r.Header.Get(SignatureHeader))
			if provided == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing signature"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !verifySignature(secret, body, provided) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Sign computes the hex HMAC-SHA256 a caller must present for the given body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(secret string, body []byte, provided string) bool {
	decoded, err := hex.DecodeString(strings.ToLower(provided))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), decoded)
}
