package crypto

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// HMACAuth holds the credentials for signed exchange API requests.
type HMACAuth struct {
	Key    string
	Secret string
}

// SignURI returns hex(HMAC-SHA512(secret, uri)). uri is the full request URI
// including the query string.
func (h *HMACAuth) SignURI(uri string) string {
	mac := hmac.New(sha512.New, []byte(h.Secret))
	mac.Write([]byte(uri))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authorize adds the apikey and nonce query parameters to u and returns the
// final URI together with its signature. The signature covers the URI with
// both parameters present.
func (h *HMACAuth) Authorize(u *url.URL) (string, string) {
	return h.AuthorizeAt(u, time.Now().UnixNano())
}

// AuthorizeAt is like Authorize but lets the caller supply the nonce.
func (h *HMACAuth) AuthorizeAt(u *url.URL, nonce int64) (string, string) {
	q := u.Query()
	q.Set("apikey", h.Key)
	q.Set("nonce", strconv.FormatInt(nonce, 10))
	signed := *u
	signed.RawQuery = q.Encode()
	uri := signed.String()
	return uri, h.SignURI(uri)
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
