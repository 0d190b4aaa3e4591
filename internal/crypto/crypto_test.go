package crypto

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignURI(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: "s3cret"}
	uri := "https://bittrex.com/api/v1.1/account/getbalances?apikey=k&nonce=1"

	mac := hmac.New(sha512.New, []byte("s3cret"))
	mac.Write([]byte(uri))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, auth.SignURI(uri))
	assert.Len(t, auth.SignURI(uri), 128)
}

func TestAuthorizeAt(t *testing.T) {
	auth := &HMACAuth{Key: "key1", Secret: "sec"}
	u, err := url.Parse("https://bittrex.com/api/v1.1/market/getopenorders?market=BTC-NEO")
	require.NoError(t, err)

	uri, sig := auth.AuthorizeAt(u, 42)
	assert.Equal(t, "https://bittrex.com/api/v1.1/market/getopenorders?apikey=key1&market=BTC-NEO&nonce=42", uri)
	assert.Equal(t, auth.SignURI(uri), sig)
	assert.Equal(t, "market=BTC-NEO", u.RawQuery, "input URL must not be modified")
}

func TestHMACAuthString(t *testing.T) {
	auth := &HMACAuth{Key: "abcdefgh", Secret: "xy"}
	assert.Equal(t, "HMACAuth{key=abcd****, secret=****}", auth.String())
}

func TestEncryptDecryptSecret(t *testing.T) {
	blob, err := EncryptSecret("my-api-secret", "pw")
	require.NoError(t, err)

	got, err := DecryptSecret(blob, "pw")
	require.NoError(t, err)
	assert.Equal(t, "my-api-secret", got)

	_, err = DecryptSecret(blob, "wrong")
	assert.Error(t, err)

	_, err = EncryptSecret("x", "")
	assert.Error(t, err)
}

func TestLoadSecret(t *testing.T) {
	got, err := LoadSecret(SecretConfig{RawSecret: "raw"})
	require.NoError(t, err)
	assert.Equal(t, "raw", got)

	blob, err := EncryptSecret("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadSecret(SecretConfig{EncryptedSecretPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	_, err = LoadSecret(SecretConfig{})
	assert.Error(t, err)
}
