package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"time"
)

type pemPair struct {
	private, public string
}

// testKeyPEM generates one RSA key pair per process for tests. Never used by the server.
var testKeyPEM = sync.OnceValues(func() (pemPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return pemPair{}, err
	}
	priv, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return pemPair{}, err
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return pemPair{}, err
	}
	return pemPair{
		private: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: priv})),
		public:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})),
	}, nil
})

// TestKeyPairPEM returns the process-wide test key pair as PEM strings.
func TestKeyPairPEM() (privatePEM, publicPEM string, err error) {
	p, err := testKeyPEM()
	return p.private, p.public, err
}

// NewTestTokenProvider returns a TokenProvider signing with the test key pair,
// issuer "test-issuer" and audience "test-audience".
func NewTestTokenProvider() (*TokenProvider, error) {
	privatePEM, publicPEM, err := TestKeyPairPEM()
	if err != nil {
		return nil, err
	}
	signer, pub, err := LoadKeyPair(privatePEM, publicPEM)
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, pub, "test-issuer", "test-audience", 15*time.Minute), nil
}
