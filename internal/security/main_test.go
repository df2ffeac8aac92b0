package security

// Generated once per test binary by TestKeyPairPEM.
var testPrivateKeyPEM, testPublicKeyPEM = mustTestKeyPair()

func mustTestKeyPair() (string, string) {
	priv, pub, err := TestKeyPairPEM()
	if err != nil {
		panic(err)
	}
	return priv, pub
}
