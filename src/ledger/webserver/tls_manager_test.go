package webserver

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeKeyPair(t *testing.T, certPath, keyPath, cn string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
}

func servedCN(r *TLSReloader) string {
	cert, err := r.GetCertificate()(nil)
	if err != nil || cert == nil {
		return ""
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return ""
	}
	return leaf.Subject.CommonName
}

func TestTLSReloaderPicksUpNewCertificate(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := filepath.Join(dir, "tls.crt"), filepath.Join(dir, "tls.key")
	writeKeyPair(t, certPath, keyPath, "first")

	r, err := NewTLSReloader(certPath, keyPath, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "first", servedCN(r))
	assert.Equal(t, uint16(0x0303), r.GetConfig().MinVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Watch(ctx))

	writeKeyPair(t, certPath, keyPath, "second")
	assert.Eventually(t, func() bool { return servedCN(r) == "second" }, 5*time.Second, 50*time.Millisecond)
}

func TestTLSReloaderMissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := NewTLSReloader(filepath.Join(dir, "a.crt"), filepath.Join(dir, "a.key"), zap.NewNop())
	assert.Error(t, err)
}
