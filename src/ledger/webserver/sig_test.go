package webserver

import (
	"encoding/hex"
	"net/http"
	"testing"

	schnorrkel "github.com/ChainSafe/go-schnorrkel"
	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

func encodeSS58(prefix byte, pub [32]byte) string {
	body := append([]byte{prefix}, pub[:]...)
	h, _ := blake2b.New512(nil)
	h.Write(ss58Prefix)
	h.Write(body)
	return base58.Encode(append(body, h.Sum(nil)[:2]...))
}

type signer struct {
	sk   *schnorrkel.SecretKey
	addr string
}

func newSigner(t *testing.T) signer {
	t.Helper()
	sk, pk, err := schnorrkel.GenerateKeypair()
	require.NoError(t, err)
	return signer{sk: sk, addr: encodeSS58(42, pk.Encode())}
}

func (s signer) sign(t *testing.T, msg string) string {
	t.Helper()
	sig, err := s.sk.Sign(schnorrkel.NewSigningContext([]byte("substrate"), []byte(msg)))
	require.NoError(t, err)
	raw := sig.Encode()
	return "0x" + hex.EncodeToString(raw[:])
}

func TestDecodeSS58(t *testing.T) {
	pub, err := decodeSS58("5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY")
	require.NoError(t, err)
	assert.Equal(t, "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d", hex.EncodeToString(pub))

	hexPub, err := decodeSS58("0xd43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d")
	require.NoError(t, err)
	assert.Equal(t, pub, hexPub)

	for _, bad := range []string{
		"5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQZ",
		"0xd435",
		"0xzz",
		"not base58 0OIl",
		"",
	} {
		_, err := decodeSS58(bad)
		assert.ErrorIs(t, err, errBadAddress, bad)
	}
}

func TestVerifySignature(t *testing.T) {
	s := newSigner(t)
	lg := zap.NewNop()

	assert.NoError(t, verifySignature(lg, s.addr, s.sign(t, "nonce-1"), "nonce-1"))
	assert.NoError(t, verifySignature(lg, s.addr, s.sign(t, "<Bytes>nonce-1</Bytes>"), "nonce-1"))
	assert.ErrorIs(t, verifySignature(lg, s.addr, s.sign(t, "nonce-2"), "nonce-1"), errBadSignature)
	assert.ErrorIs(t, verifySignature(lg, s.addr, "0x1234", "nonce-1"), errBadSignature)

	other := newSigner(t)
	assert.ErrorIs(t, verifySignature(lg, other.addr, s.sign(t, "nonce-1"), "nonce-1"), errBadSignature)
}

func TestLoginFlow(t *testing.T) {
	h := newHarness(t)
	s := newSigner(t)

	rec := h.do(t, http.MethodPost, "/v1/auth/challenge", "", gin.H{"address": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/auth/challenge", "", gin.H{"address": s.addr})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	nonce := decode[map[string]string](t, rec)["nonce"]
	require.NotEmpty(t, nonce)

	verify := gin.H{"address": s.addr, "signature": s.sign(t, nonce)}
	rec = h.do(t, http.MethodPost, "/v1/auth/verify", "", verify)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := decode[map[string]string](t, rec)["token"]
	require.NotEmpty(t, token)

	rec = h.do(t, http.MethodPost, "/v1/auth/verify", "", verify)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "nonce is single use")

	req := jsonRequest(t, http.MethodPost, "/v1/proposals", budgetBody())
	req.Header.Set("Authorization", "Bearer "+token)
	out := serve(h, req)
	assert.Equal(t, http.StatusCreated, out.Code, out.Body.String())
	assert.Len(t, h.ledger.ListProposals(), 1)
}

func TestLoginRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	s := newSigner(t)

	rec := h.do(t, http.MethodPost, "/v1/auth/challenge", "", gin.H{"address": s.addr})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/auth/verify", "", gin.H{"address": s.addr, "signature": s.sign(t, "something else")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
