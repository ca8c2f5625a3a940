package webserver

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	schnorrkel "github.com/ChainSafe/go-schnorrkel"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
	"go.uber.org/zap"
)

var (
	errBadAddress   = errors.New("invalid address")
	errBadSignature = errors.New("signature verification failed")
)

var ss58Prefix = []byte("SS58PRE")

// decodeSS58 converts an SS58 or 0x-hex address to the raw 32-byte public key.
func decodeSS58(addr string) ([]byte, error) {
	if strings.HasPrefix(addr, "0x") {
		raw, err := hex.DecodeString(addr[2:])
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("%w: bad hex key", errBadAddress)
		}
		return raw, nil
	}

	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadAddress, err)
	}
	var prefixLen int
	switch {
	case len(raw) == 35 && raw[0] < 64:
		prefixLen = 1
	case len(raw) == 36 && raw[0]&0xc0 == 0x40:
		prefixLen = 2
	default:
		return nil, fmt.Errorf("%w: unexpected length %d", errBadAddress, len(raw))
	}

	body, sum := raw[:len(raw)-2], raw[len(raw)-2:]
	h, _ := blake2b.New512(nil)
	h.Write(ss58Prefix)
	h.Write(body)
	if !bytes.Equal(h.Sum(nil)[:2], sum) {
		return nil, fmt.Errorf("%w: checksum mismatch", errBadAddress)
	}
	return body[prefixLen:], nil
}

// ValidateAddress accepts SS58 and 0x-hex sr25519 public keys.
func ValidateAddress(addr string) error {
	_, err := decodeSS58(addr)
	return err
}

func strip0x(s string) string {
	if len(s) > 1 && s[:2] == "0x" {
		return s[2:]
	}
	return s
}

// verifySignature checks an sr25519 signature over the challenge nonce. Wallet
// extensions wrap raw payloads in <Bytes> tags, so both forms are accepted.
func verifySignature(lg *zap.Logger, addr, sigHex, nonce string) error {
	pubKeyBytes, err := decodeSS58(addr)
	if err != nil {
		lg.Debug("address decode failed", zap.String("addr", addr), zap.Error(err))
		return err
	}

	sigBytes, err := hex.DecodeString(strip0x(sigHex))
	if err != nil || len(sigBytes) != 64 {
		return fmt.Errorf("%w: malformed signature", errBadSignature)
	}

	var pkRaw [32]byte
	copy(pkRaw[:], pubKeyBytes)
	var sigRaw [64]byte
	copy(sigRaw[:], sigBytes)

	var pk schnorrkel.PublicKey
	if err = pk.Decode(pkRaw); err != nil {
		return fmt.Errorf("%w: %v", errBadAddress, err)
	}
	var sig schnorrkel.Signature
	if err = sig.Decode(sigRaw); err != nil {
		return fmt.Errorf("%w: %v", errBadSignature, err)
	}

	for _, msg := range []string{nonce, "<Bytes>" + nonce + "</Bytes>"} {
		ok, err := pk.Verify(&sig, schnorrkel.NewSigningContext([]byte("substrate"), []byte(msg)))
		if err == nil && ok {
			return nil
		}
	}
	lg.Debug("signature rejected", zap.String("addr", addr))
	return errBadSignature
}
