package webserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NonceStore holds pending login challenges.
type NonceStore interface {
	SetNonce(ctx context.Context, addr, nonce string) error
	TakeNonce(ctx context.Context, addr string) (string, error)
}

type Auth struct {
	nonces    NonceStore
	jwtSecret []byte
	lg        *zap.Logger
}

func NewAuth(nonces NonceStore, secret []byte, lg *zap.Logger) Auth {
	return Auth{nonces: nonces, jwtSecret: secret, lg: lg}
}

func (a Auth) Challenge(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	if err := ValidateAddress(req.Address); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	nonce := "govledger:" + uuid.NewString()
	if err := a.nonces.SetNonce(c, req.Address, nonce); err != nil {
		a.lg.Error("store nonce", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"err": "challenge unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nonce": nonce})
}

func (a Auth) Verify(c *gin.Context) {
	var req struct {
		Address   string `json:"address"   binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	nonce, err := a.nonces.TakeNonce(c, req.Address)
	if err != nil || nonce == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"err": "challenge expired"})
		return
	}
	if err := verifySignature(a.lg, req.Address, req.Signature, nonce); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"err": "bad signature"})
		return
	}

	token, err := issueJWT(req.Address, a.jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	a.lg.Info("login", zap.String("addr", req.Address))
	c.JSON(http.StatusOK, gin.H{"token": token})
}
