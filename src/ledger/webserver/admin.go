package webserver

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stake-plus/govledger/src/ledger/service"
)

const maxImportBytes = 64 << 20

type Admin struct {
	ledger *service.Ledger
	lg     *zap.Logger
}

func NewAdmin(ledger *service.Ledger, lg *zap.Logger) Admin {
	return Admin{ledger: ledger, lg: lg}
}

func (a Admin) Checkpoint(c *gin.Context) {
	if err := a.ledger.Checkpoint(c.Request.Context()); err != nil {
		a.lg.Error("manual checkpoint failed", zap.String("by", c.GetString("addr")), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"err": err.Error()})
		return
	}
	a.lg.Info("manual checkpoint", zap.String("by", c.GetString("addr")))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a Admin) Export(c *gin.Context) {
	blob, err := a.ledger.Export()
	if err != nil {
		writeErr(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="ledger.snapshot"`)
	c.Data(http.StatusOK, "application/json", blob)
}

// Import replaces the whole ledger with an uploaded snapshot.
func (a Admin) Import(c *gin.Context) {
	blob, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	if len(blob) > maxImportBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"err": "snapshot too large"})
		return
	}
	if err := a.ledger.Restore(blob); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	a.lg.Warn("ledger replaced by import", zap.String("by", c.GetString("addr")), zap.Int("bytes", len(blob)))
	c.JSON(http.StatusOK, gin.H{"success": true, "proposals": len(a.ledger.ListProposals())})
}

func AdminMiddleware(isAdmin func(string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(c.GetString("addr")) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"err": "admin access required"})
			return
		}
		c.Next()
	}
}
