// Package webserver exposes the ledger over HTTP with wallet signature login.
package webserver

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stake-plus/govledger/src/ledger/config"
	"github.com/stake-plus/govledger/src/ledger/metrics"
	"github.com/stake-plus/govledger/src/ledger/service"
)

type Deps struct {
	Ledger  *service.Ledger
	Nonces  NonceStore
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

func New(cfg config.Config, d Deps) *gin.Engine {
	r := gin.New()
	r.Use(recovery(d.Logger), requestLogger(d.Logger.Named("http")), recordMetrics(d.Metrics))
	attachRoutes(r, cfg, d)
	return r
}
