package webserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/govledger/src/ledger/service"
)

func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrProposalNotFound), errors.Is(err, service.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyVoted):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidIdentity),
		errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidChoice):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"err": "internal error"})
		return
	}
	c.JSON(status, gin.H{"err": err.Error()})
}
