package service

import (
	"errors"

	"github.com/stake-plus/govledger/src/ledger/snapshot"
	"github.com/stake-plus/govledger/src/ledger/state"
)

var (
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrValidation      = errors.New("validation failed")

	ErrProposalNotFound = state.ErrProposalNotFound
	ErrProfileNotFound  = state.ErrProfileNotFound
	ErrAlreadyVoted     = state.ErrAlreadyVoted
	ErrInvalidChoice    = state.ErrInvalidChoice
	ErrCodec            = snapshot.ErrCodec
)
