package state

import "errors"

var (
	ErrProposalNotFound = errors.New("proposal not found")
	ErrProfileNotFound  = errors.New("user profile not found")
	ErrAlreadyVoted     = errors.New("already voted")
	ErrInvalidChoice    = errors.New("invalid vote choice")
	ErrDuplicateID      = errors.New("id already in use")
	ErrInvalidSnapshot  = errors.New("invalid snapshot")
)
