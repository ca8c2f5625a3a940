// Package service is the operation surface of the ledger. It checks argument
// shapes, derives identifiers from the caller and the clock, and hands the
// actual mutation to the state store.
package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/stake-plus/govledger/src/ledger/data"
	"github.com/stake-plus/govledger/src/ledger/ids"
	"github.com/stake-plus/govledger/src/ledger/metrics"
	"github.com/stake-plus/govledger/src/ledger/state"
	"github.com/stake-plus/govledger/src/ledger/types"
)

const maxIdentityLen = 256

type Option func(*Ledger)

// WithClock replaces time.Now as the source of creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIdentityValidator adds a transport specific identity check, e.g.
// requiring a decodable public key.
func WithIdentityValidator(fn func(string) error) Option {
	return func(l *Ledger) { l.checkIdentity = fn }
}

func WithIDGenerator(g *ids.Generator) Option {
	return func(l *Ledger) { l.ids = g }
}

type Ledger struct {
	store         *state.Store
	snapshots     data.SnapshotStore
	ids           *ids.Generator
	now           func() time.Time
	checkIdentity func(string) error
	validate      *validator.Validate
	lg            *zap.Logger
	m             *metrics.Collector

	saveMu   sync.Mutex
	savedRev uint64
}

func New(store *state.Store, snapshots data.SnapshotStore, lg *zap.Logger, m *metrics.Collector, opts ...Option) *Ledger {
	validate := validator.New(validator.WithRequiredStructEnabled())
	// Invalid UTF-8 would not survive a snapshot round trip through JSON.
	_ = validate.RegisterValidation("utf8", func(fl validator.FieldLevel) bool {
		return utf8.ValidString(fl.Field().String())
	})

	l := &Ledger{
		store:     store,
		snapshots: snapshots,
		ids:       ids.NewGenerator(),
		now:       time.Now,
		validate:  validate,
		lg:        lg,
		m:         m,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) CreateProposal(caller string, f types.ProposalFields) (string, error) {
	if err := l.identity(caller); err != nil {
		return "", err
	}
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	if err := l.fields(f); err != nil {
		return "", err
	}

	now := l.now()
	p := types.Proposal{
		Title:           f.Title,
		Description:     f.Description,
		CreatedAt:       now.Unix(),
		DurationDays:    f.DurationDays,
		AuthorID:        caller,
		ImageURL:        f.ImageURL,
		Category:        f.Category,
		Author:          f.Author,
		FullDescription: f.FullDescription,
		Status:          f.Status,
	}
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		p.ID = l.ids.NewID(caller, now)
		if _, err = l.store.CreateProposal(p); !errors.Is(err, state.ErrDuplicateID) {
			break
		}
	}
	if err != nil {
		return "", err
	}

	l.m.ProposalsCreated.Inc()
	l.lg.Info("proposal created", zap.String("id", p.ID), zap.String("author", caller), zap.String("title", p.Title))
	return p.ID, nil
}

func (l *Ledger) Vote(proposalID, voter string, choice types.Choice) error {
	if err := l.identity(voter); err != nil {
		l.m.VotesRejected.WithLabelValues("invalid_identity").Inc()
		return err
	}

	err := l.store.Vote(proposalID, voter, choice)
	switch {
	case err == nil:
		l.m.VotesCast.WithLabelValues(string(choice)).Inc()
		l.lg.Debug("vote recorded", zap.String("proposal", proposalID), zap.String("voter", voter), zap.String("choice", string(choice)))
	case errors.Is(err, state.ErrAlreadyVoted):
		l.m.VotesRejected.WithLabelValues("already_voted").Inc()
	case errors.Is(err, state.ErrProposalNotFound):
		l.m.VotesRejected.WithLabelValues("not_found").Inc()
	case errors.Is(err, state.ErrInvalidChoice):
		l.m.VotesRejected.WithLabelValues("invalid_choice").Inc()
	}
	return err
}

func (l *Ledger) DeleteProposal(proposalID string) error {
	if err := l.store.DeleteProposal(proposalID); err != nil {
		return err
	}
	l.m.ProposalsDeleted.Inc()
	l.lg.Info("proposal deleted", zap.String("id", proposalID))
	return nil
}

func (l *Ledger) GetProposal(proposalID string) (types.Proposal, bool) {
	return l.store.GetProposal(proposalID)
}

func (l *Ledger) ListProposals() []types.Proposal {
	return l.store.ListProposals()
}

func (l *Ledger) ListProposalsByUser(userID string) ([]types.Proposal, error) {
	if err := l.identity(userID); err != nil {
		return nil, err
	}
	return l.store.ListProposalsByUser(userID), nil
}

func (l *Ledger) HasVoted(proposalID, voter string) (bool, error) {
	if err := l.identity(voter); err != nil {
		return false, err
	}
	return l.store.HasVoted(proposalID, voter)
}

func (l *Ledger) ComputeStats() types.Stats {
	return l.store.ComputeStats()
}

func (l *Ledger) Results() []types.Result {
	return l.store.Results()
}

func (l *Ledger) CreateUserProfile(caller string, f types.ProfileFields) (string, error) {
	if err := l.identity(caller); err != nil {
		return "", err
	}
	f.FullName = strings.TrimSpace(f.FullName)
	f.Email = strings.TrimSpace(f.Email)
	if err := l.fields(f); err != nil {
		return "", err
	}

	now := l.now()
	u := types.UserProfile{
		Principal: caller,
		FullName:  f.FullName,
		Email:     f.Email,
		ImageURL:  f.ImageURL,
		Location:  f.Location,
		Website:   f.Website,
		Bio:       f.Bio,
		CreatedAt: now.Unix(),
	}
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		u.ID = l.ids.NewID(caller, now)
		if _, err = l.store.CreateUserProfile(u); !errors.Is(err, state.ErrDuplicateID) {
			break
		}
	}
	if err != nil {
		return "", err
	}

	l.m.ProfilesCreated.Inc()
	l.lg.Info("user profile created", zap.String("id", u.ID), zap.String("principal", caller))
	return u.ID, nil
}

func (l *Ledger) GetUserProfile(id string) (types.UserProfile, error) {
	u, ok := l.store.GetUserProfile(id)
	if !ok {
		return types.UserProfile{}, fmt.Errorf("profile %s: %w", id, state.ErrProfileNotFound)
	}
	return u, nil
}

func (l *Ledger) ListUserProfiles() []types.UserProfile {
	return l.store.ListUserProfiles()
}

func (l *Ledger) identity(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	if len(id) > maxIdentityLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidIdentity, maxIdentityLen)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == unicode.ReplacementChar {
			return fmt.Errorf("%w: %q contains illegal characters", ErrInvalidIdentity, id)
		}
	}
	if l.checkIdentity != nil {
		if err := l.checkIdentity(id); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
		}
	}
	return nil
}

func (l *Ledger) fields(v interface{}) error {
	if err := l.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
