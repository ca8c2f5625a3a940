// Package state holds the ledger aggregate: every proposal and user profile,
// guarded by a single lock so each mutation is applied as one unit.
package state

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stake-plus/govledger/src/ledger/types"
)

// Snapshot is a point-in-time deep copy of the store contents.
type Snapshot struct {
	Proposals    map[string]types.Proposal
	UserProfiles map[string]types.UserProfile
}

// Store owns all proposals and profiles. Callers only ever see copies.
type Store struct {
	mu           sync.RWMutex
	proposals    map[string]types.Proposal
	userProfiles map[string]types.UserProfile
	revision     uint64
}

func NewStore() *Store {
	return &Store{
		proposals:    make(map[string]types.Proposal),
		userProfiles: make(map[string]types.UserProfile),
	}
}

// Revision increases on every successful mutation.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// CreateProposal inserts p under p.ID with an empty tally.
func (s *Store) CreateProposal(p types.Proposal) (string, error) {
	p.YesVotes, p.NoVotes = 0, 0
	p.Voters = make(map[string]struct{})

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.proposals[p.ID]; ok {
		return "", fmt.Errorf("proposal %s: %w", p.ID, ErrDuplicateID)
	}
	s.proposals[p.ID] = p
	s.revision++
	return p.ID, nil
}

// Vote records voter's choice on the proposal. A voter counts once.
func (s *Store) Vote(proposalID, voter string, choice types.Choice) error {
	if !choice.Valid() {
		return fmt.Errorf("%q: %w", choice, ErrInvalidChoice)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[proposalID]
	if !ok {
		return fmt.Errorf("proposal %s: %w", proposalID, ErrProposalNotFound)
	}
	if _, voted := p.Voters[voter]; voted {
		return fmt.Errorf("proposal %s: %w", proposalID, ErrAlreadyVoted)
	}

	switch choice {
	case types.ChoiceYes:
		p.YesVotes++
	case types.ChoiceNo:
		p.NoVotes++
	}
	p.Voters[voter] = struct{}{}
	s.proposals[proposalID] = p
	s.revision++
	return nil
}

func (s *Store) DeleteProposal(proposalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.proposals[proposalID]; !ok {
		return fmt.Errorf("proposal %s: %w", proposalID, ErrProposalNotFound)
	}
	delete(s.proposals, proposalID)
	s.revision++
	return nil
}

func (s *Store) GetProposal(proposalID string) (types.Proposal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[proposalID]
	if !ok {
		return types.Proposal{}, false
	}
	return cloneProposal(p), true
}

// ListProposals returns every proposal, oldest first.
func (s *Store) ListProposals() []types.Proposal {
	return s.filterProposals(func(types.Proposal) bool { return true })
}

// ListProposalsByUser returns the proposals created by authorID, oldest first.
func (s *Store) ListProposalsByUser(authorID string) []types.Proposal {
	return s.filterProposals(func(p types.Proposal) bool { return p.AuthorID == authorID })
}

func (s *Store) filterProposals(keep func(types.Proposal) bool) []types.Proposal {
	s.mu.RLock()
	out := make([]types.Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		if keep(p) {
			out = append(out, cloneProposal(p))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// HasVoted reports whether voter already cast a ballot on the proposal.
func (s *Store) HasVoted(proposalID, voter string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[proposalID]
	if !ok {
		return false, fmt.Errorf("proposal %s: %w", proposalID, ErrProposalNotFound)
	}
	_, voted := p.Voters[voter]
	return voted, nil
}

func (s *Store) ComputeStats() types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := types.Stats{TotalProposals: uint64(len(s.proposals))}
	for _, p := range s.proposals {
		st.TotalYesVotes += p.YesVotes
		st.TotalNoVotes += p.NoVotes
	}
	st.TotalVotes = st.TotalYesVotes + st.TotalNoVotes
	return st
}

// Results lists the tally of every proposal, oldest first.
func (s *Store) Results() []types.Result {
	proposals := s.ListProposals()
	out := make([]types.Result, 0, len(proposals))
	for _, p := range proposals {
		r := types.Result{
			ProposalID: p.ID,
			Title:      p.Title,
			YesVotes:   p.YesVotes,
			NoVotes:    p.NoVotes,
			Total:      p.TotalVotes(),
		}
		if r.Total > 0 {
			r.YesPercent = float64(r.YesVotes) * 100 / float64(r.Total)
		}
		out = append(out, r)
	}
	return out
}

func (s *Store) CreateUserProfile(u types.UserProfile) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.userProfiles[u.ID]; ok {
		return "", fmt.Errorf("profile %s: %w", u.ID, ErrDuplicateID)
	}
	s.userProfiles[u.ID] = u
	s.revision++
	return u.ID, nil
}

func (s *Store) GetUserProfile(id string) (types.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.userProfiles[id]
	return u, ok
}

// ListUserProfiles returns every profile, oldest first.
func (s *Store) ListUserProfiles() []types.UserProfile {
	s.mu.RLock()
	out := make([]types.UserProfile, 0, len(s.userProfiles))
	for _, u := range s.userProfiles {
		out = append(out, u)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Export copies the whole state under the read lock.
func (s *Store) Export() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Proposals:    make(map[string]types.Proposal, len(s.proposals)),
		UserProfiles: make(map[string]types.UserProfile, len(s.userProfiles)),
	}
	for k, v := range s.proposals {
		snap.Proposals[k] = cloneProposal(v)
	}
	for k, v := range s.userProfiles {
		snap.UserProfiles[k] = v
	}
	return snap
}

// Restore replaces the store contents with snap. The current state is kept
// when snap breaks a key or tally invariant.
func (s *Store) Restore(snap Snapshot) error {
	proposals := make(map[string]types.Proposal, len(snap.Proposals))
	for k, v := range snap.Proposals {
		if k != v.ID {
			return fmt.Errorf("proposal key %s holds id %s: %w", k, v.ID, ErrInvalidSnapshot)
		}
		p := cloneProposal(v)
		if p.YesVotes+p.NoVotes != uint64(len(p.Voters)) {
			return fmt.Errorf("proposal %s tally %d+%d with %d voters: %w",
				k, p.YesVotes, p.NoVotes, len(p.Voters), ErrInvalidSnapshot)
		}
		proposals[k] = p
	}
	profiles := make(map[string]types.UserProfile, len(snap.UserProfiles))
	for k, v := range snap.UserProfiles {
		if k != v.ID {
			return fmt.Errorf("profile key %s holds id %s: %w", k, v.ID, ErrInvalidSnapshot)
		}
		profiles[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals = proposals
	s.userProfiles = profiles
	s.revision++
	return nil
}

func cloneProposal(p types.Proposal) types.Proposal {
	voters := make(map[string]struct{}, len(p.Voters))
	for v := range p.Voters {
		voters[v] = struct{}{}
	}
	p.Voters = voters
	return p
}
