package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stake-plus/govledger/src/ledger/data"
	"github.com/stake-plus/govledger/src/ledger/metrics"
	"github.com/stake-plus/govledger/src/ledger/snapshot"
	"github.com/stake-plus/govledger/src/ledger/state"
	"github.com/stake-plus/govledger/src/ledger/types"
)

type memStore struct {
	mu    sync.Mutex
	blob  []byte
	saves int
	err   error
}

func (m *memStore) Save(_ context.Context, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.blob = append([]byte(nil), blob...)
	return nil
}

func (m *memStore) Load(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.blob == nil {
		return nil, data.ErrNoSnapshot
	}
	return append([]byte(nil), m.blob...), nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newLedger(t *testing.T, snaps data.SnapshotStore, opts ...Option) (*Ledger, *metrics.Collector) {
	t.Helper()
	m := metrics.NewCollector("ledger")
	opts = append([]Option{WithClock(func() time.Time { return epoch })}, opts...)
	return New(state.NewStore(), snaps, zap.NewNop(), m, opts...), m
}

func budget() types.ProposalFields {
	return types.ProposalFields{
		Title:        "Budget 2025",
		Description:  "Approve the annual budget",
		DurationDays: 7,
	}
}

func TestCreateProposalStampsCallerAndClock(t *testing.T) {
	l, m := newLedger(t, &memStore{})

	id, err := l.CreateProposal("alice", budget())
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{32}$`, id)

	p, ok := l.GetProposal(id)
	require.True(t, ok)
	assert.Equal(t, "alice", p.AuthorID)
	assert.Equal(t, epoch.Unix(), p.CreatedAt)
	assert.Equal(t, epoch.Add(7*24*time.Hour), p.EndsAt().UTC())
	assert.Equal(t, "Budget 2025", p.Title)
	assert.Zero(t, p.TotalVotes())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProposalsCreated))
}

func TestCreateProposalSameTickDistinctIDs(t *testing.T) {
	l, _ := newLedger(t, &memStore{})

	a, err := l.CreateProposal("alice", budget())
	require.NoError(t, err)
	b, err := l.CreateProposal("alice", budget())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, l.ListProposals(), 2)
}

func TestCreateProposalValidation(t *testing.T) {
	l, _ := newLedger(t, &memStore{})

	tests := []struct {
		name   string
		caller string
		mutate func(*types.ProposalFields)
		want   error
	}{
		{"empty caller", "", nil, ErrInvalidIdentity},
		{"whitespace caller", "ali ce", nil, ErrInvalidIdentity},
		{"control caller", "alice\x00", nil, ErrInvalidIdentity},
		{"blank title", "alice", func(f *types.ProposalFields) { f.Title = "   " }, ErrValidation},
		{"zero duration", "alice", func(f *types.ProposalFields) { f.DurationDays = 0 }, ErrValidation},
		{"bad image url", "alice", func(f *types.ProposalFields) { f.ImageURL = "not a url" }, ErrValidation},
		{"invalid utf8 title", "alice", func(f *types.ProposalFields) { f.Title = "Budget \xff 2025" }, ErrValidation},
		{"invalid utf8 category", "alice", func(f *types.ProposalFields) { f.Category = "fin\xc3" }, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := budget()
			if tt.mutate != nil {
				tt.mutate(&f)
			}
			_, err := l.CreateProposal(tt.caller, f)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, l.ListProposals())
}

func TestIdentityValidatorHook(t *testing.T) {
	reject := errors.New("not a key")
	l, _ := newLedger(t, &memStore{}, WithIdentityValidator(func(id string) error {
		if id != "alice" {
			return reject
		}
		return nil
	}))

	_, err := l.CreateProposal("mallory", budget())
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	id, err := l.CreateProposal("alice", budget())
	require.NoError(t, err)
	assert.ErrorIs(t, l.Vote(id, "mallory", types.ChoiceYes), ErrInvalidIdentity)
}

func TestVoteFlow(t *testing.T) {
	l, m := newLedger(t, &memStore{})
	id, err := l.CreateProposal("alice", budget())
	require.NoError(t, err)

	require.NoError(t, l.Vote(id, "bob", types.ChoiceYes))
	require.NoError(t, l.Vote(id, "carol", types.ChoiceNo))
	assert.ErrorIs(t, l.Vote(id, "bob", types.ChoiceNo), ErrAlreadyVoted)
	assert.ErrorIs(t, l.Vote("missing", "bob", types.ChoiceYes), ErrProposalNotFound)
	assert.ErrorIs(t, l.Vote(id, "dave", types.Choice("maybe")), ErrInvalidChoice)

	p, _ := l.GetProposal(id)
	assert.Equal(t, uint64(1), p.YesVotes)
	assert.Equal(t, uint64(1), p.NoVotes)

	voted, err := l.HasVoted(id, "bob")
	require.NoError(t, err)
	assert.True(t, voted)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.VotesCast.WithLabelValues("yes")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VotesRejected.WithLabelValues("already_voted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VotesRejected.WithLabelValues("not_found")))
}

func TestDeleteAndListByUser(t *testing.T) {
	l, _ := newLedger(t, &memStore{})
	a, _ := l.CreateProposal("alice", budget())
	_, _ = l.CreateProposal("bob", budget())

	mine, err := l.ListProposalsByUser("alice")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a, mine[0].ID)

	_, err = l.ListProposalsByUser("")
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	require.NoError(t, l.DeleteProposal(a))
	assert.ErrorIs(t, l.DeleteProposal(a), ErrProposalNotFound)
	assert.Len(t, l.ListProposals(), 1)
}

func TestUserProfiles(t *testing.T) {
	l, m := newLedger(t, &memStore{})

	_, err := l.CreateUserProfile("alice", types.ProfileFields{FullName: "Alice", Email: "nope"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = l.CreateUserProfile("alice", types.ProfileFields{FullName: "Al\xffce", Email: "alice@example.org"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = l.CreateUserProfile("alice", types.ProfileFields{FullName: "Alice", Email: "alice@example.org", Bio: "\xfe"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, l.ListUserProfiles())

	id, err := l.CreateUserProfile("alice", types.ProfileFields{FullName: " Alice ", Email: "alice@example.org"})
	require.NoError(t, err)

	u, err := l.GetUserProfile(id)
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.FullName)
	assert.Equal(t, "alice", u.Principal)
	assert.Equal(t, epoch.Unix(), u.CreatedAt)

	_, err = l.GetUserProfile("missing")
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.Len(t, l.ListUserProfiles(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProfilesCreated))
}

func TestStatsAndResults(t *testing.T) {
	l, _ := newLedger(t, &memStore{})
	a, _ := l.CreateProposal("alice", budget())
	for _, v := range []string{"v1", "v2", "v3"} {
		require.NoError(t, l.Vote(a, v, types.ChoiceYes))
	}
	require.NoError(t, l.Vote(a, "v4", types.ChoiceNo))

	st := l.ComputeStats()
	assert.Equal(t, uint64(1), st.TotalProposals)
	assert.Equal(t, uint64(4), st.TotalVotes)

	res := l.Results()
	require.Len(t, res, 1)
	assert.InDelta(t, 75.0, res[0].YesPercent, 0.001)
}

func TestCheckpointAndRestart(t *testing.T) {
	snaps := &memStore{}
	l, _ := newLedger(t, snaps)
	id, _ := l.CreateProposal("alice", budget())
	require.NoError(t, l.Vote(id, "bob", types.ChoiceYes))
	pid, _ := l.CreateUserProfile("alice", types.ProfileFields{FullName: "Alice", Email: "alice@example.org"})

	assert.True(t, l.Dirty())
	require.NoError(t, l.OnShutdown(context.Background()))
	assert.False(t, l.Dirty())

	restarted, _ := newLedger(t, snaps)
	require.NoError(t, restarted.OnStartup(context.Background()))
	assert.False(t, restarted.Dirty())

	p, ok := restarted.GetProposal(id)
	require.True(t, ok)
	assert.Equal(t, uint64(1), p.YesVotes)
	assert.ErrorIs(t, restarted.Vote(id, "bob", types.ChoiceNo), ErrAlreadyVoted)
	_, err := restarted.GetUserProfile(pid)
	assert.NoError(t, err)
}

func TestTextSurvivesRestart(t *testing.T) {
	snaps := &memStore{}
	l, _ := newLedger(t, snaps)
	f := budget()
	f.Title = "Budget 2025 ✓ Übersicht"
	f.FullDescription = "naïve <p>café</p>"
	id, err := l.CreateProposal("alice", f)
	require.NoError(t, err)
	before, _ := l.GetProposal(id)
	require.NoError(t, l.Checkpoint(context.Background()))

	restarted, _ := newLedger(t, snaps)
	require.NoError(t, restarted.OnStartup(context.Background()))
	after, ok := restarted.GetProposal(id)
	require.True(t, ok)
	assert.Equal(t, before, after)

	f.Title = "Budget \xff 2025"
	_, err = l.CreateProposal("alice", f)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStartupWithoutSnapshot(t *testing.T) {
	l, m := newLedger(t, &memStore{})
	require.NoError(t, l.OnStartup(context.Background()))
	assert.Empty(t, l.ListProposals())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotOps.WithLabelValues("load", "missing")))
}

func TestStartupWithCorruptSnapshot(t *testing.T) {
	snaps := &memStore{blob: []byte(`{"version":1,"checksum":"00","state":{}}`)}
	l, m := newLedger(t, snaps)
	require.NoError(t, l.OnStartup(context.Background()))
	assert.Empty(t, l.ListProposals())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotOps.WithLabelValues("load", "corrupt")))
}

func TestStartupQuarantinesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.snapshot")
	fs := data.NewFileStore(path)
	require.NoError(t, fs.Save(context.Background(), []byte("{truncated")))

	l, _ := newLedger(t, fs)
	require.NoError(t, l.OnStartup(context.Background()))

	_, err := fs.Load(context.Background())
	assert.ErrorIs(t, err, data.ErrNoSnapshot)
	matches, _ := filepath.Glob(path + ".corrupt-*")
	assert.Len(t, matches, 1)
}

func TestStartupQuarantinesThroughBreaker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.snapshot")
	fs := data.NewFileStore(path)
	require.NoError(t, fs.Save(context.Background(), []byte(`{"version":1,"checksum":"00","state":{}}`)))

	l, _ := newLedger(t, data.NewBreakerStore("file", fs, zap.NewNop()))
	require.NoError(t, l.OnStartup(context.Background()))
	require.NoError(t, l.OnShutdown(context.Background()))

	matches, _ := filepath.Glob(path + ".corrupt-*")
	require.Len(t, matches, 1)
	kept, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(kept), `"checksum":"00"`)
}

func TestStartupBackendFailure(t *testing.T) {
	l, _ := newLedger(t, &memStore{err: errors.New("connection refused")})
	assert.Error(t, l.OnStartup(context.Background()))
}

func TestCheckpointError(t *testing.T) {
	l, m := newLedger(t, &memStore{err: errors.New("disk full")})
	_, _ = l.CreateProposal("alice", budget())
	assert.Error(t, l.Checkpoint(context.Background()))
	assert.True(t, l.Dirty())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotOps.WithLabelValues("save", "error")))
}

func TestRunCheckpointsOnlyWhenDirty(t *testing.T) {
	snaps := &memStore{}
	l, _ := newLedger(t, snaps)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.RunCheckpoints(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, snaps.saveCount())

	_, _ = l.CreateProposal("alice", budget())
	assert.Eventually(t, func() bool { return snaps.saveCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, snaps.saveCount())

	cancel()
	<-done
}

func TestExportRestore(t *testing.T) {
	src, _ := newLedger(t, &memStore{})
	id, _ := src.CreateProposal("alice", budget())
	blob, err := src.Export()
	require.NoError(t, err)

	dst, _ := newLedger(t, &memStore{})
	require.NoError(t, dst.Restore(blob))
	_, ok := dst.GetProposal(id)
	assert.True(t, ok)
	assert.True(t, dst.Dirty())

	assert.ErrorIs(t, dst.Restore([]byte("junk")), snapshot.ErrCodec)
	_, ok = dst.GetProposal(id)
	assert.True(t, ok)
}
