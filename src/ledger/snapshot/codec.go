// Package snapshot converts the ledger state to and from the blob persisted
// between runs.
//
// The blob is a JSON envelope carrying a format version, the save time and an
// xxhash64 checksum of the compacted state document, so truncated or hand
// edited snapshots are rejected instead of half-restored.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/OneOfOne/xxhash"

	"github.com/stake-plus/govledger/src/ledger/state"
	"github.com/stake-plus/govledger/src/ledger/types"
)

// Version is the snapshot format written by Encode.
const Version = 1

var ErrCodec = errors.New("snapshot codec")

// Header is the envelope metadata of an encoded snapshot.
type Header struct {
	Version  int    `json:"version"`
	SavedAt  int64  `json:"savedAt"`
	Checksum string `json:"checksum"`
}

type envelope struct {
	Header
	State json.RawMessage `json:"state"`
}

type document struct {
	Proposals    []proposalDoc       `json:"proposals"`
	UserProfiles []types.UserProfile `json:"userProfiles"`
}

type proposalDoc struct {
	types.Proposal
	Voters []string `json:"voters"`
}

// Encode serializes snap. Output is deterministic for a given snap and savedAt.
func Encode(snap state.Snapshot, savedAt time.Time) ([]byte, error) {
	doc := document{
		Proposals:    make([]proposalDoc, 0, len(snap.Proposals)),
		UserProfiles: make([]types.UserProfile, 0, len(snap.UserProfiles)),
	}
	for _, p := range snap.Proposals {
		voters := make([]string, 0, len(p.Voters))
		for v := range p.Voters {
			voters = append(voters, v)
		}
		sort.Strings(voters)
		doc.Proposals = append(doc.Proposals, proposalDoc{Proposal: p, Voters: voters})
	}
	sort.Slice(doc.Proposals, func(i, j int) bool { return doc.Proposals[i].ID < doc.Proposals[j].ID })
	for _, u := range snap.UserProfiles {
		doc.UserProfiles = append(doc.UserProfiles, u)
	}
	sort.Slice(doc.UserProfiles, func(i, j int) bool { return doc.UserProfiles[i].ID < doc.UserProfiles[j].ID })

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode state: %v", ErrCodec, err)
	}

	return json.Marshal(envelope{
		Header: Header{
			Version:  Version,
			SavedAt:  savedAt.Unix(),
			Checksum: checksum(payload),
		},
		State: payload,
	})
}

// Inspect validates the envelope of data and returns its header.
func Inspect(data []byte) (Header, error) {
	env, _, err := open(data)
	return env.Header, err
}

// Decode parses data produced by Encode.
func Decode(data []byte) (state.Snapshot, error) {
	_, payload, err := open(data)
	if err != nil {
		return state.Snapshot{}, err
	}

	var doc document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return state.Snapshot{}, fmt.Errorf("%w: decode state: %v", ErrCodec, err)
	}

	snap := state.Snapshot{
		Proposals:    make(map[string]types.Proposal, len(doc.Proposals)),
		UserProfiles: make(map[string]types.UserProfile, len(doc.UserProfiles)),
	}
	for _, d := range doc.Proposals {
		if _, dup := snap.Proposals[d.ID]; dup {
			return state.Snapshot{}, fmt.Errorf("%w: duplicate proposal %s", ErrCodec, d.ID)
		}
		p := d.Proposal
		p.Voters = make(map[string]struct{}, len(d.Voters))
		for _, v := range d.Voters {
			p.Voters[v] = struct{}{}
		}
		snap.Proposals[p.ID] = p
	}
	for _, u := range doc.UserProfiles {
		if _, dup := snap.UserProfiles[u.ID]; dup {
			return state.Snapshot{}, fmt.Errorf("%w: duplicate profile %s", ErrCodec, u.ID)
		}
		snap.UserProfiles[u.ID] = u
	}
	return snap, nil
}

func open(data []byte) (envelope, []byte, error) {
	var env envelope
	if len(bytes.TrimSpace(data)) == 0 {
		return env, nil, fmt.Errorf("%w: empty snapshot", ErrCodec)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	if env.Version != Version {
		return env, nil, fmt.Errorf("%w: unsupported version %d", ErrCodec, env.Version)
	}
	if len(env.State) == 0 {
		return env, nil, fmt.Errorf("%w: missing state", ErrCodec)
	}

	var payload bytes.Buffer
	if err := json.Compact(&payload, env.State); err != nil {
		return env, nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	if sum := checksum(payload.Bytes()); sum != env.Checksum {
		return env, nil, fmt.Errorf("%w: checksum %s does not match %s", ErrCodec, env.Checksum, sum)
	}
	return env, payload.Bytes(), nil
}

func checksum(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Checksum64(b))
}
