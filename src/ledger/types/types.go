package types

import "time"

// Choice is the side a voter picks on a proposal.
type Choice string

const (
	ChoiceYes Choice = "yes"
	ChoiceNo  Choice = "no"
)

// Valid reports whether c is one of the two ballot options.
func (c Choice) Valid() bool {
	return c == ChoiceYes || c == ChoiceNo
}

// Proposal is a votable item with its running tally.
type Proposal struct {
	ID              string              `json:"id"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	CreatedAt       int64               `json:"createdAt"`
	DurationDays    int                 `json:"durationDays"`
	YesVotes        uint64              `json:"yesVotes"`
	NoVotes         uint64              `json:"noVotes"`
	Voters          map[string]struct{} `json:"-"`
	AuthorID        string              `json:"authorId"`
	ImageURL        string              `json:"imageUrl,omitempty"`
	Category        string              `json:"category,omitempty"`
	Author          string              `json:"author,omitempty"`
	FullDescription string              `json:"fullDescription,omitempty"`
	Status          string              `json:"status,omitempty"`
}

// TotalVotes is the number of ballots recorded on p.
func (p Proposal) TotalVotes() uint64 { return p.YesVotes + p.NoVotes }

// EndsAt is when the voting window closes. It is informational only.
func (p Proposal) EndsAt() time.Time {
	return time.Unix(p.CreatedAt, 0).Add(time.Duration(p.DurationDays) * 24 * time.Hour)
}

// ProposalFields are the caller supplied values of a new proposal.
type ProposalFields struct {
	Title           string `validate:"required,utf8,max=255"`
	Description     string `validate:"required,utf8,max=10000"`
	DurationDays    int    `validate:"min=1,max=365"`
	ImageURL        string `validate:"omitempty,utf8,url"`
	Category        string `validate:"utf8,max=64"`
	Author          string `validate:"utf8,max=128"`
	FullDescription string `validate:"utf8,max=50000"`
	Status          string `validate:"utf8,max=32"`
}

// UserProfile describes a participant.
type UserProfile struct {
	ID        string `json:"id"`
	Principal string `json:"principal"`
	FullName  string `json:"fullName"`
	Email     string `json:"email"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Location  string `json:"location,omitempty"`
	Website   string `json:"website,omitempty"`
	Bio       string `json:"bio,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// ProfileFields are the caller supplied values of a new profile.
type ProfileFields struct {
	FullName string `validate:"required,utf8,max=128"`
	Email    string `validate:"required,utf8,email"`
	ImageURL string `validate:"omitempty,utf8,url"`
	Location string `validate:"utf8,max=128"`
	Website  string `validate:"omitempty,utf8,url"`
	Bio      string `validate:"utf8,max=2000"`
}

// Stats aggregates the tallies of every proposal.
type Stats struct {
	TotalProposals uint64 `json:"totalProposals"`
	TotalYesVotes  uint64 `json:"totalYesVotes"`
	TotalNoVotes   uint64 `json:"totalNoVotes"`
	TotalVotes     uint64 `json:"totalVotes"`
}

// Result is the tally of one proposal.
type Result struct {
	ProposalID string  `json:"proposalId"`
	Title      string  `json:"title"`
	YesVotes   uint64  `json:"yesVotes"`
	NoVotes    uint64  `json:"noVotes"`
	Total      uint64  `json:"totalVotes"`
	YesPercent float64 `json:"yesPercent"`
}

// SnapshotRecord stores encoded ledger snapshots in MySQL.
type SnapshotRecord struct {
	ID        uint64 `gorm:"primaryKey"`
	Name      string `gorm:"size:64;index;not null"`
	Payload   []byte `gorm:"type:longblob;not null"`
	SizeBytes int    `gorm:"not null"`
	CreatedAt time.Time
}
