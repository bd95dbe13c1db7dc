package ledger

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a student, event or code does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique name or code is already taken.
	ErrDuplicate = errors.New("already exists")
	// ErrForbidden is returned when the caller is not an admin.
	ErrForbidden = errors.New("admin rights required")
	// ErrInvalid is returned for arguments the adapters should have rejected.
	ErrInvalid = errors.New("invalid argument")
)

// MaxNameLength bounds student and event names, in characters.
const MaxNameLength = 100

// Student is a registered participant and their point balance.
type Student struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Username     *string   `json:"username,omitempty"`
	Course       *string   `json:"course,omitempty"`
	Faculty      *string   `json:"faculty,omitempty"`
	Balance      int       `json:"balance"`
	RegisteredAt time.Time `json:"registered_at"`
}

// NewStudent carries registration input. Optional fields are nil when unknown.
type NewStudent struct {
	ID       int64
	Name     string
	Username *string
	Course   *string
	Faculty  *string
}

// Event groups the codes handed out at one activity.
type Event struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Code is a redeemable string. Income codes grant points, outcome codes spend them.
type Code struct {
	ID        int64     `json:"id"`
	EventID   int64     `json:"event_id"`
	Text      string    `json:"code"`
	Points    int       `json:"points"`
	IsIncome  bool      `json:"is_income"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// CodeUsage is a code together with how many students redeemed it.
type CodeUsage struct {
	Code       string `json:"code"`
	EventID    int64  `json:"event_id"`
	EventName  string `json:"event_name"`
	Points     int    `json:"points"`
	IsIncome   bool   `json:"is_income"`
	Active     bool   `json:"active"`
	UsageCount int    `json:"usage_count"`
}

// RatingEntry is one leaderboard row.
type RatingEntry struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Balance  int    `json:"balance"`
}

// Outcome is the result of a redemption attempt.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeNotRegistered
	OutcomeCodeNotFound
	OutcomeCodeInactive
	OutcomeWrongDirection
	OutcomeAlreadyUsed
	OutcomeInsufficientBalance
)

var outcomeNames = map[Outcome]string{
	OutcomeAccepted:            "accepted",
	OutcomeNotRegistered:       "not_registered",
	OutcomeCodeNotFound:        "code_not_found",
	OutcomeCodeInactive:        "code_inactive",
	OutcomeWrongDirection:      "wrong_direction",
	OutcomeAlreadyUsed:         "already_used",
	OutcomeInsufficientBalance: "insufficient_balance",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Rejected collapses every non-accepted outcome into one "invalid or used" answer.
func (o Outcome) Rejected() bool { return o != OutcomeAccepted }

// Redemption describes a GrantPoints or SpendPoints call. Points and Balance
// are only meaningful when Outcome is OutcomeAccepted.
type Redemption struct {
	Outcome Outcome `json:"-"`
	Status  string  `json:"status"`
	Code    string  `json:"code"`
	Points  int     `json:"points"`
	Balance int     `json:"balance"`
}

func newRedemption(o Outcome, code string) Redemption {
	return Redemption{Outcome: o, Status: o.String(), Code: code}
}
