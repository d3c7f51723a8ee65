package models

import (
	"fmt"
	"time"
)

type ActionKind string

const (
	ActionLike       ActionKind = "like"
	ActionRepost     ActionKind = "repost"
	ActionRetweet    ActionKind = "retweet"
	ActionQuoteTweet ActionKind = "quote_tweet"
	ActionReply      ActionKind = "reply"
)

// Strength orders the decision outcomes: like < repost < retweet < quote_tweet.
// Reply is not a decision outcome and has strength -1.
func (k ActionKind) Strength() int {
	switch k {
	case ActionLike:
		return 0
	case ActionRepost:
		return 1
	case ActionRetweet:
		return 2
	case ActionQuoteTweet:
		return 3
	default:
		return -1
	}
}

// IsDecision reports whether k is one of the actions the decision engine may recommend.
func (k ActionKind) IsDecision() bool {
	return k.Strength() >= 0
}

// ParseActionKind accepts the decision outcomes only.
func ParseActionKind(s string) (ActionKind, bool) {
	k := ActionKind(s)
	if !k.IsDecision() {
		return "", false
	}
	return k, true
}

// ActionKey identifies one (action, account, candidate) execution. It is the
// unit of idempotency in the ledger.
type ActionKey struct {
	Kind        ActionKind
	AccountID   string
	CandidateID string
}

func NewActionKey(kind ActionKind, accountID, candidateID string) ActionKey {
	return ActionKey{Kind: kind, AccountID: accountID, CandidateID: candidateID}
}

// String renders the key as stored in the ledger, e.g. like_acct1_12345.
func (k ActionKey) String() string {
	return fmt.Sprintf("%s_%s_%s", k.Kind, k.AccountID, k.CandidateID)
}

// LedgerEntry is one append-only ledger row.
type LedgerEntry struct {
	Key       string            `json:"action_key"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
