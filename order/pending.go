// Package order implements the two-phase trade workflow: drafts awaiting
// confirmation and the orchestrator that validates and submits them.
package order

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dawoonj/krwbot/core"

	"github.com/google/uuid"
	"github.com/tidwall/buntdb"
)

// DraftKind separates order drafts from cancel drafts. Both share the single
// live draft slot a user has.
type DraftKind string

const (
	DraftKindOrder  DraftKind = "order"
	DraftKindCancel DraftKind = "cancel"
)

// Draft is a tokenized, TTL-bound order or cancel awaiting a second
// confirmation message. Quantities are fully resolved at prepare time.
type Draft struct {
	Token       string    `json:"token"`
	UserID      string    `json:"user_id"`
	ChannelID   string    `json:"channel_id"`
	ChannelKind string    `json:"channel_kind"`
	Kind        DraftKind `json:"kind"`

	Market  string        `json:"market,omitempty"`
	Side    core.SideType `json:"side,omitempty"`
	OrdType core.OrdType  `json:"ord_type,omitempty"`
	// Amount is the quote-currency notional of a market buy; Volume is the
	// base-currency quantity of everything else.
	Amount float64 `json:"amount,omitempty"`
	Volume float64 `json:"volume,omitempty"`
	Price  float64 `json:"price,omitempty"`

	TargetOrderID string `json:"target_order_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

const (
	draftPrefix = "draft:"
	userPrefix  = "user:"
)

// PendingStore holds live drafts in an in-memory buntdb keyed two ways:
// draft:<token> -> draft JSON and user:<id> -> token. All mutations run in a
// single buntdb transaction, which keeps the user index and the draft set
// consistent under concurrent dispatchers.
type PendingStore struct {
	db  *buntdb.DB
	ttl time.Duration
	now func() time.Time
}

func NewPendingStore(ttl time.Duration) (*PendingStore, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open pending store: %w", err)
	}
	return &PendingStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *PendingStore) Close() error {
	return s.db.Close()
}

// NewToken mints a short draft identifier, unique among live drafts.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Register stores a draft, evicting any prior draft owned by the same user.
// Expired drafts are swept first.
func (s *PendingStore) Register(draft Draft) error {
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = s.now()
	}

	encoded, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}

	return s.db.Update(func(tx *buntdb.Tx) error {
		if err := sweepExpired(tx, s.now(), s.ttl); err != nil {
			return err
		}

		// One draft per user: a new registration silently discards the old.
		if prev, err := tx.Get(userPrefix + draft.UserID); err == nil {
			if _, err := tx.Delete(draftPrefix + prev); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}

		if _, _, err := tx.Set(draftPrefix+draft.Token, string(encoded), nil); err != nil {
			return err
		}
		_, _, err := tx.Set(userPrefix+draft.UserID, draft.Token, nil)
		return err
	})
}

// Get returns the live draft for a token, if any.
func (s *PendingStore) Get(token string) (Draft, bool) {
	var draft Draft
	found := false
	_ = s.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(draftPrefix + token)
		if err != nil {
			return nil
		}
		if err := json.Unmarshal([]byte(value), &draft); err != nil {
			return nil
		}
		found = true
		return nil
	})
	return draft, found
}

// TokenFor resolves a user's single live draft token.
func (s *PendingStore) TokenFor(userID string) (string, bool) {
	var token string
	_ = s.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(userPrefix + userID)
		if err != nil {
			return nil
		}
		// The index may dangle after a sweep; only report tokens whose
		// draft is still present.
		if _, err := tx.Get(draftPrefix + value); err != nil {
			return nil
		}
		token = value
		return nil
	})
	return token, token != ""
}

// Remove deletes a consumed draft and its user index entry.
func (s *PendingStore) Remove(token string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		value, err := tx.Get(draftPrefix + token)
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var draft Draft
		if err := json.Unmarshal([]byte(value), &draft); err != nil {
			return fmt.Errorf("unmarshal draft: %w", err)
		}
		if _, err := tx.Delete(draftPrefix + token); err != nil {
			return err
		}
		if current, err := tx.Get(userPrefix + draft.UserID); err == nil && current == token {
			if _, err := tx.Delete(userPrefix + draft.UserID); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}

// CleanupExpired sweeps drafts older than the TTL. There is no background
// timer; callers invoke this at the start of register and confirm, so a
// stale draft may linger but can never be confirmed past its TTL.
func (s *PendingStore) CleanupExpired(now time.Time) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		return sweepExpired(tx, now, s.ttl)
	})
}

func sweepExpired(tx *buntdb.Tx, now time.Time, ttl time.Duration) error {
	type expired struct {
		token  string
		userID string
	}
	var stale []expired

	err := tx.AscendKeys(draftPrefix+"*", func(key, value string) bool {
		var draft Draft
		if err := json.Unmarshal([]byte(value), &draft); err != nil {
			stale = append(stale, expired{token: strings.TrimPrefix(key, draftPrefix)})
			return true
		}
		if now.Sub(draft.CreatedAt) > ttl {
			stale = append(stale, expired{token: draft.Token, userID: draft.UserID})
		}
		return true
	})
	if err != nil {
		return err
	}

	for _, item := range stale {
		if _, err := tx.Delete(draftPrefix + item.token); err != nil && err != buntdb.ErrNotFound {
			return err
		}
		if item.userID == "" {
			continue
		}
		// Only drop the user index if it still points at the removed token;
		// the user may have registered a newer draft since.
		if current, err := tx.Get(userPrefix + item.userID); err == nil && current == item.token {
			if _, err := tx.Delete(userPrefix + item.userID); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
	}
	return nil
}
