package domain

import "github.com/holiman/uint256"

// EventType identifies a ledger event.
type EventType string

// Event type constants.
const (
	EventMinted          EventType = "minted"
	EventTransferred     EventType = "transferred"
	EventBurned          EventType = "burned"
	EventRoleGranted     EventType = "role_granted"
	EventRoleRevoked     EventType = "role_revoked"
	EventFeesUpdated     EventType = "fees_updated"
	EventApprovalUpdated EventType = "approval_updated"
)

// Event is one observable ledger state change, published after the change
// has been committed. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType    `json:"type"`
	Timestamp int64        `json:"timestamp"` // ms
	TokenID   *uint64      `json:"tokenId,omitempty"`
	From      Address      `json:"from,omitempty"`
	To        Address      `json:"to,omitempty"`
	Quantity  uint64       `json:"quantity,omitempty"`
	Paid      *uint256.Int `json:"paid,omitempty"`
	Role      string       `json:"role,omitempty"`
	Member    Address      `json:"member,omitempty"`
}
