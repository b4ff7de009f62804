// Package domain holds the shared types and repository contracts that flow between
// the ingest scanner, the publisher, the dispatcher, and the domain executor. It owns
// no infrastructure: postgres and rpc packages implement these interfaces.
package domain

import (
	"encoding/json"
	"time"
)

// InboxStatus is the lifecycle of one (event_id, handler_kind) inbox row.
type InboxStatus string

const (
	InboxPending InboxStatus = "PENDING"
	InboxAck     InboxStatus = "ACK"
	InboxFail    InboxStatus = "FAIL"
	InboxDLQ     InboxStatus = "DLQ"
)

// Subscription narrows a scanner's getLogs call to one address/topic0 pair. Either
// field may be empty to mean "any".
type Subscription struct {
	Address string
	Topic0  string
}

// Log is the bit-exact shape returned by a chain's getLogs RPC, already decoded from
// hex into native Go types.
type Log struct {
	Address         string
	BlockHash       string
	BlockNumber     uint64
	Data            string
	LogIndex        uint64
	Topics          []string
	TransactionHash string
	TransactionIndex uint64
}

// LogFilter is one getLogs query, always bounded by an explicit block range.
type LogFilter struct {
	FromBlock uint64
	ToBlock   uint64
	Address   string // empty means unfiltered
	Topic0    string // empty means unfiltered
}

// IngestEvent is the append-only row persisted for every ingested log.
type IngestEvent struct {
	EventID      string
	BlockNumber  uint64
	BlockHash    string
	Address      string
	Topic0       string
	PartitionKey string
	Payload      json.RawMessage
	CreatedAt    time.Time
}

// InboxEntry is the per-(event_id, handler_kind) exactly-once fence.
type InboxEntry struct {
	EventID       string
	HandlerKind   string
	Status        InboxStatus
	Attempts      int
	LastError     *string
	BlockNumber   uint64
	PartitionKey  string
	FirstSeenAt   time.Time
	LastAttemptAt *time.Time
}

// DispatchEvent is the read-only view of an IngestEvent handed to a batch handler.
type DispatchEvent struct {
	EventID      string
	BlockNumber  uint64
	PartitionKey string
	Address      string
	Topic0       string
	Payload      json.RawMessage
}

// DomainOutboxRow is the public shape of a pending on-chain command. Infrastructure
// reads only these columns; business-specific columns belong to the owning context.
type DomainOutboxRow struct {
	CommandKey  string
	Kind        string
	Payload     json.RawMessage
	PublishedAt *time.Time
	TxHash      *string
}
