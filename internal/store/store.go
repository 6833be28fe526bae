// ABOUTME: Store interface and data types for herald persistence
// ABOUTME: Defines Connection, Broadcast, Delivery, Group structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateBroadcast is returned when trying to create a broadcast that already exists
var ErrDuplicateBroadcast = errors.New("broadcast already exists")

// ErrNotPending is returned when an operation requires a pending broadcast
// but the broadcast has already left the pending state
var ErrNotPending = errors.New("broadcast is not pending")

// Connection status constants. The row itself is never deleted once a user
// has connected: resets clear the channel fields and keep the billing
// bookkeeping (plan, trial, created_at) in place.
const (
	ConnectionStatusInitializing    = "initializing"     // channel created, pairing not yet offered
	ConnectionStatusAwaitingPairing = "awaiting_pairing" // pairing code issued, waiting for scan
	ConnectionStatusConnected       = "connected"        // messaging account linked and usable
	ConnectionStatusDisconnected    = "disconnected"     // user tore the channel down
	ConnectionStatusUnauthorized    = "unauthorized"     // account unlinked on the remote side
	ConnectionStatusAbsent          = "absent"           // channel gone on the gateway, fields cleared
)

// Broadcast status constants
const (
	BroadcastStatusPending   = "pending"   // scheduled, waiting for its send time
	BroadcastStatusSending   = "sending"   // claimed by a dispatch run
	BroadcastStatusSent      = "sent"      // every recipient delivery succeeded
	BroadcastStatusPartial   = "partial"   // some deliveries succeeded, some failed
	BroadcastStatusFailed    = "failed"    // no delivery succeeded
	BroadcastStatusCancelled = "cancelled" // withdrawn before dispatch
)

// Delivery status constants
const (
	DeliveryStatusSent   = "sent"
	DeliveryStatusFailed = "failed"
)

// Connection represents a user's channel on the upstream gateway.
// At most one row exists per user.
type Connection struct {
	UserID           string
	ChannelID        string
	ChannelToken     string
	Status           string
	Plan             string
	TrialEndsAt      *time.Time
	ChannelCreatedAt time.Time
	LastUpdated      time.Time
	CreatedAt        time.Time
}

// Broadcast represents a message scheduled for delivery to a set of groups.
// GroupIDs is the recipient snapshot resolved at creation time.
type Broadcast struct {
	ID        string
	UserID    string
	Message   string
	MediaURL  string
	GroupIDs  []string
	SendAt    time.Time
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Delivery represents one send attempt outcome for one recipient group.
// Delivery rows are append-only.
type Delivery struct {
	ID          string
	BroadcastID string
	GroupID     string
	Status      string
	Error       string
	RemoteID    string
	SentAt      time.Time
}

// Group represents a recipient group mirrored from the user's messaging account
type Group struct {
	UserID   string
	GroupID  string
	Name     string
	Tags     []string
	SyncedAt time.Time
}

// Store defines the interface for herald persistence
type Store interface {
	// Connections
	UpsertConnection(ctx context.Context, conn *Connection) error
	GetConnection(ctx context.Context, userID string) (*Connection, error)
	GetConnectionByChannel(ctx context.Context, channelID string) (*Connection, error)
	ListConnectionsWithChannel(ctx context.Context) ([]*Connection, error)
	SetConnectionStatus(ctx context.Context, userID, status string, at time.Time) error

	// Broadcasts
	CreateBroadcast(ctx context.Context, b *Broadcast) error
	GetBroadcast(ctx context.Context, id string) (*Broadcast, error)
	ListBroadcasts(ctx context.Context, userID string, limit int) ([]*Broadcast, error)
	ClaimDueBroadcasts(ctx context.Context, now time.Time, limit int) ([]*Broadcast, error)
	ClaimBroadcast(ctx context.Context, id string, at time.Time) (bool, error)
	FinishBroadcast(ctx context.Context, id, status string, at time.Time) error
	CancelBroadcast(ctx context.Context, id string, at time.Time) error

	// Deliveries
	CreateDelivery(ctx context.Context, d *Delivery) error
	ListDeliveries(ctx context.Context, broadcastID string) ([]*Delivery, error)

	// Groups
	ReplaceGroups(ctx context.Context, userID string, groups []*Group) error
	ListGroups(ctx context.Context, userID string) ([]*Group, error)

	// Close releases any resources held by the store
	Close() error
}
