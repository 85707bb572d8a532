package model

import "time"

// RequestStatus is the lifecycle of a friend request. Rejected and cancelled
// requests are deleted rather than kept with a third status.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
)

// FriendRequest is a directed request from SenderID to ReceiverID.
// At most one pending request exists per ordered pair.
type FriendRequest struct {
	ID         string        `json:"id"`
	SenderID   string        `json:"senderId"`
	ReceiverID string        `json:"receiverId"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// PendingRequest is a request listing entry: the request id and the user on
// the other side of it.
type PendingRequest struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// FriendStatus describes how one user relates to another.
type FriendStatus string

const (
	StatusSelf            FriendStatus = "self"
	StatusFriends         FriendStatus = "friends"
	StatusRequestSent     FriendStatus = "request_sent"
	StatusRequestReceived FriendStatus = "request_received"
	StatusNone            FriendStatus = "none"
)

// Relation is the answer to a friend-status lookup. RequestID is set when
// a pending request exists in either direction.
type Relation struct {
	Status    FriendStatus `json:"status"`
	RequestID string       `json:"requestId,omitempty"`
}
