// Package models defines the core data structures for AtendeBot.
//
// It includes the menu tree node type, conversation navigation state, and
// the session/analytics records shared across modules.
package models

import (
	"errors"
	"time"
)

// NodeKind determines what selecting a menu node does.
type NodeKind string

const (
	// NodeKindSubmenu shows the node's children as a numbered list.
	NodeKindSubmenu NodeKind = "submenu"
	// NodeKindContent shows the node's terminal content.
	NodeKindContent NodeKind = "content"
	// NodeKindAction triggers a navigation action (see ActionPayload).
	NodeKindAction NodeKind = "action"
)

// ActionPayload identifies the action carried by an action-kind node.
type ActionPayload string

const (
	// ActionReturnToRoot sends the user back to the main menu.
	ActionReturnToRoot ActionPayload = "return_to_root"
	// ActionEndConversation ends the conversation with a farewell.
	ActionEndConversation ActionPayload = "end_conversation"
)

// Validation constants for menu node input validation
const (
	// MaxNodeTitleLength defines the maximum allowed length for a node title
	MaxNodeTitleLength = 200
	// MaxNodeContentLength defines the maximum allowed length for node content
	MaxNodeContentLength = 4096
)

// Error variables for better error handling and testability
var (
	ErrEmptyNodeID       = errors.New("node id cannot be empty")
	ErrEmptyNodeTitle    = errors.New("node title cannot be empty")
	ErrNodeTitleTooLong  = errors.New("node title exceeds maximum length")
	ErrNodeContentLong   = errors.New("node content exceeds maximum length")
	ErrInvalidNodeKind   = errors.New("invalid node kind")
	ErrNegativeNodeOrder = errors.New("node order must be non-negative")
	ErrEmptyPhone        = errors.New("phone number cannot be empty")
)

// IsValidNodeKind checks if the given node kind is supported.
func IsValidNodeKind(k NodeKind) bool {
	switch k {
	case NodeKindSubmenu, NodeKindContent, NodeKindAction:
		return true
	default:
		return false
	}
}

// MenuNode is one node of the administrator-authored menu tree.
// A node with an empty ParentID is a root node shown in the main menu.
// Order is unique only among siblings and defines display and selection
// order.
type MenuNode struct {
	ID            string        `json:"id"`
	ParentID      string        `json:"parent_id,omitempty"`
	Order         int           `json:"order"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Content       string        `json:"content,omitempty"`
	URL           string        `json:"url,omitempty"`
	Kind          NodeKind      `json:"kind"`
	ActionPayload ActionPayload `json:"action_payload,omitempty"`
	IsActive      bool          `json:"is_active"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Validate performs validation on a MenuNode before it is persisted.
func (n *MenuNode) Validate() error {
	if n.ID == "" {
		return ErrEmptyNodeID
	}
	if n.Title == "" {
		return ErrEmptyNodeTitle
	}
	if len(n.Title) > MaxNodeTitleLength {
		return ErrNodeTitleTooLong
	}
	if len(n.Content) > MaxNodeContentLength {
		return ErrNodeContentLong
	}
	if !IsValidNodeKind(n.Kind) {
		return ErrInvalidNodeKind
	}
	if n.Order < 0 {
		return ErrNegativeNodeOrder
	}
	return nil
}

// HasContent reports whether the node carries any terminal display text.
func (n *MenuNode) HasContent() bool {
	return n.Description != "" || n.Content != "" || n.URL != ""
}

// MessageStatus represents the delivery status of an outbound message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt records the delivery status of one outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming message from a member.
type Response struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	MessageID string `json:"message_id,omitempty"` // transport message id when available
	Time      int64  `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
