package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType is the "type" field of a wire frame.
type MessageType string

// WebSocket message types from client.
const (
	MsgTypeAuth MessageType = "auth"
	MsgTypePing MessageType = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeAuthSuccess  MessageType = "auth_success"
	MsgTypePong         MessageType = "pong"
	MsgTypeTaskCreated  MessageType = "task_created"
	MsgTypeTaskUpdated  MessageType = "task_updated"
	MsgTypeTaskDeleted  MessageType = "task_deleted"
	MsgTypeCommentAdded MessageType = "comment_added"
	MsgTypeNotification MessageType = "notification"
)

var (
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Client -> Server messages

// InboundMessage is one decoded client frame. The set of implementations is
// closed: AuthMessage and PingMessage.
type InboundMessage interface {
	Type() MessageType
	inbound()
}

type AuthMessage struct {
	Token string
}

type PingMessage struct{}

func (AuthMessage) Type() MessageType { return MsgTypeAuth }
func (PingMessage) Type() MessageType { return MsgTypePing }
func (AuthMessage) inbound()          {}
func (PingMessage) inbound()          {}

type inboundFrame struct {
	Type  string          `json:"type"`
	Token *string         `json:"token"`
	Data  json.RawMessage `json:"data"`
}

// DecodeInbound parses a client frame. The auth token is read from the top
// level and, failing that, from data.token.
func DecodeInbound(raw []byte) (InboundMessage, error) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch MessageType(f.Type) {
	case MsgTypeAuth:
		if f.Token != nil {
			return AuthMessage{Token: *f.Token}, nil
		}
		var data struct {
			Token *string `json:"token"`
		}
		if len(f.Data) == 0 || json.Unmarshal(f.Data, &data) != nil || data.Token == nil {
			return nil, fmt.Errorf("%w: auth without token", ErrMalformedFrame)
		}
		return AuthMessage{Token: *data.Token}, nil
	case MsgTypePing:
		return PingMessage{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, f.Type)
	}
}

// Server -> Client messages

// PushMessage is one server frame. Every implementation is handled by
// EncodePush.
type PushMessage interface {
	Type() MessageType
	push()
}

// DomainEvent is a push that belongs to a project and is broadcast to its
// members.
type DomainEvent interface {
	PushMessage
	Project() string
}

type AuthSuccess struct{}

type Pong struct{}

type TaskCreated struct {
	ProjectID string `json:"projectId"`
	Task      Task   `json:"task"`
}

type TaskUpdated struct {
	ProjectID string `json:"projectId"`
	Task      Task   `json:"task"`
}

type TaskDeleted struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId"`
}

type CommentAdded struct {
	ProjectID string  `json:"projectId"`
	TaskID    string  `json:"taskId"`
	Comment   Comment `json:"comment"`
}

// NotificationPushed carries a persisted notification.
type NotificationPushed struct {
	Notification Notification
}

func (AuthSuccess) Type() MessageType        { return MsgTypeAuthSuccess }
func (Pong) Type() MessageType               { return MsgTypePong }
func (TaskCreated) Type() MessageType        { return MsgTypeTaskCreated }
func (TaskUpdated) Type() MessageType        { return MsgTypeTaskUpdated }
func (TaskDeleted) Type() MessageType        { return MsgTypeTaskDeleted }
func (CommentAdded) Type() MessageType       { return MsgTypeCommentAdded }
func (NotificationPushed) Type() MessageType { return MsgTypeNotification }

func (AuthSuccess) push()        {}
func (Pong) push()               {}
func (TaskCreated) push()        {}
func (TaskUpdated) push()        {}
func (TaskDeleted) push()        {}
func (CommentAdded) push()       {}
func (NotificationPushed) push() {}

func (e TaskCreated) Project() string  { return e.ProjectID }
func (e TaskUpdated) Project() string  { return e.ProjectID }
func (e TaskDeleted) Project() string  { return e.ProjectID }
func (e CommentAdded) Project() string { return e.ProjectID }

type outboundFrame struct {
	Type MessageType `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// EncodePush serializes a push message into its wire frame.
func EncodePush(m PushMessage) ([]byte, error) {
	var data interface{}
	switch v := m.(type) {
	case AuthSuccess, Pong:
	case TaskCreated:
		data = v
	case TaskUpdated:
		data = v
	case TaskDeleted:
		data = v
	case CommentAdded:
		data = v
	case NotificationPushed:
		data = v.Notification
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessageType, m)
	}
	return json.Marshal(outboundFrame{Type: m.Type(), Data: data})
}
