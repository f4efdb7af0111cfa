// Package realtime carries like and comment events between views over one shared
// publish/subscribe connection.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"pellicule/internal/models"

	"github.com/oklog/ulid/v2"
)

// ErrInvalidEvent is returned by Decode for messages outside the event set.
var ErrInvalidEvent = errors.New("realtime: invalid event")

// Kind is the wire tag of an event.
type Kind string

// Event kinds.
const (
	KindLikeAdded      Kind = "likeAdded"
	KindLikeRemoved    Kind = "likeRemoved"
	KindCommentAdded   Kind = "commentAdded"
	KindCommentDeleted Kind = "commentDeleted"
)

// Event is one of LikeAdded, LikeRemoved, CommentAdded or CommentDeleted.
type Event interface {
	Kind() Kind
	payload() any
	validate() error
}

// LikeAdded announces that UserID liked PhotoID.
type LikeAdded struct {
	PhotoID string `json:"photoId"`
	UserID  string `json:"userId"`
}

// LikeRemoved announces that UserID withdrew their like on PhotoID.
type LikeRemoved struct {
	PhotoID string `json:"photoId"`
	UserID  string `json:"userId"`
}

// CommentAdded carries the full stored comment.
type CommentAdded struct {
	Comment models.Comment
}

// CommentDeleted announces the removal of a comment by id.
type CommentDeleted struct {
	ID string `json:"id"`
}

func (LikeAdded) Kind() Kind      { return KindLikeAdded }
func (LikeRemoved) Kind() Kind    { return KindLikeRemoved }
func (CommentAdded) Kind() Kind   { return KindCommentAdded }
func (CommentDeleted) Kind() Kind { return KindCommentDeleted }

func (e LikeAdded) payload() any      { return e }
func (e LikeRemoved) payload() any    { return e }
func (e CommentAdded) payload() any   { return e.Comment }
func (e CommentDeleted) payload() any { return e }

func (e LikeAdded) validate() error   { return requireLike(e.PhotoID, e.UserID) }
func (e LikeRemoved) validate() error { return requireLike(e.PhotoID, e.UserID) }

func (e CommentAdded) validate() error {
	if e.Comment.ID == "" || e.Comment.PhotoID == "" {
		return fmt.Errorf("%w: commentAdded requires _id and photoId", ErrInvalidEvent)
	}
	return nil
}

func (e CommentDeleted) validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: commentDeleted requires id", ErrInvalidEvent)
	}
	return nil
}

func requireLike(photoID, userID string) error {
	if photoID == "" || userID == "" {
		return fmt.Errorf("%w: like events require photoId and userId", ErrInvalidEvent)
	}
	return nil
}

// Envelope is the wire form of an event.
type Envelope struct {
	ID      string          `json:"id"`
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message is a decoded envelope.
type Message struct {
	ID    string
	Event Event
}

// NewID mints a sortable event id.
func NewID() string {
	return ulid.Make().String()
}

// Encode validates ev and wraps it in an envelope with a fresh id.
func Encode(ev Event) (Message, []byte, error) {
	if ev == nil {
		return Message{}, nil, fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if err := ev.validate(); err != nil {
		return Message{}, nil, err
	}
	payload, err := json.Marshal(ev.payload())
	if err != nil {
		return Message{}, nil, fmt.Errorf("encode %s payload: %w", ev.Kind(), err)
	}
	msg := Message{ID: NewID(), Event: ev}
	raw, err := json.Marshal(Envelope{ID: msg.ID, Type: ev.Kind(), Payload: payload})
	if err != nil {
		return Message{}, nil, fmt.Errorf("encode %s envelope: %w", ev.Kind(), err)
	}
	return msg, raw, nil
}

// Decode parses and validates an envelope. Every failure wraps ErrInvalidEvent.
func Decode(raw []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if env.ID == "" {
		return Message{}, fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return Message{}, fmt.Errorf("%w: missing payload", ErrInvalidEvent)
	}

	var ev Event
	var err error
	switch env.Type {
	case KindLikeAdded:
		var e LikeAdded
		err = json.Unmarshal(env.Payload, &e)
		ev = e
	case KindLikeRemoved:
		var e LikeRemoved
		err = json.Unmarshal(env.Payload, &e)
		ev = e
	case KindCommentAdded:
		var c models.Comment
		err = json.Unmarshal(env.Payload, &c)
		ev = CommentAdded{Comment: c}
	case KindCommentDeleted:
		var e CommentDeleted
		err = json.Unmarshal(env.Payload, &e)
		ev = e
	default:
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, env.Type)
	}
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s payload: %v", ErrInvalidEvent, env.Type, err)
	}
	if err := ev.validate(); err != nil {
		return Message{}, err
	}
	return Message{ID: env.ID, Event: ev}, nil
}

// UserOf returns the acting user id of like and commentAdded events, and "" otherwise.
func UserOf(ev Event) string {
	switch e := ev.(type) {
	case LikeAdded:
		return e.UserID
	case LikeRemoved:
		return e.UserID
	case CommentAdded:
		return e.Comment.AuthorID
	}
	return ""
}
