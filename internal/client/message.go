package client

import (
	"errors"
)

// MessageKind is the category of a user-facing message.
type MessageKind string

const (
	KindInfo    MessageKind = "info"
	KindSuccess MessageKind = "success"
	KindError   MessageKind = "error"
)

// Message is what the UI shows after an action.
type Message struct {
	Kind MessageKind
	Text string
}

func Info(text string) Message    { return Message{Kind: KindInfo, Text: text} }
func Success(text string) Message { return Message{Kind: KindSuccess, Text: text} }
func Error(text string) Message   { return Message{Kind: KindError, Text: text} }

// MessageFor maps an API client error to display text. fallback is used
// when the server gave no reason. A nil err yields the zero Message.
func MessageFor(err error, fallback string) Message {
	if err == nil {
		return Message{}
	}
	if errors.Is(err, ErrNotLoggedIn) {
		return Error("Not logged in. Please login first.")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return Error(apiErr.Message)
		}
		if apiErr.Detail != "" {
			return Error(apiErr.Detail)
		}
		return Error(fallback)
	}
	return Error("Network error or server not reachable.")
}
