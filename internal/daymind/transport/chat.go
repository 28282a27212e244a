// Package transport defines the minimal surface a chat front end needs to
// drive the command service: a command string comes in, a reply goes back
// out. Nothing about rooms, events, or a particular chat protocol belongs
// here -- that detail lives entirely in the concrete adapter packages such
// as transport/matrix.
package transport

import "context"

// Envelope carries one incoming command plus enough context to reply to it.
// ConversationID identifies the place the command arrived in (a room, a
// channel, a DM) and SenderID identifies who sent it; both are opaque
// strings as far as this package is concerned.
type Envelope struct {
	ConversationID string
	SenderID       string
	Text           string
}

// ReplyFunc sends text back into the conversation a command arrived in.
type ReplyFunc func(ctx context.Context, text string) error

// Handler is invoked once per recognized incoming command. Implementations
// must not block past ctx's cancellation.
type Handler func(ctx context.Context, env Envelope, reply ReplyFunc)

// Transport is a chat front end capable of receiving commands and sending
// replies. Start must return once the handler is registered and begin
// delivering messages asynchronously; Stop must cause any background work
// started by Start to wind down.
type Transport interface {
	Start(ctx context.Context, handler Handler) error
	Stop()
}
