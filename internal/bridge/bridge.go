// Package bridge connects to the messaging bridge over WebSocket. The
// bridge process (whatsapp-web.js based) owns the platform session — QR
// pairing, reconnects, chat metadata — and chatrelay exchanges small JSON
// frames with it: inbound message events, outbound sends, and name
// resolution requests.
package bridge

import "context"

// Event is one inbound message as delivered by the bridge.
type Event struct {
	MessageID string // platform message id, the dedup key
	ChatID    string // stable chat identifier, usable for sending
	ChatName  string // mutable display name of the chat
	SenderID  string
	Body      string
	IsGroup   bool
}

// Handler is invoked once per inbound event. Handlers for distinct events
// run concurrently; ordering across chats is not guaranteed.
type Handler func(ctx context.Context, ev Event)

// Transport is the operation surface the router needs from the bridge.
type Transport interface {
	// SendText delivers text to a chat by its stable identifier.
	SendText(ctx context.Context, chatID, text string) error
	// ResolveName asks the bridge to find a chat id by display name. This
	// walks the platform's full chat list and is expensive; callers should
	// go through the directory cache.
	ResolveName(ctx context.Context, name string) (string, error)
}
