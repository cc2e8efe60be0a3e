// Package relay is the forwarding orchestrator: it ties the rule matcher,
// directory cache, and dedup ledger together under concurrent message
// arrival. One inbound event produces at most one outbound send and at
// most one ledger completion.
package relay

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/chatrelay/internal/bridge"
	"github.com/nextlevelbuilder/chatrelay/internal/directory"
	"github.com/nextlevelbuilder/chatrelay/internal/ledger"
	"github.com/nextlevelbuilder/chatrelay/internal/rules"
)

// DefaultHeader is the prefix line of a forwarded message. {origin} is
// replaced with the source chat's display name.
const DefaultHeader = "📩 *Forwarded from:* {origin}"

// Relay routes inbound group messages to destination chats according to
// the active rule set. Safe for concurrent OnEvent calls.
type Relay struct {
	rules     *rules.Store
	matcher   *rules.Matcher
	directory *directory.Cache
	ledger    *ledger.Ledger
	transport bridge.Transport
	header    string
	tracer    trace.Tracer
}

// New wires the orchestrator. header may be empty to use DefaultHeader.
func New(ruleStore *rules.Store, matcher *rules.Matcher, dir *directory.Cache, led *ledger.Ledger, transport bridge.Transport, header string) *Relay {
	if header == "" {
		header = DefaultHeader
	}
	return &Relay{
		rules:     ruleStore,
		matcher:   matcher,
		directory: dir,
		ledger:    led,
		transport: transport,
		header:    header,
		tracer:    otel.Tracer("chatrelay/relay"),
	}
}

// OnEvent handles one inbound message event. Every exit path is terminal
// for the event: errors are logged, never propagated, and never retried.
func (r *Relay) OnEvent(ctx context.Context, ev bridge.Event) {
	ctx, span := r.tracer.Start(ctx, "relay.event",
		trace.WithAttributes(
			attribute.String("chat.name", ev.ChatName),
			attribute.String("message.id", ev.MessageID),
		))
	defer span.End()

	if !ev.IsGroup {
		span.SetAttributes(attribute.String("outcome", "filtered"))
		return
	}

	// The origin chat's name and id are always known for an inbound
	// event; learn them regardless of whether any rule matches.
	r.directory.Observe(ev.ChatName, ev.ChatID)

	already, err := r.ledger.Begin(ev.MessageID)
	if err != nil {
		// Could not durably record the id: forwarding now risks a
		// duplicate after redelivery, so skip instead.
		slog.Error("ledger write failed, skipping message",
			"message_id", ev.MessageID, "origin", ev.ChatName, "error", err)
		span.SetAttributes(attribute.String("outcome", "ledger_error"))
		return
	}
	if already {
		slog.Debug("duplicate delivery absorbed", "message_id", ev.MessageID)
		span.SetAttributes(attribute.String("outcome", "duplicate"))
		return
	}

	rule, ok := r.matcher.Match(r.rules.Active(), ev.ChatName, ev.Body)
	if !ok {
		slog.Debug("no rule matched", "origin", ev.ChatName, "message_id", ev.MessageID)
		span.SetAttributes(attribute.String("outcome", "unmatched"))
		return
	}
	span.SetAttributes(
		attribute.Int("rule.row", rule.Row),
		attribute.String("rule.target", rule.Target),
	)

	destID, ok := r.directory.ResolveWith(ctx, rule.Target, r.transport)
	if !ok {
		slog.Warn("destination not in directory, skipping forward",
			"row", rule.Row, "origin", rule.Origin, "target", rule.Target,
			"message_id", ev.MessageID)
		span.SetAttributes(attribute.String("outcome", "unresolved"))
		return
	}

	text := strings.ReplaceAll(r.header, "{origin}", ev.ChatName) + "\n\n" + ev.Body
	if err := r.transport.SendText(ctx, destID, text); err != nil {
		// Not retried: the send may have been partially delivered, and a
		// retry could duplicate it.
		slog.Error("forward send failed",
			"row", rule.Row, "origin", rule.Origin, "target", rule.Target,
			"message_id", ev.MessageID, "error", err)
		span.SetAttributes(attribute.String("outcome", "send_failed"))
		return
	}

	if err := r.ledger.Complete(ev.MessageID, destID); err != nil {
		slog.Warn("ledger outcome write failed", "message_id", ev.MessageID, "error", err)
	}
	slog.Info("message forwarded",
		"row", rule.Row, "origin", ev.ChatName, "target", rule.Target,
		"message_id", ev.MessageID)
	span.SetAttributes(attribute.String("outcome", "sent"))
}
