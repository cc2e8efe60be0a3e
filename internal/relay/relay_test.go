package relay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nextlevelbuilder/chatrelay/internal/bridge"
	"github.com/nextlevelbuilder/chatrelay/internal/directory"
	"github.com/nextlevelbuilder/chatrelay/internal/ledger"
	"github.com/nextlevelbuilder/chatrelay/internal/rules"
	filestore "github.com/nextlevelbuilder/chatrelay/internal/store/file"
)

type sentMessage struct {
	ChatID string
	Text   string
}

// fakeTransport records sends and answers name lookups from a fixed map.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMessage
	names    map[string]string
	sendErr  error
	resolves int
}

func (f *fakeTransport) SendText(ctx context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeTransport) ResolveName(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	id, ok := f.names[name]
	if !ok {
		return "", bridge.ErrNameNotFound
	}
	return id, nil
}

func (f *fakeTransport) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func newTestRelay(t *testing.T, csv string, transport *fakeTransport) (*Relay, *directory.Cache, *ledger.Ledger) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rules.csv")
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	ruleStore := rules.NewStore(path)
	if err := ruleStore.Load(); err != nil {
		t.Fatal(err)
	}

	stores, err := filestore.NewStores(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	dir, err := directory.New(stores.Directory)
	if err != nil {
		t.Fatal(err)
	}
	led, err := ledger.New(stores.Ledger)
	if err != nil {
		t.Fatal(err)
	}

	return New(ruleStore, rules.NewMatcher(rules.DefaultPolicy()), dir, led, transport, ""), dir, led
}

const basicRules = `Grupo_Origen,Grupo_Destino,Restriccion_1,Restriccion_2,Restriccion_3
Sales,Ops,,,
Support,Archive,urgent,,
`

func groupEvent(id, chatID, chatName, body string) bridge.Event {
	return bridge.Event{
		MessageID: id,
		ChatID:    chatID,
		ChatName:  chatName,
		Body:      body,
		IsGroup:   true,
	}
}

func TestForwardHappyPath(t *testing.T) {
	transport := &fakeTransport{names: map[string]string{"Ops": "ops@g.us"}}
	rel, _, led := newTestRelay(t, basicRules, transport)

	rel.OnEvent(context.Background(), groupEvent("m1", "sales@g.us", "Sales", "quarterly numbers"))

	sent := transport.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if sent[0].ChatID != "ops@g.us" {
		t.Errorf("sent to %q, want ops@g.us", sent[0].ChatID)
	}
	want := "📩 *Forwarded from:* Sales\n\nquarterly numbers"
	if sent[0].Text != want {
		t.Errorf("sent text %q, want %q", sent[0].Text, want)
	}
	if out, ok := led.Outcome("m1"); !ok || out.ForwardedTo != "ops@g.us" {
		t.Errorf("ledger outcome = %+v, %v", out, ok)
	}
}

func TestCustomHeader(t *testing.T) {
	transport := &fakeTransport{names: map[string]string{"Ops": "ops@g.us"}}
	rel, _, _ := newTestRelay(t, basicRules, transport)
	rel.header = "[{origin}]"

	rel.OnEvent(context.Background(), groupEvent("m1", "sales@g.us", "Sales", "hi"))

	sent := transport.sentMessages()
	if len(sent) != 1 || sent[0].Text != "[Sales]\n\nhi" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestNonGroupFiltered(t *testing.T) {
	transport := &fakeTransport{names: map[string]string{"Ops": "ops@g.us"}}
	rel, _, led := newTestRelay(t, basicRules, transport)

	ev := groupEvent("m1", "user@s.net", "Sales", "hello")
	ev.IsGroup = false
	rel.OnEvent(context.Background(), ev)

	if len(transport.sentMessages()) != 0 {
		t.Fatal("direct message was forwarded")
	}
	// Filtered events never reach the ledger.
	if led.Len() != 0 {
		t.Errorf("ledger has %d records, want 0", led.Len())
	}
}

func TestUnmatchedMessageStillRecorded(t *testing.T) {
	transport := &fakeTransport{}
	rel, dir, led := newTestRelay(t, basicRules, transport)

	rel.OnEvent(context.Background(), groupEvent("m1", "mkt@g.us", "Marketing", "hello"))

	if len(transport.sentMessages()) != 0 {
		t.Fatal("unmatched message was forwarded")
	}
	// The id is still marked seen and the origin chat still learned.
	if already, _ := led.Begin("m1"); !already {
		t.Error("unmatched message id not recorded in ledger")
	}
	if id, ok := dir.Resolve("Marketing"); !ok || id != "mkt@g.us" {
		t.Errorf("origin chat not learned: %q, %v", id, ok)
	}
}

func TestRestrictionGate(t *testing.T) {
	transport := &fakeTransport{names: map[string]string{"Archive": "arch@g.us"}}
	rel, _, _ := newTestRelay(t, basicRules, transport)

	rel.OnEvent(context.Background(), groupEvent("m1", "sup@g.us", "Support", "all quiet"))
	if len(transport.sentMessages()) != 0 {
		t.Fatal("message without the restriction keyword was forwarded")
	}

	rel.OnEvent(context.Background(), groupEvent("m2", "sup@g.us", "Support", "URGENT: disk full"))
	if len(transport.sentMessages()) != 1 {
		t.Fatal("message with the restriction keyword was not forwarded")
	}
}

func TestDuplicateDeliveryAbsorbed(t *testing.T) {
	transport := &fakeTransport{names: map[string]string{"Ops": "ops@g.us"}}
	rel, _, _ := newTestRelay(t, basicRules, transport)

	ev := groupEvent("m1", "sales@g.us", "Sales", "hello")
	rel.OnEvent(context.Background(), ev)
	rel.OnEvent(context.Background(), ev)
	rel.OnEvent(context.Background(), ev)

	if n := len(transport.sentMessages()); n != 1 {
		t.Fatalf("sent %d messages for one id, want 1", n)
	}
}

func TestConcurrentDuplicatesForwardOnce(t *testing.T) {
	transport := &fakeTransport{names: map[string]string{"Ops": "ops@g.us"}}
	rel, _, _ := newTestRelay(t, basicRules, transport)

	ev := groupEvent("m1", "sales@g.us", "Sales", "hello")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rel.OnEvent(context.Background(), ev)
		}()
	}
	wg.Wait()

	if n := len(transport.sentMessages()); n != 1 {
		t.Fatalf("sent %d messages under concurrent delivery, want 1", n)
	}
}

func TestUnresolvedTargetSkipped(t *testing.T) {
	transport := &fakeTransport{names: map[string]string{}} // Ops unknown
	rel, _, led := newTestRelay(t, basicRules, transport)

	rel.OnEvent(context.Background(), groupEvent("m1", "sales@g.us", "Sales", "hello"))

	if len(transport.sentMessages()) != 0 {
		t.Fatal("forwarded despite unresolved target")
	}
	// Seen, but no outcome: a redelivery must not forward either.
	if _, ok := led.Outcome("m1"); ok {
		t.Error("outcome recorded for a skipped forward")
	}
	rel.OnEvent(context.Background(), groupEvent("m1", "sales@g.us", "Sales", "hello"))
	if len(transport.sentMessages()) != 0 {
		t.Fatal("redelivery after a skip was forwarded")
	}
}

func TestTargetLearnedFromTrafficAvoidsLookup(t *testing.T) {
	transport := &fakeTransport{names: map[string]string{}}
	rel, _, _ := newTestRelay(t, basicRules, transport)

	// Traffic from the destination group teaches the directory its id.
	rel.OnEvent(context.Background(), groupEvent("m0", "ops@g.us", "Ops", "standup notes"))

	rel.OnEvent(context.Background(), groupEvent("m1", "sales@g.us", "Sales", "hello"))

	sent := transport.sentMessages()
	if len(sent) != 1 || sent[0].ChatID != "ops@g.us" {
		t.Fatalf("sent = %+v, want one message to ops@g.us", sent)
	}
	if transport.resolves != 0 {
		t.Errorf("live lookup used %d times despite cached id", transport.resolves)
	}
}

func TestSendFailureNotRetried(t *testing.T) {
	transport := &fakeTransport{
		names:   map[string]string{"Ops": "ops@g.us"},
		sendErr: errors.New("bridge closed"),
	}
	rel, _, led := newTestRelay(t, basicRules, transport)

	rel.OnEvent(context.Background(), groupEvent("m1", "sales@g.us", "Sales", "hello"))

	if len(transport.sentMessages()) != 0 {
		t.Fatal("send recorded despite error")
	}
	if _, ok := led.Outcome("m1"); ok {
		t.Error("outcome recorded for a failed send")
	}

	// The id was claimed before the send, so redelivery is absorbed even
	// after the transport recovers.
	transport.mu.Lock()
	transport.sendErr = nil
	transport.mu.Unlock()
	rel.OnEvent(context.Background(), groupEvent("m1", "sales@g.us", "Sales", "hello"))
	if len(transport.sentMessages()) != 0 {
		t.Fatal("redelivery after a failed send was forwarded")
	}
}

func TestForwardedTextNormalizedOnlyForMatching(t *testing.T) {
	transport := &fakeTransport{names: map[string]string{"Archive": "arch@g.us"}}
	rel, _, _ := newTestRelay(t, basicRules, transport)

	// Matching folds case and accents, but the forwarded body is verbatim.
	body := "¡URGENTE!  urgent  Ítem #42"
	rel.OnEvent(context.Background(), groupEvent("m1", "sup@g.us", "Support", body))

	sent := transport.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if !strings.HasSuffix(sent[0].Text, body) {
		t.Errorf("forwarded body altered: %q", sent[0].Text)
	}
}
