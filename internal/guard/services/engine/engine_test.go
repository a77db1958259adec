package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/probegate/probegate/internal/guard/common/log"
	"github.com/probegate/probegate/internal/guard/domain"
)

// Mock implementations for testing

type MockAllowlist struct {
	mock.Mock
}

func (m *MockAllowlist) IsAllowed(host string) bool {
	args := m.Called(host)
	return args.Bool(0)
}

type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) IsTracker(ctx context.Context, hostname string) bool {
	args := m.Called(ctx, hostname)
	return args.Bool(0)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) RecordBlockedHost(tabID int, host, pageURL string) int {
	args := m.Called(tabID, host, pageURL)
	return args.Int(0)
}

func (m *MockLedger) RecordBlockedPort(tabID int, host, port, pageURL string) int {
	args := m.Called(tabID, host, port, pageURL)
	return args.Int(0)
}

func (m *MockLedger) Navigated(tabID int, url string) {
	m.Called(tabID, url)
}

// collectSink records emitted badge events.
type collectSink struct {
	events []domain.BadgeEvent
}

func (s *collectSink) BadgeIncremented(e domain.BadgeEvent) {
	s.events = append(s.events, e)
}

func newTestEngine(allow *MockAllowlist, tracker *MockTracker, ledger *MockLedger, sink BadgeSink) *Engine {
	return New(Options{
		Allowlist: allow,
		Tracker:   tracker,
		Ledger:    ledger,
		Badges:    sink,
		Logger:    log.NewNoopLogger(),
	})
}

func TestEvaluate_PortScanBlocked(t *testing.T) {
	// Scenario: public page probing a private host and port.
	allow := &MockAllowlist{}
	tracker := &MockTracker{}
	ledger := &MockLedger{}
	sink := &collectSink{}

	allow.On("IsAllowed", "evil.example").Return(false)
	ledger.On("RecordBlockedPort", 5, "192.168.1.1", "8080", "http://evil.example/").Return(1)

	e := newTestEngine(allow, tracker, ledger, sink)
	v := e.Evaluate(context.Background(), domain.RequestDescriptor{
		OriginURL:  "http://evil.example/",
		RequestURL: "http://192.168.1.1:8080/",
		TabID:      5,
	})

	assert.True(t, v.IsBlocked())
	assert.Equal(t, domain.ReasonPrivateProbe, v.Reason)
	ledger.AssertCalled(t, "RecordBlockedPort", 5, "192.168.1.1", "8080", "http://evil.example/")
	tracker.AssertNotCalled(t, "IsTracker", mock.Anything, mock.Anything)
	assert.Len(t, sink.events, 1)
	assert.Equal(t, domain.BadgeEvent{TabID: 5, Count: 1, Alerted: true}, sink.events[0])
}

func TestEvaluate_TrackerBlocked(t *testing.T) {
	// Scenario: public request whose CNAME lands on tracker infrastructure.
	allow := &MockAllowlist{}
	tracker := &MockTracker{}
	ledger := &MockLedger{}
	sink := &collectSink{}

	allow.On("IsAllowed", "evil.example").Return(false)
	tracker.On("IsTracker", mock.Anything, "tracker.example").Return(true)
	ledger.On("RecordBlockedHost", 5, "tracker.example", "http://evil.example/").Return(1)

	e := newTestEngine(allow, tracker, ledger, sink)
	v := e.Evaluate(context.Background(), domain.RequestDescriptor{
		OriginURL:  "http://evil.example/",
		RequestURL: "http://tracker.example/",
		TabID:      5,
	})

	assert.True(t, v.IsBlocked())
	assert.Equal(t, domain.ReasonTrackerCNAME, v.Reason)
	ledger.AssertCalled(t, "RecordBlockedHost", 5, "tracker.example", "http://evil.example/")
	ledger.AssertNotCalled(t, "RecordBlockedPort", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, sink.events, 1)
}

func TestEvaluate_LocalToLocalAllowed(t *testing.T) {
	// Scenario: LAN admin page calling another LAN device.
	allow := &MockAllowlist{}
	tracker := &MockTracker{}
	ledger := &MockLedger{}

	allow.On("IsAllowed", "192.168.1.1").Return(false)

	e := newTestEngine(allow, tracker, ledger, nil)
	v := e.Evaluate(context.Background(), domain.RequestDescriptor{
		OriginURL:  "http://192.168.1.1/",
		RequestURL: "http://192.168.1.2:22/",
		TabID:      5,
	})

	assert.False(t, v.IsBlocked())
	ledger.AssertNotCalled(t, "RecordBlockedPort", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	tracker.AssertNotCalled(t, "IsTracker", mock.Anything, mock.Anything)
}

func TestEvaluate_AllowlistExemptsPrivateProbe(t *testing.T) {
	// Scenario: allowlisted origin may reach any private host.
	allow := &MockAllowlist{}
	tracker := &MockTracker{}
	ledger := &MockLedger{}

	allow.On("IsAllowed", "example.com").Return(true)

	e := newTestEngine(allow, tracker, ledger, nil)
	v := e.Evaluate(context.Background(), domain.RequestDescriptor{
		OriginURL:  "http://example.com/",
		RequestURL: "http://10.0.0.5:80/",
		TabID:      5,
	})

	assert.False(t, v.IsBlocked())
	tracker.AssertNotCalled(t, "IsTracker", mock.Anything, mock.Anything)
	ledger.AssertNotCalled(t, "RecordBlockedPort", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEvaluate_PublicNonTrackerAllowed(t *testing.T) {
	allow := &MockAllowlist{}
	tracker := &MockTracker{}
	ledger := &MockLedger{}

	allow.On("IsAllowed", "site.example").Return(false)
	tracker.On("IsTracker", mock.Anything, "cdn.example").Return(false)

	e := newTestEngine(allow, tracker, ledger, nil)
	v := e.Evaluate(context.Background(), domain.RequestDescriptor{
		OriginURL:  "http://site.example/",
		RequestURL: "https://cdn.example/app.js",
		TabID:      5,
	})

	assert.False(t, v.IsBlocked())
}

func TestEvaluate_FailsOpenOnUnparseableURLs(t *testing.T) {
	allow := &MockAllowlist{}
	tracker := &MockTracker{}
	ledger := &MockLedger{}

	e := newTestEngine(allow, tracker, ledger, nil)

	// Unparseable origin.
	v := e.Evaluate(context.Background(), domain.RequestDescriptor{
		OriginURL:  "http://%zz",
		RequestURL: "http://192.168.1.1:8080/",
		TabID:      5,
	})
	assert.False(t, v.IsBlocked(), "unparseable origin must fail open")

	// Absent origin.
	v = e.Evaluate(context.Background(), domain.RequestDescriptor{
		RequestURL: "http://192.168.1.1:8080/",
		TabID:      5,
	})
	assert.False(t, v.IsBlocked(), "absent origin must fail open")

	// Unparseable request.
	allow.On("IsAllowed", mock.Anything).Return(false)
	v = e.Evaluate(context.Background(), domain.RequestDescriptor{
		OriginURL:  "http://site.example/",
		RequestURL: "http://%zz",
		TabID:      5,
	})
	assert.False(t, v.IsBlocked(), "unparseable request must fail open")

	allow.AssertNotCalled(t, "IsAllowed", mock.Anything)
}

func TestEvaluate_MissingDocumentURLIsNotAnError(t *testing.T) {
	allow := &MockAllowlist{}
	tracker := &MockTracker{}
	ledger := &MockLedger{}

	allow.On("IsAllowed", "site.example").Return(false)
	tracker.On("IsTracker", mock.Anything, "cdn.example").Return(false)

	e := newTestEngine(allow, tracker, ledger, nil)
	v := e.Evaluate(context.Background(), domain.RequestDescriptor{
		OriginURL:   "http://site.example/",
		DocumentURL: "",
		RequestURL:  "http://cdn.example/",
		TabID:       5,
	})
	assert.False(t, v.IsBlocked())
}

func TestEvaluate_NoTabBlocksWithoutLedgerEffects(t *testing.T) {
	allow := &MockAllowlist{}
	tracker := &MockTracker{}
	ledger := &MockLedger{}
	sink := &collectSink{}

	allow.On("IsAllowed", "evil.example").Return(false)

	e := newTestEngine(allow, tracker, ledger, sink)
	v := e.Evaluate(context.Background(), domain.RequestDescriptor{
		OriginURL:  "http://evil.example/",
		RequestURL: "http://127.0.0.1:80/",
		TabID:      domain.NoTabID,
	})

	assert.True(t, v.IsBlocked(), "background requests can still be blocked")
	ledger.AssertNotCalled(t, "RecordBlockedPort", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, sink.events, "no tab, no badge event")
}

func TestEvaluate_DefaultPortRecordedWhenAbsent(t *testing.T) {
	allow := &MockAllowlist{}
	tracker := &MockTracker{}
	ledger := &MockLedger{}

	allow.On("IsAllowed", "evil.example").Return(false)
	ledger.On("RecordBlockedPort", 5, "192.168.1.1", "80", "http://evil.example/").Return(1)

	e := newTestEngine(allow, tracker, ledger, nil)
	v := e.Evaluate(context.Background(), domain.RequestDescriptor{
		OriginURL:  "http://evil.example/",
		RequestURL: "http://192.168.1.1/",
		TabID:      5,
	})

	assert.True(t, v.IsBlocked())
	ledger.AssertCalled(t, "RecordBlockedPort", 5, "192.168.1.1", "80", "http://evil.example/")
}

func TestNavigated_ForwardsToLedger(t *testing.T) {
	allow := &MockAllowlist{}
	tracker := &MockTracker{}
	ledger := &MockLedger{}
	ledger.On("Navigated", 5, "http://next.example/").Return()

	e := newTestEngine(allow, tracker, ledger, nil)
	e.Navigated(5, "http://next.example/")

	ledger.AssertCalled(t, "Navigated", 5, "http://next.example/")
}
