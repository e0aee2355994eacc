package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/arturoeanton/witness-runtime/engine"
	"github.com/arturoeanton/witness-runtime/logger"
	"github.com/arturoeanton/witness-runtime/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	to, subject, body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendSMS(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: to, body: body})
	return nil
}

func (f *fakeSender) SendEmail(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: to, subject: subject, body: body})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
}

func newNotifier(t *testing.T, sms SMSSender, mail EmailSender) *Notifier {
	t.Helper()
	n, err := New(Options{SMS: sms, Email: mail, Config: engine.DefaultConfig().NotifyConfig, Log: testLogger()})
	require.NoError(t, err)
	t.Cleanup(n.Close)
	return n
}

func testAlert() model.Alert {
	address := "221B Baker Street"
	return model.Alert{
		ID:         "alert-1",
		OwnerID:    "owner-1",
		SenderName: "Ana",
		Message:    "I'm being followed",
		Location:   model.Location{Latitude: 40.7128, Longitude: -74.006, Address: &address},
	}
}

func testContacts() []model.EmergencyContact {
	return []model.EmergencyContact{
		{ID: "c1", OwnerID: "owner-1", Name: "John O'Brien", Phone: "+1 (555) 123-4567", Email: "john@example.com"},
		{ID: "c2", OwnerID: "owner-1", Name: "Maria", Phone: "+44 20 7946 0958"},
	}
}

func TestDispatch_SendsEveryChannel(t *testing.T) {
	sms, mail := &fakeSender{}, &fakeSender{}
	n := newNotifier(t, sms, mail)

	report := n.Dispatch(context.Background(), testAlert(), testContacts())

	assert.Equal(t, "alert-1", report.AlertID)
	assert.Len(t, report.Deliveries, 4)
	assert.Equal(t, 3, report.Count(StatusSent))
	assert.Equal(t, 1, report.Count(StatusNoAddress))

	texts := sms.messages()
	require.Len(t, texts, 2)
	assert.Equal(t, "+1 (555) 123-4567", texts[0].to)
	assert.Equal(t, "John O'Brien, Ana needs help: I'm being followed https://maps.google.com/?q=40.712800,-74.006000", texts[0].body)

	emails := mail.messages()
	require.Len(t, emails, 1)
	assert.Equal(t, "john@example.com", emails[0].to)
	assert.Equal(t, "Emergency alert from Ana", emails[0].subject)
	assert.Contains(t, emails[0].body, "Address: 221B Baker Street")
	assert.NotContains(t, emails[0].body, "Recording:")
}

func TestDispatch_DefaultSenderAndRecording(t *testing.T) {
	mail := &fakeSender{}
	n := newNotifier(t, nil, mail)

	alert := testAlert()
	alert.SenderName = ""
	alert.Location.Address = nil
	alert.RecordingURL = "https://recordings.example.com/r/1"

	report := n.Dispatch(context.Background(), alert, testContacts()[:1])
	require.Equal(t, 1, report.Count(StatusSent))

	emails := mail.messages()
	require.Len(t, emails, 1)
	assert.Equal(t, "Emergency alert from "+DefaultSenderName, emails[0].subject)
	assert.Contains(t, emails[0].body, "Recording: https://recordings.example.com/r/1")
	assert.NotContains(t, emails[0].body, "Address:")
}

func TestDispatch_Dedupe(t *testing.T) {
	sms := &fakeSender{}
	n := newNotifier(t, sms, nil)

	first := n.Dispatch(context.Background(), testAlert(), testContacts())
	assert.Equal(t, 2, first.Count(StatusSent))

	second := n.Dispatch(context.Background(), testAlert(), testContacts())
	assert.Equal(t, 0, second.Count(StatusSent))
	assert.Equal(t, 2, second.Count(StatusDuplicate))
	assert.Len(t, sms.messages(), 2)

	other := testAlert()
	other.Message = "Please call me"
	third := n.Dispatch(context.Background(), other, testContacts())
	assert.Equal(t, 2, third.Count(StatusSent))
}

func TestDispatch_DuplicateNamesFirstAlert(t *testing.T) {
	sms := &fakeSender{}
	n := newNotifier(t, sms, nil)

	n.Dispatch(context.Background(), testAlert(), testContacts())
	assert.Equal(t, 2, n.DedupeSize())

	again := testAlert()
	again.ID = "alert-2"
	report := n.Dispatch(context.Background(), again, testContacts())
	require.Len(t, report.Deliveries, 2)
	for _, d := range report.Deliveries {
		assert.Equal(t, StatusDuplicate, d.Status)
		assert.Equal(t, "alert-1", d.DuplicateOf)
	}
}

func TestResetDedupe(t *testing.T) {
	sms := &fakeSender{}
	n := newNotifier(t, sms, nil)

	n.Dispatch(context.Background(), testAlert(), testContacts())
	n.ResetDedupe()
	assert.Equal(t, 0, n.DedupeSize())

	report := n.Dispatch(context.Background(), testAlert(), testContacts())
	assert.Equal(t, 2, report.Count(StatusSent))
	assert.Len(t, sms.messages(), 4)
}

func TestDispatch_FailureIsRetried(t *testing.T) {
	sms := &fakeSender{err: errors.New("twilio unavailable")}
	log := testLogger()
	n, err := New(Options{SMS: sms, Log: log})
	require.NoError(t, err)
	defer n.Close()

	report := n.Dispatch(context.Background(), testAlert(), testContacts())
	assert.Equal(t, 2, report.Count(StatusFailed))
	for _, d := range report.Deliveries {
		assert.Equal(t, "delivery failed", d.Error)
	}

	var failures int
	for _, entry := range log.GetLogs() {
		if entry.Level == logger.LevelError {
			failures++
			assert.Contains(t, entry.Stack, "twilio unavailable")
		}
	}
	assert.Equal(t, 2, failures)

	sms.mu.Lock()
	sms.err = nil
	sms.mu.Unlock()

	retry := n.Dispatch(context.Background(), testAlert(), testContacts())
	assert.Equal(t, 2, retry.Count(StatusSent))
}

func TestDispatch_PanickingSender(t *testing.T) {
	panicky := SMSSenderFunc(func(context.Context, string, string) error {
		panic("boom")
	})
	n := newNotifier(t, panicky, nil)

	var report DispatchReport
	assert.NotPanics(t, func() {
		report = n.Dispatch(context.Background(), testAlert(), testContacts())
	})
	assert.Equal(t, 2, report.Count(StatusFailed))
}

func TestDispatch_CancelledContext(t *testing.T) {
	sms := &fakeSender{}
	n := newNotifier(t, sms, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := n.Dispatch(ctx, testAlert(), testContacts())
	assert.Equal(t, 2, report.Count(StatusFailed))
	assert.Empty(t, sms.messages())

	again := n.Dispatch(context.Background(), testAlert(), testContacts())
	assert.Equal(t, 2, again.Count(StatusSent))
}

func TestDispatch_NoChannels(t *testing.T) {
	n := newNotifier(t, nil, nil)
	report := n.Dispatch(context.Background(), testAlert(), testContacts())
	assert.Empty(t, report.Deliveries)
}

func TestDispatch_LogsDoNotLeakContacts(t *testing.T) {
	log := testLogger()
	n, err := New(Options{SMS: &fakeSender{err: errors.New("invalid number +1 (555) 123-4567")}, Log: log})
	require.NoError(t, err)
	defer n.Close()

	n.Dispatch(context.Background(), testAlert(), testContacts())

	exported, err := log.ExportLogs()
	require.NoError(t, err)
	assert.NotContains(t, string(exported), "555) 123-4567")
}

func TestNew_InvalidTemplate(t *testing.T) {
	_, err := New(Options{Config: engine.NotifyConfig{SMSTemplate: "{{#open}} never closed"}})
	assert.Error(t, err)
}

func TestToE164(t *testing.T) {
	testCases := map[string]string{
		"+1 (555) 123-4567": "+15551234567",
		"555.123.4567":      "5551234567",
		" +44 20 7946 0958": "+442079460958",
		"12+34":             "1234",
	}
	for in, want := range testCases {
		if got := ToE164(in); got != want {
			t.Errorf("ToE164(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSendersDisabled(t *testing.T) {
	assert.Nil(t, NewTwilioSender(engine.TwilioConfig{}))
	assert.Nil(t, NewSMTPSender(engine.MailConfig{}))

	s := NewSMTPSender(engine.MailConfig{Enable: true, MailSMTP: "smtp.example.com"})
	require.NotNil(t, s)
	assert.True(t, strings.HasSuffix(s.server, ":25"))
	assert.Error(t, s.SendEmail(context.Background(), "a@example.com", "s", "b"))
}
