// Package notify delivers an owner's emergency alert to their contacts by
// SMS and email. Repeated alerts within the dedupe window are not resent.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/arturoeanton/witness-runtime/cache"
	"github.com/arturoeanton/witness-runtime/engine"
	"github.com/arturoeanton/witness-runtime/logger"
	"github.com/arturoeanton/witness-runtime/model"
	"github.com/cbroglie/mustache"
)

// DefaultSenderName is used in messages when the alert carries no name
const DefaultSenderName = "Your contact"

// Channel is a delivery medium
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Status is the outcome of one delivery
type Status string

const (
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusDuplicate Status = "duplicate"
	StatusNoAddress Status = "no_address"
)

// Delivery is one contact and channel pair of a dispatch
type Delivery struct {
	ContactID string  `json:"contact_id"`
	Channel   Channel `json:"channel"`
	Status    Status  `json:"status"`
	Error     string  `json:"error,omitempty"`
	// DuplicateOf is the alert that already delivered this message
	DuplicateOf string `json:"duplicate_of,omitempty"`
}

// DispatchReport lists every delivery attempted for an alert
type DispatchReport struct {
	AlertID    string     `json:"alert_id"`
	Deliveries []Delivery `json:"deliveries"`
}

// Count returns the number of deliveries with status
func (r DispatchReport) Count(status Status) int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Status == status {
			n++
		}
	}
	return n
}

// Options configures a Notifier. A nil sender disables its channel.
type Options struct {
	SMS       SMSSender
	Email     EmailSender
	Config    engine.NotifyConfig
	Log       *logger.Logger
	DedupeTTL time.Duration // overrides Config.DedupeSeconds
}

// Notifier renders and sends alert messages
type Notifier struct {
	sms   SMSSender
	email EmailSender
	log   *logger.Logger

	smsTemplate     *mustache.Template
	subjectTemplate *mustache.Template
	emailTemplate   *mustache.Template

	sent *cache.Cache[string]
}

// New parses the templates and builds a notifier
func New(opts Options) (*Notifier, error) {
	cfg := opts.Config
	if cfg.SMSTemplate == "" {
		cfg.SMSTemplate = engine.DefaultSMSTemplate
	}
	if cfg.EmailSubject == "" {
		cfg.EmailSubject = engine.DefaultEmailSubject
	}
	if cfg.EmailTemplate == "" {
		cfg.EmailTemplate = engine.DefaultEmailTemplate
	}

	smsTemplate, err := mustache.ParseString(cfg.SMSTemplate)
	if err != nil {
		return nil, fmt.Errorf("sms template: %w", err)
	}
	subjectTemplate, err := mustache.ParseString(cfg.EmailSubject)
	if err != nil {
		return nil, fmt.Errorf("email subject: %w", err)
	}
	emailTemplate, err := mustache.ParseString(cfg.EmailTemplate)
	if err != nil {
		return nil, fmt.Errorf("email template: %w", err)
	}

	ttl := opts.DedupeTTL
	if ttl <= 0 {
		ttl = time.Duration(cfg.DedupeSeconds) * time.Second
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	log := opts.Log
	if log == nil {
		logger.Initialize(false, false)
		log = logger.Default
	}

	return &Notifier{
		sms:             opts.SMS,
		email:           opts.Email,
		log:             log,
		smsTemplate:     smsTemplate,
		subjectTemplate: subjectTemplate,
		emailTemplate:   emailTemplate,
		sent:            cache.New[string](ttl),
	}, nil
}

// DedupeSize returns the number of remembered deliveries
func (n *Notifier) DedupeSize() int {
	return n.sent.Size()
}

// ResetDedupe forgets every remembered delivery so the next alert is sent
// again even inside the dedupe window.
func (n *Notifier) ResetDedupe() {
	n.sent.Clear()
}

// Close stops the dedupe cache sweep
func (n *Notifier) Close() {
	n.sent.Close()
}

// Dispatch sends alert to every contact on every enabled channel. Failures
// are logged and reported per delivery; Dispatch itself never fails.
func (n *Notifier) Dispatch(ctx context.Context, alert model.Alert, contacts []model.EmergencyContact) DispatchReport {
	report := DispatchReport{AlertID: alert.ID, Deliveries: make([]Delivery, 0, 2*len(contacts))}

	for _, contact := range contacts {
		view := renderContext(alert, contact)

		if n.sms != nil {
			report.Deliveries = append(report.Deliveries, n.deliver(ctx, alert, contact, ChannelSMS, contact.Phone,
				func(ctx context.Context) error {
					body, err := n.smsTemplate.Render(view)
					if err != nil {
						return err
					}
					return n.sms.SendSMS(ctx, contact.Phone, body)
				}))
		}

		if n.email != nil {
			report.Deliveries = append(report.Deliveries, n.deliver(ctx, alert, contact, ChannelEmail, contact.Email,
				func(ctx context.Context) error {
					subject, err := n.subjectTemplate.Render(view)
					if err != nil {
						return err
					}
					body, err := n.emailTemplate.Render(view)
					if err != nil {
						return err
					}
					return n.email.SendEmail(ctx, contact.Email, subject, body)
				}))
		}
	}

	n.log.Info("Alert dispatched", map[string]any{
		"alert_id":   alert.ID,
		"owner_id":   alert.OwnerID,
		"sent":       report.Count(StatusSent),
		"failed":     report.Count(StatusFailed),
		"duplicates": report.Count(StatusDuplicate),
	})
	return report
}

func (n *Notifier) deliver(ctx context.Context, alert model.Alert, contact model.EmergencyContact,
	channel Channel, address string, send func(context.Context) error) (d Delivery) {
	d = Delivery{ContactID: contact.ID, Channel: channel}
	if address == "" {
		d.Status = StatusNoAddress
		return d
	}

	key := dedupeKey(alert, contact, channel)
	if !n.sent.SetIfAbsent(key, alert.ID) {
		d.Status = StatusDuplicate
		d.DuplicateOf, _ = n.sent.Get(key)
		return d
	}

	defer func() {
		if r := recover(); r != nil {
			n.sent.Delete(key)
			d.Status = StatusFailed
			d.Error = fmt.Sprintf("sender panic: %v", r)
			n.log.Error("Alert delivery panicked", map[string]any{"alert_id": alert.ID, "contact_id": contact.ID, "channel": channel}, nil)
		}
	}()

	if err := ctx.Err(); err != nil {
		n.sent.Delete(key)
		d.Status = StatusFailed
		d.Error = err.Error()
		return d
	}

	if err := send(ctx); err != nil {
		// allow a retry of a failed delivery
		n.sent.Delete(key)
		d.Status = StatusFailed
		d.Error = "delivery failed"
		n.log.Error("Alert delivery failed", map[string]any{
			"alert_id":   alert.ID,
			"contact_id": contact.ID,
			"channel":    channel,
		}, err)
		return d
	}

	d.Status = StatusSent
	return d
}

// dedupeKey identifies the same message to the same contact on one channel
func dedupeKey(alert model.Alert, contact model.EmergencyContact, channel Channel) string {
	return alert.OwnerID + "|" + contact.ID + "|" + string(channel) + "|" + alert.Message
}

func renderContext(alert model.Alert, contact model.EmergencyContact) map[string]any {
	sender := alert.SenderName
	if sender == "" {
		sender = DefaultSenderName
	}

	view := map[string]any{
		"name":     contact.Name,
		"sender":   sender,
		"message":  alert.Message,
		"maps_url": MapsURL(alert.Location),
	}
	if alert.Location.Address != nil && *alert.Location.Address != "" {
		view["address"] = *alert.Location.Address
	}
	if alert.RecordingURL != "" {
		view["recording_url"] = alert.RecordingURL
	}
	return view
}

// MapsURL links to the alert position
func MapsURL(loc model.Location) string {
	return fmt.Sprintf("https://maps.google.com/?q=%.6f,%.6f", loc.Latitude, loc.Longitude)
}
