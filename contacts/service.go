// Package contacts manages the emergency contacts an owner wants alerted.
// Every write is validated, screened, rate limited and logged before it
// reaches the store.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arturoeanton/witness-runtime/logger"
	"github.com/arturoeanton/witness-runtime/model"
	"github.com/arturoeanton/witness-runtime/ratelimit"
	"github.com/arturoeanton/witness-runtime/validation"
	"github.com/google/uuid"
)

// DefaultMaxPerOwner caps how many contacts one owner may keep
const DefaultMaxPerOwner = 10

var (
	ErrInvalidContact = errors.New("invalid contact")
	ErrRateLimited    = errors.New("too many attempts")
	ErrMissingOwner   = errors.New("missing owner")
	ErrLimitReached   = errors.New("contact limit reached")
)

// ValidationError carries the field message and taxonomy tag of a rejected
// contact. It matches ErrInvalidContact with errors.Is.
type ValidationError struct {
	Kind    validation.ErrorKind
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidContact
}

// RateLimitError reports when the owner may try again. It matches
// ErrRateLimited with errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry in %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Operation prefixes used as rate limit identifiers
const (
	OperationCreate = "contacts:create:"
	OperationDelete = "contacts:delete:"
)

// Options configures a Service
type Options struct {
	MaxPerOwner int
	Now         func() time.Time
}

// Service is the write path for contacts
type Service struct {
	store       Store
	limiter     ratelimit.RateLimiter
	log         *logger.Logger
	maxPerOwner int
	now         func() time.Time
}

// NewService wires a service. log may be nil to use logger.Default.
func NewService(store Store, limiter ratelimit.RateLimiter, log *logger.Logger, opts Options) *Service {
	if opts.MaxPerOwner <= 0 {
		opts.MaxPerOwner = DefaultMaxPerOwner
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		logger.Initialize(false, false)
		log = logger.Default
	}
	return &Service{
		store:       store,
		limiter:     limiter,
		log:         log,
		maxPerOwner: opts.MaxPerOwner,
		now:         opts.Now,
	}
}

// Create validates input and stores a new contact for owner
func (s *Service) Create(ctx context.Context, owner string, input validation.ContactInput) (model.EmergencyContact, error) {
	if owner == "" {
		return model.EmergencyContact{}, ErrMissingOwner
	}

	result := validation.ValidateEmergencyContact(input)
	if !result.IsValid {
		s.log.Warn("Contact rejected", map[string]any{"owner_id": owner, "kind": result.Kind})
		return model.EmergencyContact{}, &ValidationError{Kind: result.Kind, Message: result.Error}
	}

	// second screen on top of validation
	clean := result.Contact
	for _, field := range []string{clean.Name, clean.Email, clean.Relationship} {
		if validation.ContainsSQLInjection(field) {
			s.log.Warn("Contact rejected by injection screen", map[string]any{"owner_id": owner})
			return model.EmergencyContact{}, &ValidationError{
				Kind:    validation.KindFormatError,
				Message: "Contact contains characters that are not allowed",
			}
		}
	}

	if limit := s.limiter.CheckLimit(OperationCreate + owner); !limit.Allowed {
		s.log.Warn("Contact creation rate limited", map[string]any{"owner_id": owner})
		return model.EmergencyContact{}, &RateLimitError{RetryAfter: limit.RetryAfter}
	}

	contact := model.EmergencyContact{
		ID:           uuid.NewString(),
		OwnerID:      owner,
		Name:         clean.Name,
		Phone:        clean.Phone,
		Email:        clean.Email,
		Relationship: clean.Relationship,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Create(ctx, contact, s.maxPerOwner); err != nil {
		if errors.Is(err, ErrLimitReached) {
			return model.EmergencyContact{}, fmt.Errorf("%w: %d contacts", ErrLimitReached, s.maxPerOwner)
		}
		s.log.Error("Failed to store contact", map[string]any{"owner_id": owner}, err)
		return model.EmergencyContact{}, err
	}

	s.log.Info("Emergency contact created", map[string]any{
		"contact_id": contact.ID,
		"owner_id":   owner,
		"phone":      contact.Phone,
	})
	return contact, nil
}

// List returns the owner's contacts
func (s *Service) List(ctx context.Context, owner string) ([]model.EmergencyContact, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}
	contacts, err := s.store.List(ctx, owner)
	if err != nil {
		s.log.Error("Failed to list contacts", map[string]any{"owner_id": owner}, err)
		return nil, err
	}
	return contacts, nil
}

// Delete removes one of the owner's contacts
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	if owner == "" {
		return ErrMissingOwner
	}
	if limit := s.limiter.CheckLimit(OperationDelete + owner); !limit.Allowed {
		return &RateLimitError{RetryAfter: limit.RetryAfter}
	}
	if err := s.store.Delete(ctx, owner, id); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Error("Failed to delete contact", map[string]any{"owner_id": owner, "contact_id": id}, err)
		}
		return err
	}
	s.log.Info("Emergency contact deleted", map[string]any{"owner_id": owner, "contact_id": id})
	return nil
}
