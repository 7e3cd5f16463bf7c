package grantkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Service is the authorization core: it owns the role catalog, the
// assignment lifecycle and every authority decision derived from them.
//
// All reads and writes go through a Store. Mutations run inside
// Store.Atomic together with their audit rows, so a failed audit write
// aborts the mutation. Time is read once per operation from the Clock.
//
// Errors carry a sentinel from errors.go and can be classified with
// errors.Is or the Is* helpers:
//
//	_, err := service.AssignRole(ctx, req)
//	switch {
//	case grantkit.IsConflict(err):
//	    // live assignment already exists
//	case grantkit.IsValidation(err):
//	    // bad window, inactive role or principal
//	case grantkit.IsStorageUnavailable(err):
//	    // retry later
//	}
type Service struct {
	store      Store
	principals PrincipalDirectory
	clock      Clock
	logger     *slog.Logger
	vocabulary Vocabulary
	validate   *validator.Validate
	newID      func() string
	txMonitor  *transactionMonitor
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source. Defaults to SystemClock.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the structured logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVocabulary restricts AdditionalPermissions to a known set of tags.
func WithVocabulary(v Vocabulary) Option {
	return func(s *Service) { s.vocabulary = v }
}

// WithIDGenerator replaces the uuid generator used for new rows.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a new grantkit service.
//
// Example:
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	service := grantkit.NewService(
//	    grantkit.NewBunStore(db),
//	    grantkit.NewBunDirectory(db),
//	    grantkit.WithLogger(logger),
//	)
func NewService(store Store, principals PrincipalDirectory, opts ...Option) *Service {
	s := &Service{
		store:      store,
		principals: principals,
		clock:      SystemClock{},
		logger:     slog.New(slog.DiscardHandler),
		validate:   validator.New(),
		newID:      uuid.NewString,
		txMonitor:  newTransactionMonitor(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the storage boundary the service was built with.
func (s *Service) Store() Store {
	return s.store
}

// Clock returns the service time source.
func (s *Service) Clock() Clock {
	return s.clock
}

// ============================================================================
// AUDIT LOG
// ============================================================================

// GetAuditLog retrieves audit log entries with optional filters, newest first.
func (s *Service) GetAuditLog(ctx context.Context, filter AuditLogFilter) ([]AuditLog, error) {
	if filter.Limit == 0 {
		filter.Limit = 100
	}
	logs, err := s.store.FindAudit(ctx, filter)
	if err != nil {
		return nil, storageError("GetAuditLog", err)
	}
	return logs, nil
}

// logAudit writes entry through tx so it commits or rolls back with the mutation.
func (s *Service) logAudit(ctx context.Context, tx Store, now time.Time, entry *AuditEntry) error {
	audit := GetAuditContext(ctx)
	if audit.ActorID == "" {
		audit.ActorID = SystemActor
	}
	if err := tx.InsertAudit(ctx, entry.toModel(s.newID(), audit, now)); err != nil {
		return storageError("LogAudit", err)
	}
	return nil
}

// validateStruct runs struct tag validation and maps failures to sentinels.
func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewError(ErrInvalidRequest, err.Error())
	}
	for _, fe := range verrs {
		if fe.Field() == "Priority" {
			return NewError(ErrInvalidPriority,
				fmt.Sprintf("priority must be between %d and %d", MinPriority, MaxPriority)).WithCause(err)
		}
	}
	fe := verrs[0]
	return NewError(ErrInvalidRequest, fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())).WithCause(err)
}
