package grantkit

import (
	"context"
	"time"
)

// Transaction executes fn within a single atomic unit of the underlying store.
// If fn returns an error every write made through tx is discarded.
//
// Example:
//
//	err := service.Transaction(ctx, func(ctx context.Context, tx grantkit.Store) error {
//	    roles, err := tx.FindRoles(ctx, grantkit.RoleFilter{ActiveOnly: true})
//	    if err != nil {
//	        return err // rolls back
//	    }
//	    ...
//	    return nil // commits
//	})
func (s *Service) Transaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	start := time.Now()
	err := s.store.Atomic(ctx, fn)
	s.txMonitor.recordTransaction(time.Since(start), err == nil)
	return err
}

// ReadOnlyTransaction executes fn against a consistent snapshot of the store.
func (s *Service) ReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	start := time.Now()
	err := s.store.ReadOnly(ctx, fn)
	s.txMonitor.recordTransaction(time.Since(start), err == nil)
	return err
}
