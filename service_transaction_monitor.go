package grantkit

import (
	"sync"
	"time"
)

// TransactionMetrics reports how the store's atomic units have been behaving.
type TransactionMetrics struct {
	TotalTransactions      int64         `json:"total_transactions"`
	SuccessfulTransactions int64         `json:"successful_transactions"`
	FailedTransactions     int64         `json:"failed_transactions"`
	AverageDuration        time.Duration `json:"average_duration"`
	MaxDuration            time.Duration `json:"max_duration"`
	MinDuration            time.Duration `json:"min_duration"`
	LastFailure            time.Time     `json:"last_failure,omitzero"`
	LastReset              time.Time     `json:"last_reset"`
}

type transactionMonitor struct {
	mu          sync.Mutex
	total       int64
	success     int64
	failure     int64
	sum         time.Duration
	max         time.Duration
	min         time.Duration
	lastFailure time.Time
	lastReset   time.Time
}

func newTransactionMonitor() *transactionMonitor {
	return &transactionMonitor{lastReset: time.Now()}
}

func (tm *transactionMonitor) recordTransaction(d time.Duration, ok bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.total++
	tm.sum += d
	if ok {
		tm.success++
	} else {
		tm.failure++
		tm.lastFailure = time.Now()
	}
	if d > tm.max {
		tm.max = d
	}
	if tm.total == 1 || d < tm.min {
		tm.min = d
	}
}

func (tm *transactionMonitor) getMetrics() TransactionMetrics {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	m := TransactionMetrics{
		TotalTransactions:      tm.total,
		SuccessfulTransactions: tm.success,
		FailedTransactions:     tm.failure,
		MaxDuration:            tm.max,
		MinDuration:            tm.min,
		LastFailure:            tm.lastFailure,
		LastReset:              tm.lastReset,
	}
	if tm.total > 0 {
		m.AverageDuration = tm.sum / time.Duration(tm.total)
	}
	return m
}

func (tm *transactionMonitor) reset() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.total, tm.success, tm.failure = 0, 0, 0
	tm.sum, tm.max, tm.min = 0, 0, 0
	tm.lastFailure = time.Time{}
	tm.lastReset = time.Now()
}

// GetTransactionMetrics returns the current transaction performance metrics.
func (s *Service) GetTransactionMetrics() TransactionMetrics {
	return s.txMonitor.getMetrics()
}

// ResetTransactionMetrics resets all transaction metrics.
func (s *Service) ResetTransactionMetrics() {
	s.txMonitor.reset()
}

// IsTransactionHealthy checks if transaction performance is within acceptable
// thresholds: under 5% failures and under one second on average, once ten
// units have run.
func (s *Service) IsTransactionHealthy() bool {
	metrics := s.txMonitor.getMetrics()
	if metrics.TotalTransactions < 10 {
		return true
	}
	failureRate := float64(metrics.FailedTransactions) / float64(metrics.TotalTransactions)
	if failureRate > 0.05 {
		return false
	}
	return metrics.AverageDuration <= time.Second
}
