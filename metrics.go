package authkit

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterDuplicate
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginLocked
	MetricLockoutTripped
	MetricTwoFactorRequired
	MetricTwoFactorSuccess
	MetricTwoFactorFailure
	MetricTwoFactorChallengeExpired
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricBackupCodesRegenerated
	MetricTwoFactorEnabled
	MetricTwoFactorDisabled
	MetricEmailVerificationSent
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricPasswordResetRequested
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricPasswordChanged
	MetricPasswordRehashed
	MetricSessionIssued
	MetricSessionRejected
	MetricFederatedLoginSuccess
	MetricFederatedAccountLinked
	MetricFederatedAccountCreated
	MetricAccountDeleted
	MetricAccountExported
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricRegisterSuccess:           "register_success",
	MetricRegisterDuplicate:         "register_duplicate",
	MetricLoginSuccess:              "login_success",
	MetricLoginFailure:              "login_failure",
	MetricLoginLocked:               "login_locked",
	MetricLockoutTripped:            "lockout_tripped",
	MetricTwoFactorRequired:         "two_factor_required",
	MetricTwoFactorSuccess:          "two_factor_success",
	MetricTwoFactorFailure:          "two_factor_failure",
	MetricTwoFactorChallengeExpired: "two_factor_challenge_expired",
	MetricBackupCodeUsed:            "backup_code_used",
	MetricBackupCodeFailed:          "backup_code_failed",
	MetricBackupCodesRegenerated:    "backup_codes_regenerated",
	MetricTwoFactorEnabled:          "two_factor_enabled",
	MetricTwoFactorDisabled:         "two_factor_disabled",
	MetricEmailVerificationSent:     "email_verification_sent",
	MetricEmailVerificationSuccess:  "email_verification_success",
	MetricEmailVerificationFailure:  "email_verification_failure",
	MetricPasswordResetRequested:    "password_reset_requested",
	MetricPasswordResetSuccess:      "password_reset_success",
	MetricPasswordResetFailure:      "password_reset_failure",
	MetricPasswordChanged:           "password_changed",
	MetricPasswordRehashed:          "password_rehashed",
	MetricSessionIssued:             "session_issued",
	MetricSessionRejected:           "session_rejected",
	MetricFederatedLoginSuccess:     "federated_login_success",
	MetricFederatedAccountLinked:    "federated_account_linked",
	MetricFederatedAccountCreated:   "federated_account_created",
	MetricAccountDeleted:            "account_deleted",
	MetricAccountExported:           "account_exported",
}

// Name returns the stable snake_case name of the counter, suitable as a
// metric name suffix in an exporter.
func (id MetricID) Name() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

const cacheLineSize = 64

// paddedCounter keeps hot counters on separate cache lines.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters. A nil *Metrics is a
// valid no-op receiver.
type Metrics struct {
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics returns an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc adds one to the counter. Safe for concurrent use.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Counters may move while the copy runs;
// each individual read is atomic.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	if m == nil {
		return s
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
