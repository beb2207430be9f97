package audithook

// Action constants for audit events.
const (
	// Usage actions
	ActionUsageIncremented = "usage.incremented"
	ActionRateLimited      = "usage.rate_limited"

	// Rollup actions
	ActionRollupCompleted = "rollup.completed"
	ActionRollupSkipped   = "rollup.skipped"

	// Credits actions
	ActionCreditsGranted = "credits.granted"
	ActionCreditsBurned  = "credits.burned"
)

// Resource constants for audit events.
const (
	ResourceUsage  = "usage"
	ResourceRollup = "rollup"
	ResourceLedger = "ledger"
)

// Category constants for audit events.
const (
	CategoryMetering = "metering"
	CategoryBilling  = "billing"
	CategoryAccess   = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)
