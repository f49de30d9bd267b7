package audithook

// Action constants for audit events.
const (
	// Manager actions
	ActionManagerAdded    = "manager.added"
	ActionProjectCanceled  = "project.canceled"

	// Note actions
	ActionNoteDonated       = "note.donated"
	ActionNoteTransferred   = "note.transferred"
	ActionNoteDelegated     = "note.delegated"
	ActionProjectProposed   = "project.proposed"
	ActionProposalCommitted = "proposal.committed"

	// Vault actions
	ActionPaymentAuthorized = "payment.authorized"
	ActionPaymentConfirmed  = "payment.confirmed"
	ActionPaymentCanceled   = "payment.canceled"
)

// Resource constants for audit events.
const (
	ResourceManager = "manager"
	ResourceNote    = "note"
	ResourcePayment = "payment"
)

// Category constants for audit events.
const (
	CategoryGovernance = "governance"
	CategoryCustody    = "custody"
	CategorySettlement = "settlement"
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
	OutcomePartial = "partial"
)
