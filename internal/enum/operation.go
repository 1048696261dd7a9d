package enum

type OperationEvent string

const (
	OperationDomainCreated        OperationEvent = "DOMAIN_CREATED"
	OperationDomainRemoved        OperationEvent = "DOMAIN_REMOVED"
	OperationVerifyRequest        OperationEvent = "VERIFY_REQUEST"
	OperationVerifyResult         OperationEvent = "VERIFY_RESULT"
	OperationCompanionVerified    OperationEvent = "COMPANION_VERIFIED"
	OperationCompanionCheckFailed OperationEvent = "COMPANION_CHECK_FAILED"
	OperationPlatformAdd          OperationEvent = "PLATFORM_ADD"
	OperationPlatformRemove       OperationEvent = "PLATFORM_REMOVE"
	OperationWWWEnabled           OperationEvent = "WWW_ENABLED"
	OperationWWWDisabled          OperationEvent = "WWW_DISABLED"
	OperationWWWRollback          OperationEvent = "WWW_ROLLBACK"
)

func (e OperationEvent) String() string {
	return string(e)
}

type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// VerificationOutcome is the terminal state of a single verification attempt.
type VerificationOutcome string

const (
	OutcomeVerified VerificationOutcome = "verified"
	OutcomePending  VerificationOutcome = "pending"
	OutcomeError    VerificationOutcome = "error"
)
