package model

// Default broker topic names. The configured names take precedence; these
// are the platform-wide defaults shared with downstream services.
const (
	TopicOrdersInbound   = "orders.inbound"
	TopicOrdersValidated = "orders.validated"
	TopicOrdersRejected  = "orders.rejected"
	TopicOrdersRouted    = "orders.routed"

	TopicExecutionsFills   = "executions.fills"
	TopicExecutionsRejects = "executions.rejects"

	// DLQSuffix names the dead-letter companion of a topic. The outbox
	// relay never dead-letters rows; the suffix exists for downstream
	// consumers that do.
	DLQSuffix = ".dlq"
)
