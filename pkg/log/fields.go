package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Signaling
	FieldSessionID    = "session_id"
	FieldSessionCode  = "session_code"
	FieldConnectionID = "connection_id"
	FieldPeerID       = "peer_id"
	FieldMessageType  = "message_type"
	FieldEventType    = "event_type"
	FieldReason       = "reason"

	// Actor
	FieldOwner = "owner"

	// Service
	FieldService   = "service"
	FieldComponent = "component"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
