package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldUserID = "user_id"
	FieldEmail  = "email"

	// Service
	FieldService = "service"

	// Realtime
	FieldClientID   = "client_id"
	FieldProjectID  = "project_id"
	FieldTaskID     = "task_id"
	FieldEventType  = "event_type"
	FieldAudience   = "audience"
	FieldChannels   = "channels"
	FieldDelivered  = "delivered"
	FieldDropped    = "dropped"
	FieldNotifyKind = "notification_kind"

	// gRPC
	FieldGRPCMethod = "grpc_method"
	FieldGRPCCode   = "grpc_code"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
