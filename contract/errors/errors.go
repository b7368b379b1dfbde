package errors

// Error codes for the extension contracts. Keep stable; used across adapters, bus and chain.
const (
	ErrCodeChannelClosed        = "extbus.channel_closed"
	ErrCodeChainClosed          = "extbus.chain_closed"
	ErrCodeUnknownEventType     = "extbus.unknown_event_type"
	ErrCodeEventTypeExists      = "extbus.event_type_exists"
	ErrCodeNilListener          = "extbus.nil_listener"
	ErrCodeNilInterceptor       = "extbus.nil_interceptor"
	ErrCodeExecutorClosed       = "extbus.executor_closed"
	ErrCodePublishFailed        = "extbus.publish_failed"
	ErrCodeSerializationFailed  = "extbus.serialization_failed"
	ErrCodeBridgeNotConfigured  = "extbus.bridge_not_configured"
	ErrCodeInvalidConfiguration = "extbus.invalid_configuration"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrChannelClosed        = Code(ErrCodeChannelClosed)
	ErrChainClosed          = Code(ErrCodeChainClosed)
	ErrUnknownEventType     = Code(ErrCodeUnknownEventType)
	ErrEventTypeExists      = Code(ErrCodeEventTypeExists)
	ErrNilListener          = Code(ErrCodeNilListener)
	ErrNilInterceptor       = Code(ErrCodeNilInterceptor)
	ErrExecutorClosed       = Code(ErrCodeExecutorClosed)
	ErrPublishFailed        = Code(ErrCodePublishFailed)
	ErrSerializationFailed  = Code(ErrCodeSerializationFailed)
	ErrBridgeNotConfigured  = Code(ErrCodeBridgeNotConfigured)
	ErrInvalidConfiguration = Code(ErrCodeInvalidConfiguration)
)
