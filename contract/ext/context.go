package ext

import "context"

// HeaderPropagator abstracts injecting tracing context into outbound headers.
// Implementations mutate the provided map and must be safe for concurrent use.
type HeaderPropagator interface {
	Inject(ctx context.Context, headers map[string]string)
}
