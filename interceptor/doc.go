/*
Package interceptor provides a priority-ordered chain of extension objects.

Interceptors run in chain order: higher priority first, and in registration order among equal
priorities. The first interceptor that fails stops the chain; the error comes back wrapped in an
*InterceptorError that records how far the chain got.

Async invocations run the whole ordered sequence as one task on an ext.Executor. Interceptors
never run concurrently with each other within one invocation.
*/
package interceptor
