/*
Package executor provides ext.Executor implementations for async chain invocations:
a goroutine-per-task executor, a bounded pool and a single-worker serial queue.
*/
package executor
