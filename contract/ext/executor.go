package ext

// Executor abstracts the background task facility used by async chain invocations.
// The embedding application supplies it; the executor package ships a few defaults.
type Executor interface {
	// Submit schedules task for execution. It returns an error if the task was not accepted.
	// Submit should not block until task runs: tasks submit follow-up work from inside a worker.
	Submit(task func()) error
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(task func()) error

func (f ExecutorFunc) Submit(task func()) error { return f(task) }
