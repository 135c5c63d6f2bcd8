package engine

import "fmt"

// panicAsError turns a recovered panic value into an error carrying the
// task name, so supervise can log and rate-limit it identically to a
// regular returned error.
func panicAsError(task string, r any) error {
	return fmt.Errorf("engine: task %q panicked: %v", task, r)
}

// fatalTaskError wraps the error that caused a supervised task to exceed
// its restart budget (spec.md §7 "Fatal"), which the BackgroundWorker
// surfaces via Err()/Done() for the CLI to report and exit non-zero.
func fatalTaskError(task string, cause error) error {
	if cause == nil {
		return fmt.Errorf("engine: task %q exceeded restart budget", task)
	}

	return fmt.Errorf("engine: task %q exceeded restart budget: %w", task, cause)
}
