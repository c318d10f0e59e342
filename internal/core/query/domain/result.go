package domain

// Artifact is a compiled, backend-native query: a SQL statement or a document
// store command.
type Artifact interface {
	String() string
}

// Result is the outcome of a terminal operation. In dry-run mode Value is the
// zero value and Artifact carries what would have been executed.
type Result[T any] struct {
	Value    T
	Artifact Artifact
	DryRun   bool
}

// Executed wraps a value produced by running artifact.
func Executed[T any](value T, artifact Artifact) Result[T] {
	return Result[T]{Value: value, Artifact: artifact}
}

// Planned wraps an artifact that was compiled but not executed.
func Planned[T any](artifact Artifact) Result[T] {
	return Result[T]{Artifact: artifact, DryRun: true}
}

// GroupTotal is one bucket of a grouped count.
type GroupTotal struct {
	Key   any
	Total int64
}

// Tally is the result of a count. Groups is nil when no group key was
// requested.
type Tally struct {
	Total  int64
	Groups []GroupTotal
}

// Sums is the result of a sum.
//
// Total is set for a single-field key without grouping, Totals for a list or
// mapping key without grouping, and Groups when a group key was requested.
type Sums struct {
	Total  float64
	Totals Record
	Groups []Record
}
