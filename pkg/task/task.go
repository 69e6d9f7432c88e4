// Package task defines the immutable task record tasque queues and
// executes, and the pure state-closure function derived from it.
//
// A Task is the queue row described by the data model: nine
// attributes, nullability expressed as Go's zero value for pointers
// (nil means "absent"), never as a sentinel string. This is the one
// place in the module where the original's "null" marker has no
// representation at all: the type system makes the leak it guarded
// against unrepresentable.
package task

import "fmt"

// Task is one queued command line and its lifecycle record. Values
// are treated as immutable: callers that need to change a field build
// a new Task (typically by copying and mutating a pointer field) and
// persist the whole record.
type Task struct {
	ID     int      // positive, unique, monotonically assigned
	PID    *int     // nil=waiting, >0=running, -1=accident
	CWD    string   // absolute working directory
	Cmd    string   // command line, tokenized at worker spawn
	Retval *int     // nil until the worker records an exit status
	STime  *float64 // unix seconds, set on entering Running
	ETime  *float64 // unix seconds, set on entering Done
	Pri    int      // larger runs earlier, default 0
	RSC    float64  // resource weight demanded, as given by the caller (tq enqueue defaults it to 0); no plugin supplies a default
}

// New validates the constructor invariants of the task model and
// returns a Waiting task with the given id. All fields other than the
// five given here begin absent.
func New(id int, cwd, cmd string, pri int, rsc float64) (Task, error) {
	if id <= 0 {
		return Task{}, fmt.Errorf("task: id must be positive, got %d", id)
	}
	if cwd == "" {
		return Task{}, fmt.Errorf("task: cwd must be present")
	}
	if cwd[0] != '/' {
		return Task{}, fmt.Errorf("task: cwd must be absolute, got %q", cwd)
	}
	if cmd == "" {
		return Task{}, fmt.Errorf("task: cmd must be a non-empty string")
	}
	if rsc < 0 {
		return Task{}, fmt.Errorf("task: rsc must be non-negative, got %v", rsc)
	}
	return Task{ID: id, CWD: cwd, Cmd: cmd, Pri: pri, RSC: rsc}, nil
}

// State is the four-way partition of (PID, Retval) from the data
// model's lifecycle table.
type State int

const (
	// Waiting: pid absent, retval absent.
	Waiting State = iota
	// Running: pid present and positive, retval absent.
	Running
	// Done: pid absent, retval present.
	Done
	// Accident: pid == -1, retval absent.
	Accident
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Running:
		return "running"
	case Done:
		return "done"
	case Accident:
		return "accident"
	default:
		return "unknown"
	}
}

// Stat classifies a Task's State for the state-closure invariant
// (I1/P2). It never inspects anything beyond PID and Retval.
func Stat(t Task) State {
	switch {
	case t.PID != nil && *t.PID == -1 && t.Retval == nil:
		return Accident
	case t.PID != nil && *t.PID > 0 && t.Retval == nil:
		return Running
	case t.PID == nil && t.Retval != nil:
		return Done
	default:
		return Waiting
	}
}

// OK reports whether a Done task's retval was zero. Only meaningful
// when Stat(t) == Done.
func (t Task) OK() bool {
	return t.Retval != nil && *t.Retval == 0
}

// IntPtr and Float64Ptr are small constructors used by the store's
// lifecycle transitions to build the pointer-typed optional fields
// without an inline &x temporary at every call site.
func IntPtr(v int) *int { return &v }

func Float64Ptr(v float64) *float64 { return &v }
