package lithe

import "errors"

// Resource-exhaustion and caller-misuse errors returned from the API calls
// named in spec.md §7 ("surface as an allocation failure from the
// corresponding create call; caller decides" / "delivered through the
// normal return path").
var (
	// ErrNilFuncs is returned by Enter when funcs is nil.
	ErrNilFuncs = errors.New("lithe: funcs must not be nil")
	// ErrNilStartTask is returned by Enter when childTask is nil.
	ErrNilStartTask = errors.New("lithe: startTask must not be nil")
	// ErrParentNotRegistered is returned by Enter when the calling
	// task's current scheduler is no longer accepting children.
	ErrParentNotRegistered = errors.New("lithe: parent scheduler is not registered")
	// ErrNilTask is returned by Destroy/Unblock when task is nil (RunTask
	// panics on a nil task instead).
	ErrNilTask = errors.New("lithe: task must not be nil")
	// ErrNilBody is returned by Create when the task body function is nil.
	ErrNilBody = errors.New("lithe: task body func must not be nil")
)
