// errors.go provides the five error kinds shared across compiler stages and
// a collector the CLI's multi-file mode uses to gather one failure per
// input rather than aborting the batch on the first one. The compiler is
// strictly single-threaded and synchronous (spec §5: files are compiled one
// at a time in source order, never concurrently), so unlike the teacher's
// perror.go — whose collector listens on a channel fed by parallel worker
// goroutines — this Collector is a plain slice behind a mutex: Append is
// called straight from the driver's compile loop, never from a goroutine.

package util

import (
	"fmt"
	"sync"
)

// Kind tags which pipeline stage produced an error.
type Kind int

const (
	LexError Kind = iota
	ParseError
	IRError
	RuntimeError
	CodeGenError
)

// String returns the diagnostic prefix for k.
func (k Kind) String() string {
	switch k {
	case LexError:
		return "LexError"
	case ParseError:
		return "ParseError"
	case IRError:
		return "IRError"
	case RuntimeError:
		return "RuntimeError"
	case CodeGenError:
		return "CodeGenError"
	default:
		return "Error"
	}
}

// StageError is the common error type returned by every stage. It carries
// the offending line/column when known (0 when not applicable).
type StageError struct {
	Kind    Kind
	Line    int
	Col     int
	Message string
}

func (e *StageError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s at %d:%d: %s", e.Kind, e.Line, e.Col, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Newf builds a StageError of kind k with a formatted message.
func Newf(k Kind, line, col int, format string, args ...interface{}) *StageError {
	return &StageError{Kind: k, Line: line, Col: col, Message: fmt.Sprintf(format, args...)}
}

// defaultBufferSize is the fallback pre-allocation size of a Collector's
// error buffer.
const defaultBufferSize = 16

// Collector buffers one error per failed input in the CLI's multi-file
// mode. The mutex guards against the package being reused from tests that
// happen to run in parallel (`go test -parallel`); the driver itself never
// calls into a Collector from more than one goroutine at a time.
type Collector struct {
	mu     sync.Mutex
	errors []error
}

// NewCollector returns a Collector with n pre-allocated slots.
func NewCollector(n int) *Collector {
	if n < 1 {
		n = defaultBufferSize
	}
	return &Collector{errors: make([]error, 0, n)}
}

// Append records err. Nil errors are ignored.
func (c *Collector) Append(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

// Len returns the number of buffered errors.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errors)
}

// Flush empties the buffered errors.
func (c *Collector) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = make([]error, 0, cap(c.errors))
}

// Errors returns every error collected since the last Flush.
func (c *Collector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]error, len(c.errors))
	copy(out, c.errors)
	return out
}

// Stop is a no-op retained for call-site compatibility with code written
// against the collector as a scoped resource (`defer collector.Stop()`);
// there is no listener goroutine left to terminate.
func (c *Collector) Stop() {}
