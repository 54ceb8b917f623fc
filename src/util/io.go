package util

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Writer buffers output from a backend in a strings.Builder. Flush or Close
// sends the buffer straight to the output target registered by ListenWrite.
// The teacher's Writer instead fed a channel drained by a listener goroutine,
// one per parallel compile worker; compilation here runs one file at a time
// (cmd/vslang's runRoot loops over args directly, never behind `go`), so
// there is no producer/consumer pair to synchronize and the channel is
// replaced by a direct write.
type Writer struct {
	sb strings.Builder
}

// outTarget is the shared destination Flush/Close write to, set once by
// ListenWrite before any Writer is used.
var outTarget *bufio.Writer

// Write writes a format string to the Writer's buffer.
func (w *Writer) Write(format string, args ...interface{}) {
	w.sb.WriteString(fmt.Sprintf(format, args...))
}

// WriteString writes a plain string to the Writer's buffer.
func (w *Writer) WriteString(s string) {
	w.sb.WriteString(s)
}

// Ins1 writes a one-line instruction using the operator and single operand.
func (w *Writer) Ins1(op, rs1 string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%s\n", op, rs1))
}

// Ins2 writes a one-line instruction using the operator, destination and
// single source operand.
func (w *Writer) Ins2(op, rd, rs1 string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%s, %s\n", op, rd, rs1))
}

// Ins3 writes a one-line instruction using the operator, destination and two
// source operands.
func (w *Writer) Ins3(op, rd, rs1, rs2 string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%s, %s, %s\n", op, rd, rs1, rs2))
}

// LoadStore writes a load or store instruction of register reg with offset
// relative to pointer (usually sp, rbp or fp).
func (w *Writer) LoadStore(op, reg string, offset int, pointer string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%d(%s), %s\n", op, offset, pointer, reg))
}

// Label writes a one-line label definition.
func (w *Writer) Label(name string) {
	w.sb.WriteString(fmt.Sprintf("%s:\n", name))
}

// Comment writes a one-line assembler comment.
func (w *Writer) Comment(format string, args ...interface{}) {
	w.sb.WriteString(fmt.Sprintf("\t# %s\n", fmt.Sprintf(format, args...)))
}

// String returns the buffer's contents without consuming it.
func (w *Writer) String() string {
	return w.sb.String()
}

// Flush writes the buffer's contents to the output target registered by
// ListenWrite and resets the buffer.
func (w *Writer) Flush() {
	if outTarget == nil {
		return
	}
	if _, err := outTarget.WriteString(w.sb.String()); err != nil {
		Log.Error().Err(err).Msg("write failed")
	}
	if err := outTarget.Flush(); err != nil {
		Log.Error().Err(err).Msg("flush failed")
	}
	w.sb = strings.Builder{}
}

// Close flushes the buffer. Kept distinct from Flush for call-site symmetry
// with the teacher's resource-scoped Writer (`defer w.Close()`).
func (w *Writer) Close() {
	w.Flush()
}

// NewWriter returns a new Writer for a backend to write assembly/text output
// to. Must not be called before ListenWrite.
func NewWriter() Writer {
	return Writer{}
}

// ReadSource reads source code from a file, or from stdin (with a short
// timeout) when path is empty. The goroutine here is load-bearing: a
// blocking os.Stdin.Read has no other way to race against a
// timeout in Go, so the goroutine+select here stays even though the rest of
// this file no longer uses that pattern.
func ReadSource(path string) (string, error) {
	if len(path) > 0 {
		b, err := os.ReadFile(path)
		return string(b), err
	}

	c := make(chan string)
	cerr := make(chan error)

	go func(c chan string, cerr chan error) {
		defer close(c)
		defer close(cerr)
		reader := bufio.NewReader(os.Stdin)
		text, err := reader.ReadString(0)
		if err == nil || errors.Is(err, io.EOF) {
			c <- text
		} else {
			cerr <- err
		}
	}(c, cerr)

	select {
	case <-time.After(500 * time.Millisecond):
		return "", errors.New("expected input from stdin, got none")
	case s := <-c:
		return s, nil
	case err := <-cerr:
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", err
	}
}

// ListenWrite registers the shared output target: f if non-nil, otherwise
// stdout. Must be called once before any Writer's Flush/Close.
func ListenWrite(f *os.File) {
	if f != nil {
		outTarget = bufio.NewWriter(f)
	} else {
		outTarget = bufio.NewWriter(os.Stdout)
	}
}

// Close is a no-op kept for call-site symmetry with ListenWrite; there is no
// listener goroutine left to terminate, and the underlying *os.File is
// closed by its own opener.
func Close() {}
