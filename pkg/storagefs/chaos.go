package storagefs

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// Chaos wraps an [FS] and injects a small, deterministic set of disk faults
// into the underlying data file: a torn write (truncated mid-stream), an
// outright read or write failure (modeling EIO/ENOSPC), and a short read
// (modeling the OS returning fewer bytes than requested without an error).
// It exists to drive SPEC_FULL.md §8's crash-recovery properties — "kill the
// process between the two fsyncs of a write" and "the scanner tolerates a
// read that comes back short" are otherwise impossible to trigger
// deterministically from a test.
//
// Unlike a full probabilistic fault-injection harness, every fault here is
// armed explicitly and fires exactly once (or, for FailAfterBytes, once a
// cumulative byte budget is exhausted): tests stay reproducible without a
// seeded RNG. Directory operations and the mount-map's atomic replace are
// never faulted, since the scanner makes no recovery claims about them.
type Chaos struct {
	FS

	// failAfterBytes, once set via FailAfterBytes, is the number of bytes
	// written (cumulative, across every chaosFile opened from this Chaos)
	// after which the next Write returns [ErrInjected] without writing
	// anything further, simulating the OS handing back control mid-syscall.
	failAfterBytes atomic.Int64
	written        atomic.Int64
	armed          atomic.Bool

	mu            sync.Mutex
	nextReadErr   error
	nextReadShort int
	nextWriteErr  error
}

// NewChaos wraps fs so its data-file reads and writes can be faulted.
func NewChaos(fs FS) *Chaos {
	c := &Chaos{FS: fs}
	c.failAfterBytes.Store(-1)

	return c
}

// ErrInjected marks every error Chaos injects, wrapped alongside the
// simulated OS error (e.g. syscall.EIO, syscall.ENOSPC) so callers can test
// for either with errors.Is.
var ErrInjected = errors.New("storagefs: injected fault")

// FailAfterBytes arms the chaos wrapper: the (n+1)th byte written across all
// files opened through this Chaos fails with [ErrInjected], and no further
// bytes are written to the underlying file for that call. Call with a
// negative n to disarm.
func (c *Chaos) FailAfterBytes(n int64) {
	c.written.Store(0)
	c.failAfterBytes.Store(n)
	c.armed.Store(n >= 0)
}

// FailNextRead arms the next Read call on any file opened through this
// Chaos to return (0, err) immediately, without touching the underlying
// file. Pass e.g. syscall.EIO to simulate a disk read error.
func (c *Chaos) FailNextRead(err error) {
	c.mu.Lock()
	c.nextReadErr = err
	c.mu.Unlock()
}

// ShortNextRead arms the next Read call to return min(n, len(p)) bytes with
// a nil error instead of filling the caller's buffer, simulating the OS
// satisfying a read from fewer bytes than requested.
func (c *Chaos) ShortNextRead(n int) {
	c.mu.Lock()
	c.nextReadShort = n
	c.mu.Unlock()
}

// FailNextWrite arms the next Write call to return (0, err) immediately,
// writing nothing to the underlying file. Distinct from FailAfterBytes,
// which truncates a write after some bytes land on disk; this models the
// OS rejecting the write outright, e.g. syscall.ENOSPC.
func (c *Chaos) FailNextWrite(err error) {
	c.mu.Lock()
	c.nextWriteErr = err
	c.mu.Unlock()
}

// takeReadFault consumes and clears whichever single-shot read fault is
// armed, if any.
func (c *Chaos) takeReadFault() (err error, short int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nextReadErr != nil {
		err = c.nextReadErr
		c.nextReadErr = nil

		return err, 0, true
	}

	if c.nextReadShort > 0 {
		short = c.nextReadShort
		c.nextReadShort = 0

		return nil, short, true
	}

	return nil, 0, false
}

func (c *Chaos) takeWriteFault() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.nextWriteErr
	c.nextWriteErr = nil

	return err
}

// injectedErr wraps err so callers can match either the simulated OS error
// or ErrInjected via errors.Is.
func injectedErr(err error) error {
	return fmt.Errorf("%w: %w", ErrInjected, err)
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	f, err := c.FS.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: f, chaos: c}, nil
}

func (c *Chaos) Open(path string) (File, error) {
	f, err := c.FS.Open(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: f, chaos: c}, nil
}

type chaosFile struct {
	File
	chaos *Chaos
}

func (f *chaosFile) Read(p []byte) (int, error) {
	if err, short, ok := f.chaos.takeReadFault(); ok {
		if err != nil {
			return 0, injectedErr(err)
		}

		if short > 0 && short < len(p) {
			return f.File.Read(p[:short])
		}
	}

	return f.File.Read(p)
}

func (f *chaosFile) Write(p []byte) (int, error) {
	if err := f.chaos.takeWriteFault(); err != nil {
		return 0, injectedErr(err)
	}

	if !f.chaos.armed.Load() {
		return f.File.Write(p)
	}

	budget := f.chaos.failAfterBytes.Load() - f.chaos.written.Load()
	if budget <= 0 {
		return 0, ErrInjected
	}

	toWrite := p
	truncated := false

	if int64(len(p)) > budget {
		toWrite = p[:budget]
		truncated = true
	}

	n, err := f.File.Write(toWrite)
	f.chaos.written.Add(int64(n))

	if err != nil {
		return n, err
	}

	if truncated {
		return n, ErrInjected
	}

	return n, nil
}

var _ FS = (*Chaos)(nil)
