package secfile

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// LockPolicy selects which advisory locking primitives guard a read.
type LockPolicy int

const (
	// LockNone takes no lock at all. It is a true no-op and is not
	// combined with other policies.
	LockNone LockPolicy = iota
	// LockRange uses POSIX record locks (fcntl F_SETLKW, whole range).
	LockRange
	// LockWholeFile uses BSD flock.
	LockWholeFile
	// LockBoth applies both primitives; either failing fails the call.
	LockBoth
)

func (p LockPolicy) String() string {
	switch p {
	case LockNone:
		return "none"
	case LockRange:
		return "range"
	case LockWholeFile:
		return "wholefile"
	case LockBoth:
		return "both"
	}
	return fmt.Sprintf("LockPolicy(%d)", int(p))
}

// ParseLockPolicy maps caller-supplied lock-type names onto a policy.
// Unrecognized values are a fatal input error.
func ParseLockPolicy(s string) (LockPolicy, error) {
	switch s {
	case "none", "nolock":
		return LockNone, nil
	case "range", "fcntl":
		return LockRange, nil
	case "wholefile", "flock":
		return LockWholeFile, nil
	case "both":
		return LockBoth, nil
	}
	return 0, fmt.Errorf("unknown lock type %q", s)
}

// LockMode selects shared-read or exclusive-write locking. Shared locks may
// be held concurrently by readers; an exclusive lock excludes everyone.
type LockMode int

const (
	SharedRead LockMode = iota
	ExclusiveWrite
)

var errUnknownLockMode = errors.New("unknown lock mode")

// Lock acquires the advisory lock(s) named by policy on fd. Acquisition
// blocks until the lock is obtainable; callers needing a timeout must
// impose one externally.
func Lock(fd int, policy LockPolicy, mode LockMode) error {
	if policy == LockNone {
		return nil
	}
	if policy == LockWholeFile || policy == LockBoth {
		var how int
		switch mode {
		case SharedRead:
			how = unix.LOCK_SH
		case ExclusiveWrite:
			how = unix.LOCK_EX
		default:
			return errUnknownLockMode
		}
		if err := unix.Flock(fd, how); err != nil {
			return fmt.Errorf("flock: %w", err)
		}
	}
	if policy == LockRange || policy == LockBoth {
		var typ int16
		switch mode {
		case SharedRead:
			typ = unix.F_RDLCK
		case ExclusiveWrite:
			typ = unix.F_WRLCK
		default:
			return errUnknownLockMode
		}
		if err := fcntlLock(fd, typ); err != nil {
			return fmt.Errorf("fcntl lock: %w", err)
		}
	}
	return nil
}

// Unlock releases whichever primitives policy names. Errors are returned
// but release is attempted for every primitive regardless.
func Unlock(fd int, policy LockPolicy) error {
	if policy == LockNone {
		return nil
	}
	var flockErr, fcntlErr error
	if policy == LockWholeFile || policy == LockBoth {
		flockErr = unix.Flock(fd, unix.LOCK_UN)
	}
	if policy == LockRange || policy == LockBoth {
		fcntlErr = fcntlLock(fd, unix.F_UNLCK)
	}
	if flockErr != nil {
		return fmt.Errorf("flock unlock: %w", flockErr)
	}
	if fcntlErr != nil {
		return fmt.Errorf("fcntl unlock: %w", fcntlErr)
	}
	return nil
}

func fcntlLock(fd int, typ int16) error {
	lk := unix.Flock_t{
		Type:   typ,
		Whence: io.SeekStart,
		Start:  0,
		Len:    0,
	}
	return unix.FcntlFlock(uintptr(fd), unix.F_SETLKW, &lk)
}
