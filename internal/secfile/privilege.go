// Package secfile reads privilege-sensitive credential files safely: it
// drops effective identity to the real user, takes advisory locks, enforces
// an ownership and mode policy, and detects concurrent rewrites of the file
// while reading. Linux only; the set-id calls apply to all runtime threads.
package secfile

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrRaiseImpossible is returned by Raise when neither the saved effective
// user nor the real user is root. For non-privileged invocations this is an
// expected outcome, not a failure to escalate.
var ErrRaiseImpossible = errors.New("cannot raise privilege: neither effective nor real user is root")

// PrivilegeSnapshot captures the process identity at the moment privilege
// must be dropped. It is consumed right after the protected operation and
// never stored longer than one read.
type PrivilegeSnapshot struct {
	RUID, RGID int
	EUID, EGID int
}

// CaptureIdentity snapshots the current real and effective identity.
func CaptureIdentity() PrivilegeSnapshot {
	return PrivilegeSnapshot{
		RUID: unix.Getuid(),
		RGID: unix.Getgid(),
		EUID: unix.Geteuid(),
		EGID: unix.Getegid(),
	}
}

// Drop lowers the effective identity to targetUID/targetGID: group first,
// then user. A target uid of 0 is never set as a drop target. If the user
// change fails after the group was already changed, the group is restored
// best-effort and the user change's error is returned. Already being at the
// target is a no-op.
func Drop(targetUID, targetGID int) error {
	euid := unix.Geteuid()
	egid := unix.Getegid()

	// The target gid may legitimately be 0 (root group).
	if targetGID != egid {
		if err := syscall.Setegid(targetGID); err != nil {
			return fmt.Errorf("setegid(%d): %w", targetGID, err)
		}
	}
	if targetUID == 0 || targetUID == euid {
		return nil
	}
	if err := syscall.Seteuid(targetUID); err != nil {
		// Group already changed: restore it, keep the seteuid error.
		_ = syscall.Setegid(egid)
		return fmt.Errorf("seteuid(%d): %w", targetUID, err)
	}
	return nil
}

// Raise restores a previously dropped effective identity. POSIX set-id
// semantics force two orderings: a saved effective uid of 0 must be restored
// before the group; otherwise, when the real user is root, the effective
// user is transiently set to root so the group change is permitted, then
// set to its saved value. When neither holds, raising is impossible and
// ErrRaiseImpossible is returned.
func Raise(savedEUID, savedEGID int) error {
	if savedEUID == 0 {
		if err := syscall.Seteuid(0); err != nil {
			return fmt.Errorf("seteuid(0): %w", err)
		}
		if err := syscall.Setegid(savedEGID); err != nil {
			return fmt.Errorf("setegid(%d): %w", savedEGID, err)
		}
		return nil
	}
	if unix.Getuid() == 0 {
		if err := syscall.Seteuid(0); err != nil {
			return fmt.Errorf("seteuid(0): %w", err)
		}
		if err := syscall.Setegid(savedEGID); err != nil {
			return fmt.Errorf("setegid(%d): %w", savedEGID, err)
		}
		if err := syscall.Seteuid(savedEUID); err != nil {
			return fmt.Errorf("seteuid(%d): %w", savedEUID, err)
		}
		return nil
	}
	return ErrRaiseImpossible
}
