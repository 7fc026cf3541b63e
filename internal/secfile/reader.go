package secfile

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sys/unix"

	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/core/errors"
)

// Defaults for the consistency retry loop and the allocation cap.
const (
	DefaultReadAttempts = 10
	DefaultRetryDelay   = 500 * time.Microsecond
	DefaultMaxSize      = 16 << 20
)

// privMu serializes privilege-sensitive reads. Effective identity is
// process-wide, so at most one drop may be in flight; callers must not run
// other filesystem-privilege-sensitive work concurrently.
var privMu sync.Mutex

// errFileChanged marks a read attempt invalidated by a concurrent writer.
var errFileChanged = stderrors.New("credential file changed during read")

// Options tunes a Reader. Zero values select the defaults, which match the
// long-standing policy constants: 10 attempts, 500µs between them.
type Options struct {
	Attempts uint
	Delay    time.Duration
	MaxSize  int64
}

// fileState is one metadata snapshot used to detect concurrent writers.
// ctime is included because it cannot be forged by touching mtime.
type fileState struct {
	size  int64
	mtime unix.Timespec
	ctime unix.Timespec
}

func stateOf(st *unix.Stat_t) fileState {
	return fileState{size: st.Size, mtime: st.Mtim, ctime: st.Ctim}
}

// Reader reads credential files under the safety policy. It is stateless
// across reads and safe for sequential reuse.
type Reader struct {
	opts  Options
	fstat func(fd int) (unix.Stat_t, error)
}

// NewReader creates a Reader, filling unset options with the defaults.
func NewReader(opts Options) *Reader {
	if opts.Attempts == 0 {
		opts.Attempts = DefaultReadAttempts
	}
	if opts.Delay == 0 {
		opts.Delay = DefaultRetryDelay
	}
	if opts.MaxSize == 0 {
		opts.MaxSize = DefaultMaxSize
	}
	return &Reader{
		opts: opts,
		fstat: func(fd int) (unix.Stat_t, error) {
			var st unix.Stat_t
			err := unix.Fstat(fd, &st)
			return st, err
		},
	}
}

// ReadSecureFile reads the whole of path under the given lock policy.
//
// When the effective user is root and the real user is not, privilege is
// dropped to the real identity before the file is touched and restored
// before returning. The file must be owned by the real user and carry no
// group or other read/write bits. A bounded retry loop re-reads the file
// while its size, mtime, or ctime keep changing under a concurrent writer.
//
// The error code space of this operation:
//
//	-1 I/O error (open, stat, read, short read)
//	-2 privilege drop failure
//	-3 unsafe ownership or permissions
//	-4 file exceeds the allocation cap
//	-5 file still changing after the retry budget
//	-6 advisory lock failure
//
// The returned slice holds exactly the bytes read; its backing array has a
// NUL byte just past the logical length for text-parsing convenience.
func (r *Reader) ReadSecureFile(path string, policy LockPolicy) ([]byte, error) {
	const op = "ReadSecureFile"

	privMu.Lock()
	defer privMu.Unlock()

	id := CaptureIdentity()
	if id.EUID == 0 && id.RUID != 0 {
		if err := Drop(id.RUID, id.RGID); err != nil {
			return nil, errors.Wrap(op, -2, errors.KindPrivilege, "cannot drop privilege", err)
		}
		// The raise result is ignored on the way out: the read already
		// happened, and raising is legitimately impossible for some callers.
		defer func() { _ = Raise(id.EUID, id.EGID) }()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(op, -1, errors.KindIO, fmt.Sprintf("cannot open credential file %s", path), err)
	}
	defer f.Close()
	fd := int(f.Fd())

	if err := Lock(fd, policy, SharedRead); err != nil {
		return nil, errors.Wrap(op, -6, errors.KindLock, "cannot lock credential file", err)
	}
	defer func() { _ = Unlock(fd, policy) }()

	st, err := r.fstat(fd)
	if err != nil {
		return nil, errors.Wrap(op, -1, errors.KindIO, "cannot stat credential file", err)
	}
	if int(st.Uid) != id.RUID {
		return nil, errors.New(op, -3, errors.KindPermission,
			fmt.Sprintf("credential file %s not owned by uid %d", path, id.RUID))
	}
	if st.Mode&(unix.S_IRGRP|unix.S_IWGRP|unix.S_IROTH|unix.S_IWOTH) != 0 {
		return nil, errors.New(op, -3, errors.KindPermission,
			fmt.Sprintf("unsafe permissions %#o on credential file %s", st.Mode&0o777, path))
	}
	if st.Size > r.opts.MaxSize {
		return nil, errors.New(op, -4, errors.KindMemory,
			fmt.Sprintf("credential file %s exceeds %d byte cap", path, r.opts.MaxSize))
	}

	snap := stateOf(&st)
	buf := make([]byte, snap.size+1)
	var n int

	attempt := func() error {
		// Read up to the size of the snapshot this attempt is based on.
		want := int(snap.size)
		n = 0
		var readErr error
		for n < want {
			m, rerr := f.Read(buf[n:want])
			n += m
			if rerr != nil {
				readErr = rerr
				break
			}
		}

		st2, serr := r.fstat(fd)
		if serr != nil {
			return errors.Wrap(op, -1, errors.KindIO, "cannot stat credential file", serr)
		}
		next := stateOf(&st2)
		if next == snap {
			// Consistent. The read itself must still have been complete.
			if n != want || (readErr != nil && readErr != io.EOF) {
				return errors.Wrap(op, -1, errors.KindIO, "short read of credential file", readErr)
			}
			return nil
		}

		// Concurrent modification: rebase on the fresh snapshot, resize,
		// rewind, and go again after the fixed delay.
		if next.size > r.opts.MaxSize {
			return errors.New(op, -4, errors.KindMemory,
				fmt.Sprintf("credential file %s exceeds %d byte cap", path, r.opts.MaxSize))
		}
		snap = next
		if int(next.size)+1 > cap(buf) {
			buf = make([]byte, next.size+1)
		} else {
			buf = buf[:next.size+1]
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return errors.Wrap(op, -1, errors.KindIO, "cannot rewind credential file", err)
		}
		return errFileChanged
	}

	err = retry.Do(attempt,
		retry.Attempts(r.opts.Attempts),
		retry.Delay(r.opts.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return stderrors.Is(err, errFileChanged) }),
	)
	if stderrors.Is(err, errFileChanged) {
		return nil, errors.New(op, -5, errors.KindTooManyRetries,
			fmt.Sprintf("credential file %s still changing after %d attempts", path, r.opts.Attempts))
	}
	if err != nil {
		return nil, err
	}

	buf[n] = 0
	return buf[:n], nil
}
