package pathvfs

import (
	"errors"
	"os"
	"syscall"

	"bazil.org/fuse"
)

// category classifies a path-operation failure along spec.md §7's error
// taxonomy: NotFound, NotPermitted, NotSupported, Backend, System, Fatal.
type category int

const (
	categorySystem category = iota
	categoryNotFound
	categoryNotPermitted
	categoryNotSupported
	categoryBackend
	categoryFatal
)

type fsError struct {
	cat category
	err error
}

func (e *fsError) Error() string { return e.err.Error() }
func (e *fsError) Unwrap() error { return e.err }

func newErr(cat category, err error) error {
	if err == nil {
		return nil
	}

	return &fsError{cat: cat, err: err}
}

func errNotFound(err error) error     { return newErr(categoryNotFound, err) }
func errNotPermitted(err error) error { return newErr(categoryNotPermitted, err) }
func errNotSupported(err error) error { return newErr(categoryNotSupported, err) }
func errBackend(err error) error      { return newErr(categoryBackend, err) }
func errSystem(err error) error       { return newErr(categorySystem, err) }

// toFuseErrno maps an [fsError], a raw [syscall.Errno], or a plain
// os.*Error to the errno FUSE reports to the kernel. Backend and Fatal
// failures both surface as EIO: the client has no use for the distinction,
// only logs and the dashboard do (spec.md §7).
func toFuseErrno(err error) error {
	if err == nil {
		return nil
	}

	var fe *fsError
	if errors.As(err, &fe) {
		switch fe.cat {
		case categoryNotFound:
			return fuse.ToErrno(syscall.ENOENT)
		case categoryNotPermitted:
			return fuse.ToErrno(syscall.EACCES)
		case categoryNotSupported:
			return fuse.ToErrno(syscall.ENOTSUP)
		case categoryBackend, categoryFatal:
			return fuse.ToErrno(syscall.EIO)
		case categorySystem:
			return toFuseErrno(fe.err)
		}
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return fuse.ToErrno(errno)
	}

	if os.IsNotExist(err) {
		return fuse.ToErrno(syscall.ENOENT)
	}

	if os.IsPermission(err) {
		return fuse.ToErrno(syscall.EACCES)
	}

	return fuse.ToErrno(syscall.EIO)
}

// translateOSErr classifies a raw error from an os.* call (or a bare
// syscall.Errno) into spec.md §7's taxonomy.
func translateOSErr(err error) error {
	if err == nil {
		return nil
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ENOENT:
			return errNotFound(err)
		case syscall.EACCES, syscall.EPERM:
			return errNotPermitted(err)
		case syscall.ENOSYS, syscall.ENOTSUP:
			return errNotSupported(err)
		default:
			return errSystem(err)
		}
	}

	if os.IsNotExist(err) {
		return errNotFound(err)
	}

	if os.IsPermission(err) {
		return errNotPermitted(err)
	}

	return errSystem(err)
}
