package pathvfs

import (
	"context"
	"os"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"golang.org/x/sys/unix"
)

var (
	_ fs.NodeMkdirer    = (*vnode)(nil)
	_ fs.NodeMknoder    = (*vnode)(nil)
	_ fs.NodeRemover    = (*vnode)(nil)
	_ fs.NodeCreater    = (*vnode)(nil)
	_ fs.NodeRenamer    = (*vnode)(nil)
	_ fs.NodeSymlinker  = (*vnode)(nil)
	_ fs.NodeLinker     = (*vnode)(nil)
	_ fs.NodeReadlinker = (*vnode)(nil)
	_ fs.NodeSetattrer  = (*vnode)(nil)
	_ fs.FSStatfser     = (*FS)(nil)
)

// writeRejected implements the universal write-path rejection of
// peepfs_mkdir/peepfs_mknod: any operation whose target path crosses into
// an archive view — the archive's own root included — is refused with
// EACCES, whatever the operation actually is.
func (f *FS) writeRejected(relPath string) error {
	full := f.fullPath(relPath)

	if _, _, isArchive := split(full, f.opts.MagicSuffix); isArchive {
		return toFuseErrno(errNotPermitted(syscall.EACCES))
	}

	return nil
}

func (n *vnode) Mkdir(_ context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	if err := n.fs.writeRejected(n.relPath); err != nil {
		return nil, err
	}

	child := n.child(req.Name)
	if err := os.Mkdir(n.fs.fullPath(child.relPath), req.Mode.Perm()); err != nil {
		return nil, toFuseErrno(translateOSErr(err))
	}

	return child, nil
}

func (n *vnode) Mknod(_ context.Context, req *fuse.MknodRequest) (fs.Node, error) {
	if err := n.fs.writeRejected(n.relPath); err != nil {
		return nil, err
	}

	child := n.child(req.Name)
	full := n.fs.fullPath(child.relPath)

	if err := unix.Mknod(full, uint32(req.Mode), int(req.Rdev)); err != nil {
		return nil, toFuseErrno(translateOSErr(err))
	}

	return child, nil
}

func (n *vnode) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	if err := n.fs.writeRejected(n.relPath); err != nil {
		return err
	}

	full := n.fs.fullPath(n.child(req.Name).relPath)

	if err := os.Remove(full); err != nil {
		return toFuseErrno(translateOSErr(err))
	}

	return nil
}

func (n *vnode) Create(_ context.Context, req *fuse.CreateRequest, _ *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	if err := n.fs.writeRejected(n.relPath); err != nil {
		return nil, nil, err
	}

	child := n.child(req.Name)
	full := n.fs.fullPath(child.relPath)

	file, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE|os.O_EXCL, req.Mode.Perm())
	if err != nil {
		return nil, nil, toFuseErrno(translateOSErr(err))
	}

	return child, &passthroughHandle{f: file}, nil
}

func (n *vnode) Rename(_ context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	if err := n.fs.writeRejected(n.relPath); err != nil {
		return err
	}

	dst, ok := newDir.(*vnode)
	if !ok {
		return toFuseErrno(errSystem(syscall.EXDEV))
	}

	if err := n.fs.writeRejected(dst.relPath); err != nil {
		return err
	}

	oldFull := n.fs.fullPath(n.child(req.OldName).relPath)
	newFull := n.fs.fullPath(dst.child(req.NewName).relPath)

	if err := os.Rename(oldFull, newFull); err != nil {
		return toFuseErrno(translateOSErr(err))
	}

	return nil
}

func (n *vnode) Symlink(_ context.Context, req *fuse.SymlinkRequest) (fs.Node, error) {
	if err := n.fs.writeRejected(n.relPath); err != nil {
		return nil, err
	}

	child := n.child(req.NewName)
	if err := os.Symlink(req.Target, n.fs.fullPath(child.relPath)); err != nil {
		return nil, toFuseErrno(translateOSErr(err))
	}

	return child, nil
}

func (n *vnode) Link(_ context.Context, req *fuse.LinkRequest, old fs.Node) (fs.Node, error) {
	if err := n.fs.writeRejected(n.relPath); err != nil {
		return nil, err
	}

	src, ok := old.(*vnode)
	if !ok {
		return nil, toFuseErrno(errSystem(syscall.EXDEV))
	}

	child := n.child(req.NewName)
	if err := os.Link(n.fs.fullPath(src.relPath), n.fs.fullPath(child.relPath)); err != nil {
		return nil, toFuseErrno(translateOSErr(err))
	}

	return child, nil
}

// Readlink passes through for real paths; an archive view never contains
// a symlink of its own (members are presented as regular files or
// directories only).
func (n *vnode) Readlink(_ context.Context, _ *fuse.ReadlinkRequest) (string, error) {
	full := n.fs.fullPath(n.relPath)

	if _, _, isArchive := split(full, n.fs.opts.MagicSuffix); isArchive {
		return "", toFuseErrno(errNotSupported(syscall.EINVAL))
	}

	target, err := os.Readlink(full)
	if err != nil {
		return "", toFuseErrno(translateOSErr(err))
	}

	return target, nil
}

func (n *vnode) Setattr(_ context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if err := n.fs.writeRejected(n.relPath); err != nil {
		return err
	}

	full := n.fs.fullPath(n.relPath)

	if req.Valid.Mode() {
		if err := os.Chmod(full, req.Mode); err != nil {
			return toFuseErrno(translateOSErr(err))
		}
	}

	if req.Valid.Size() {
		if err := os.Truncate(full, int64(req.Size)); err != nil { //nolint:gosec
			return toFuseErrno(translateOSErr(err))
		}
	}

	res, err := n.fs.getattr(n.relPath)
	if err != nil {
		return toFuseErrno(err)
	}

	resp.Attr.Inode = res.ino
	resp.Attr.Size = uint64(res.size) //nolint:gosec
	resp.Attr.Mtime = res.modTime

	return nil
}

// Statfs passes straight through to the backing directory's own
// filesystem, per spec.md's supplemented statfs passthrough.
func (f *FS) Statfs(_ context.Context, _ *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	var st unix.Statfs_t
	if err := unix.Statfs(f.opts.BackingDir, &st); err != nil {
		return toFuseErrno(translateOSErr(err))
	}

	resp.Blocks = st.Blocks
	resp.Bfree = st.Bfree
	resp.Bavail = st.Bavail
	resp.Files = st.Files
	resp.Ffree = st.Ffree
	resp.Bsize = uint32(st.Bsize)   //nolint:gosec
	resp.Namelen = uint32(st.Namelen) //nolint:gosec
	resp.Frsize = uint32(st.Frsize) //nolint:gosec

	return nil
}
