// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package isofs

import (
	"context"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Root returns the node for the image's root directory, to be passed
// to gofuse.Mount.
func (a *Adapter) Root() gofuse.InodeEmbedder {
	return &dirNode{adapter: a, path: "/"}
}

// errno converts err for the kernel, logging anything that is not an
// expected per-request condition.
func (a *Adapter) errno(operation, path string, err error) syscall.Errno {
	errno := Errno(err)
	if errno == syscall.EIO {
		a.logger.Error(operation+" failed", "path", path, "error", err)
	} else {
		a.logger.Debug(operation+" rejected", "path", path, "error", err)
	}
	return errno
}

func fillAttr(out *fuse.Attr, attributes Attributes) {
	out.Mode = attributes.Mode
	out.Nlink = attributes.Nlink
	out.Uid = attributes.UID
	out.Gid = attributes.GID
	out.Size = uint64(attributes.Size)
	out.Blocks = (out.Size + 511) / 512
	out.Blksize = 2048
	out.SetTimes(&attributes.Atime, &attributes.Mtime, &attributes.Ctime)
}

// newChild builds the inode for an entry found by Lookup.
func (a *Adapter) newChild(ctx context.Context, parent *gofuse.Inode, path string, attributes Attributes) *gofuse.Inode {
	if attributes.IsDir() {
		return parent.NewInode(ctx, &dirNode{adapter: a, path: path}, gofuse.StableAttr{Mode: syscall.S_IFDIR})
	}
	return parent.NewInode(ctx, &fileNode{adapter: a, path: path}, gofuse.StableAttr{Mode: syscall.S_IFREG})
}

// dirNode is a directory inside the image.
type dirNode struct {
	gofuse.Inode
	adapter *Adapter
	path    string
}

var _ gofuse.InodeEmbedder = (*dirNode)(nil)
var _ gofuse.NodeLookuper = (*dirNode)(nil)
var _ gofuse.NodeGetattrer = (*dirNode)(nil)
var _ gofuse.NodeReaddirer = (*dirNode)(nil)
var _ gofuse.NodeStatfser = (*dirNode)(nil)

func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	path := childPath(d.path, name)
	attributes, err := d.adapter.GetAttributes(path)
	if err != nil {
		return nil, d.adapter.errno("lookup", path, err)
	}
	fillAttr(&out.Attr, attributes)
	return d.adapter.newChild(ctx, d.EmbeddedInode(), path, attributes), 0
}

func (d *dirNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attributes, err := d.adapter.GetAttributes(d.path)
	if err != nil {
		return d.adapter.errno("getattr", d.path, err)
	}
	fillAttr(&out.Attr, attributes)
	return 0
}

func (d *dirNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	handle, err := d.adapter.OpenDirectory(d.path)
	if err != nil {
		return nil, d.adapter.errno("opendir", d.path, err)
	}
	stream := &dirStream{adapter: d.adapter, handle: handle, path: d.path}
	err = d.adapter.ReadDirectory(handle, func(entry DirEntry) bool {
		mode := uint32(syscall.S_IFREG)
		if entry.Dir {
			mode = syscall.S_IFDIR
		}
		stream.entries = append(stream.entries, fuse.DirEntry{Name: entry.Name, Mode: mode})
		return true
	})
	if err != nil {
		stream.Close()
		return nil, d.adapter.errno("readdir", d.path, err)
	}
	return stream, 0
}

func (d *dirNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	statfs, err := d.adapter.Statfs()
	if err != nil {
		return d.adapter.errno("statfs", d.path, err)
	}
	out.Bsize = statfs.BlockSize
	out.Frsize = statfs.BlockSize
	out.Blocks = statfs.TotalBlocks
	out.NameLen = statfs.NameLength
	return 0
}

// dirStream serves one directory snapshot and releases its handle on
// Close.
type dirStream struct {
	adapter *Adapter
	handle  DirHandle
	path    string
	entries []fuse.DirEntry
	index   int
	closed  bool
}

func (s *dirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *dirStream) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.adapter.ReleaseDirectory(s.handle); err != nil {
		s.adapter.logger.Warn("releasing directory handle", "path", s.path, "error", err)
	}
}

// fileNode is a regular file inside the image.
type fileNode struct {
	gofuse.Inode
	adapter *Adapter
	path    string
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)

func (f *fileNode) Getattr(ctx context.Context, fh gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attributes, err := f.adapter.GetAttributes(f.path)
	if err != nil {
		return f.adapter.errno("getattr", f.path, err)
	}
	fillAttr(&out.Attr, attributes)
	return 0
}

func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC) != 0 {
		return nil, 0, f.adapter.errno("open", f.path, ErrReadOnly)
	}
	handle, err := f.adapter.OpenFile(f.path)
	if err != nil {
		return nil, 0, f.adapter.errno("open", f.path, err)
	}
	// Image content never changes while mounted.
	return &fileHandle{adapter: f.adapter, handle: handle, path: f.path}, fuse.FOPEN_KEEP_CACHE, 0
}

// fileHandle is the go-fuse handle for one OpenFile.
type fileHandle struct {
	adapter *Adapter
	handle  FileHandle
	path    string
}

var _ gofuse.FileReader = (*fileHandle)(nil)
var _ gofuse.FileReleaser = (*fileHandle)(nil)

func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := h.adapter.Read(h.handle, dest, off)
	if err != nil {
		return nil, h.adapter.errno("read", h.path, err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	if err := h.adapter.Release(h.handle); err != nil {
		return h.adapter.errno("release", h.path, err)
	}
	return 0
}
