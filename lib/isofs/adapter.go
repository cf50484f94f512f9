// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package isofs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sync"
	"syscall"
	"time"

	"github.com/isomount/isomount/lib/iso9660"
)

// Default permission bits for exposed entries.
const (
	DefaultFileMode = 0o444
	DefaultDirMode  = 0o555
)

// Phase is the lifecycle state of a session.
type Phase int

const (
	// NotMounted is the initial phase, before Initialize.
	NotMounted Phase = iota

	// Mounted means the image is open and requests are served.
	Mounted

	// Unmounted is terminal: Destroy closed the image.
	Unmounted

	// Failed is terminal: Initialize could not open the image.
	Failed
)

func (p Phase) String() string {
	switch p {
	case NotMounted:
		return "not mounted"
	case Mounted:
		return "mounted"
	case Unmounted:
		return "unmounted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Image is the view of an ISO9660 image the adapter needs.
// *iso9660.Image satisfies it.
type Image interface {
	Stat(name string) (iso9660.Entry, error)
	ReadDir(name string) ([]iso9660.Entry, error)
	ReadBlock(block uint32, count int) ([]byte, error)
	TotalBlocks() uint32
	io.Closer
}

// Session is the state shared read-only by every request of one mount.
type Session struct {
	// ImagePath is the absolute path of the image file.
	ImagePath string

	// MountpointOwned is true when this process created the
	// mountpoint and must remove it at shutdown. Decided once before
	// the session starts.
	MountpointOwned bool

	// FileMode and DirMode are the permission bits given to every
	// file and directory. Umask bits are cleared from both.
	FileMode uint32
	DirMode  uint32
	Umask    uint32

	// UID and GID own every entry.
	UID uint32
	GID uint32
}

// NewSession returns a session for imagePath with default modes and
// the calling process's identity.
func NewSession(imagePath string, mountpointOwned bool) Session {
	return Session{
		ImagePath:       imagePath,
		MountpointOwned: mountpointOwned,
		FileMode:        DefaultFileMode,
		DirMode:         DefaultDirMode,
		UID:             uint32(os.Getuid()),
		GID:             uint32(os.Getgid()),
	}
}

// Options configures an Adapter.
type Options struct {
	// Open opens the session's image. If nil, the file is opened with
	// iso9660.Open.
	Open func(path string) (Image, error)

	// Logger receives diagnostic messages. If nil, a logger that
	// discards everything is used.
	Logger *slog.Logger
}

// Attributes is the POSIX view of one entry.
type Attributes struct {
	// Mode holds the file type bits and the permission bits.
	Mode  uint32
	Nlink uint32
	UID   uint32
	GID   uint32
	Size  int64

	// The image records a single timestamp; all three are equal.
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// IsDir reports whether the attributes describe a directory.
func (a Attributes) IsDir() bool {
	return a.Mode&syscall.S_IFMT == syscall.S_IFDIR
}

// DirEntry is one name emitted by ReadDirectory.
type DirEntry struct {
	Name string
	Dir  bool
}

// Statfs describes the filesystem as a whole.
type Statfs struct {
	BlockSize   uint32
	TotalBlocks uint64
	NameLength  uint32
}

// Adapter translates filesystem requests into image lookups and block
// reads for one session.
type Adapter struct {
	session Session
	open    func(string) (Image, error)
	logger  *slog.Logger

	mu    sync.RWMutex
	phase Phase
	image Image

	handles *handleTable
}

// New returns an adapter in the NotMounted phase.
func New(session Session, options Options) *Adapter {
	if options.Open == nil {
		options.Open = func(path string) (Image, error) {
			return iso9660.Open(path)
		}
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		session: session,
		open:    options.Open,
		logger:  options.Logger,
		handles: newHandleTable(),
	}
}

// Phase returns the current lifecycle phase.
func (a *Adapter) Phase() Phase {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.phase
}

// FsName is the source name shown in the mount table.
func (a *Adapter) FsName() string {
	return a.session.ImagePath
}

// Initialize opens the image. It moves the phase from NotMounted to
// Mounted, or to Failed if the image cannot be opened.
func (a *Adapter) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != NotMounted {
		return fmt.Errorf("initialize in phase %s", a.phase)
	}
	image, err := a.open(a.session.ImagePath)
	if err != nil {
		a.phase = Failed
		return fmt.Errorf("opening image %s: %w", a.session.ImagePath, err)
	}
	a.image = image
	a.phase = Mounted
	a.logger.Debug("image opened", "image", a.session.ImagePath, "blocks", image.TotalBlocks())
	return nil
}

// Destroy closes the image and moves the phase from Mounted to
// Unmounted. Failed is left as is. Open handles are discarded.
func (a *Adapter) Destroy() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != Mounted {
		return nil
	}
	a.phase = Unmounted
	if open := a.handles.reset(); open > 0 {
		a.logger.Debug("discarding open handles at destroy", "count", open)
	}
	err := a.image.Close()
	a.image = nil
	if err != nil {
		return fmt.Errorf("closing image %s: %w", a.session.ImagePath, err)
	}
	return nil
}

// mounted returns the open image, or ErrNotMounted outside the
// Mounted phase.
func (a *Adapter) mounted() (Image, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.phase != Mounted {
		return nil, fmt.Errorf("%w (phase %s)", ErrNotMounted, a.phase)
	}
	return a.image, nil
}

// GetAttributes returns the attributes of the entry at name.
func (a *Adapter) GetAttributes(name string) (Attributes, error) {
	image, err := a.mounted()
	if err != nil {
		return Attributes{}, err
	}
	entry, err := image.Stat(name)
	if err != nil {
		return Attributes{}, imageError(name, err)
	}
	return a.attributes(entry), nil
}

func (a *Adapter) attributes(entry iso9660.Entry) Attributes {
	mode := syscall.S_IFREG | a.session.FileMode&^a.session.Umask
	if entry.Dir {
		mode = syscall.S_IFDIR | a.session.DirMode&^a.session.Umask
	}
	return Attributes{
		Mode:  mode,
		Nlink: 1,
		UID:   a.session.UID,
		GID:   a.session.GID,
		Size:  entry.Size,
		Atime: entry.ModTime,
		Mtime: entry.ModTime,
		Ctime: entry.ModTime,
	}
}

// OpenDirectory snapshots the children of the directory at name.
// The handle must be released with ReleaseDirectory.
func (a *Adapter) OpenDirectory(name string) (DirHandle, error) {
	image, err := a.mounted()
	if err != nil {
		return 0, err
	}
	entry, err := image.Stat(name)
	if err != nil {
		return 0, imageError(name, err)
	}
	if !entry.Dir {
		return 0, fmt.Errorf("%s: %w", name, ErrNotDirectory)
	}
	children, err := image.ReadDir(name)
	if err != nil {
		return 0, imageError(name, err)
	}
	return a.handles.addDirectory(&openDirectory{path: name, entries: children}), nil
}

// ReadDirectory emits the snapshot taken by OpenDirectory in image
// order. Enumeration stops without error when emit returns false.
// Every call starts from the first entry.
func (a *Adapter) ReadDirectory(handle DirHandle, emit func(DirEntry) bool) error {
	directory, err := a.handles.directory(handle)
	if err != nil {
		return err
	}
	for _, entry := range directory.entries {
		if !emit(DirEntry{Name: entry.Name, Dir: entry.Dir}) {
			return nil
		}
	}
	return nil
}

// ReleaseDirectory frees a directory handle.
func (a *Adapter) ReleaseDirectory(handle DirHandle) error {
	return a.handles.removeDirectory(handle)
}

// OpenFile captures the metadata of the file at name for later reads.
// The handle must be released with Release.
func (a *Adapter) OpenFile(name string) (FileHandle, error) {
	image, err := a.mounted()
	if err != nil {
		return 0, err
	}
	entry, err := image.Stat(name)
	if err != nil {
		return 0, imageError(name, err)
	}
	if entry.Dir {
		return 0, fmt.Errorf("%s: %w", name, ErrIsDirectory)
	}
	return a.handles.addFile(&openFile{path: name, entry: entry}), nil
}

// Read copies file content starting at offset into dest and returns
// the number of bytes copied. Fewer than len(dest) bytes are returned
// only at end of file. A failed block fetch returns ErrIO and no data.
func (a *Adapter) Read(handle FileHandle, dest []byte, offset int64) (int, error) {
	file, err := a.handles.file(handle)
	if err != nil {
		return 0, err
	}
	image, err := a.mounted()
	if err != nil {
		return 0, err
	}
	n, err := readExtent(image, file.entry, dest, offset)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", file.path, err)
	}
	return n, nil
}

// Release frees a file handle.
func (a *Adapter) Release(handle FileHandle) error {
	return a.handles.removeFile(handle)
}

// Statfs reports the filesystem geometry.
func (a *Adapter) Statfs() (Statfs, error) {
	image, err := a.mounted()
	if err != nil {
		return Statfs{}, err
	}
	return Statfs{
		BlockSize:   iso9660.BlockSize,
		TotalBlocks: uint64(image.TotalBlocks()),
		NameLength:  255,
	}, nil
}

// childPath joins a directory path and an entry name.
func childPath(directory, name string) string {
	return path.Join(directory, name)
}

// OpenHandles returns the number of directory and file handles that
// have not been released.
func (a *Adapter) OpenHandles() int {
	return a.handles.open()
}
