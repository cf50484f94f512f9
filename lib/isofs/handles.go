// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package isofs

import (
	"fmt"
	"sync"

	"github.com/isomount/isomount/lib/iso9660"
)

// DirHandle identifies a directory opened with OpenDirectory.
type DirHandle uint64

// FileHandle identifies a file opened with OpenFile.
type FileHandle uint64

type openDirectory struct {
	path    string
	entries []iso9660.Entry
}

type openFile struct {
	path  string
	entry iso9660.Entry
}

// handleTable issues handles and resolves them to their state. Handle
// numbers start at 1 and are never reused within a session, so a
// released handle can never alias a later one.
type handleTable struct {
	mu          sync.Mutex
	next        uint64
	directories map[DirHandle]*openDirectory
	files       map[FileHandle]*openFile
}

func newHandleTable() *handleTable {
	return &handleTable{
		directories: make(map[DirHandle]*openDirectory),
		files:       make(map[FileHandle]*openFile),
	}
}

func (t *handleTable) addDirectory(directory *openDirectory) DirHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	handle := DirHandle(t.next)
	t.directories[handle] = directory
	return handle
}

func (t *handleTable) directory(handle DirHandle) (*openDirectory, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	directory, ok := t.directories[handle]
	if !ok {
		return nil, fmt.Errorf("directory handle %d: %w", handle, ErrBadHandle)
	}
	return directory, nil
}

func (t *handleTable) removeDirectory(handle DirHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.directories[handle]; !ok {
		return fmt.Errorf("directory handle %d: %w", handle, ErrBadHandle)
	}
	delete(t.directories, handle)
	return nil
}

func (t *handleTable) addFile(file *openFile) FileHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	handle := FileHandle(t.next)
	t.files[handle] = file
	return handle
}

func (t *handleTable) file(handle FileHandle) (*openFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	file, ok := t.files[handle]
	if !ok {
		return nil, fmt.Errorf("file handle %d: %w", handle, ErrBadHandle)
	}
	return file, nil
}

func (t *handleTable) removeFile(handle FileHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.files[handle]; !ok {
		return fmt.Errorf("file handle %d: %w", handle, ErrBadHandle)
	}
	delete(t.files, handle)
	return nil
}

// open returns the number of outstanding handles.
func (t *handleTable) open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.directories) + len(t.files)
}

// reset drops every outstanding handle and returns how many there were.
func (t *handleTable) reset() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := len(t.directories) + len(t.files)
	clear(t.directories)
	clear(t.files)
	return count
}
