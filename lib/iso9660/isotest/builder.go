// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

// Package isotest builds small ISO9660 images in memory for tests.
//
// The builder lays out the primary volume descriptor, the set
// terminator, every directory extent, and then every file extent in
// insertion order. Directory records are written in insertion order
// too, so tests can assert on enumeration order. Names are given in
// their translated (lowercase) form; files are recorded as
// "NAME.EXT;1" and directories as "NAME", matching what mastering
// tools produce.
package isotest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// BlockSize matches iso9660.BlockSize. Duplicated so the builder has
// no dependency on the package under test.
const BlockSize = 2048

// DefaultTime is the recording time given to entries added without
// an explicit one.
var DefaultTime = time.Date(2024, time.March, 9, 14, 30, 15, 0, time.UTC)

// Builder accumulates a directory tree and serializes it as an image.
type Builder struct {
	// VolumeID is written into the primary volume descriptor.
	VolumeID string

	root *node
}

type node struct {
	name     string
	dir      bool
	data     []byte
	modTime  time.Time
	parent   *node
	children []*node

	extent uint32
	size   uint32
}

// NewBuilder returns a builder holding an empty root directory.
func NewBuilder() *Builder {
	root := &node{dir: true, modTime: DefaultTime}
	root.parent = root
	return &Builder{VolumeID: "ISOTEST", root: root}
}

// AddDir adds an empty directory at path, creating missing parents.
func (b *Builder) AddDir(path string) *Builder {
	b.lookup(path, true)
	return b
}

// AddFile adds a file at path with the given content, creating
// missing parent directories.
func (b *Builder) AddFile(path string, data []byte) *Builder {
	return b.AddFileAt(path, data, DefaultTime)
}

// AddFileAt is AddFile with an explicit recording time.
func (b *Builder) AddFileAt(path string, data []byte, modTime time.Time) *Builder {
	directory, name := filepath.Split(strings.Trim(path, "/"))
	parent := b.lookup(directory, true)
	parent.children = append(parent.children, &node{
		name:    name,
		data:    data,
		modTime: modTime,
		parent:  parent,
	})
	return b
}

func (b *Builder) lookup(path string, create bool) *node {
	current := b.root
	for _, component := range strings.Split(strings.Trim(path, "/"), "/") {
		if component == "" {
			continue
		}
		var next *node
		for _, child := range current.children {
			if child.dir && child.name == component {
				next = child
				break
			}
		}
		if next == nil {
			if !create {
				return nil
			}
			next = &node{name: component, dir: true, modTime: DefaultTime, parent: current}
			current.children = append(current.children, next)
		}
		current = next
	}
	return current
}

// Bytes serializes the tree.
func (b *Builder) Bytes() []byte {
	directories := b.directories()

	// Blocks 16 and 17 hold the primary descriptor and terminator.
	next := uint32(18)
	for _, directory := range directories {
		directory.size = directorySize(directory)
		directory.extent = next
		next += directory.size / BlockSize
	}
	var files []*node
	for _, directory := range directories {
		for _, child := range directory.children {
			if child.dir {
				continue
			}
			child.size = uint32(len(child.data))
			child.extent = next
			next += (child.size + BlockSize - 1) / BlockSize
			files = append(files, child)
		}
	}

	image := make([]byte, int(next)*BlockSize)
	b.writePrimary(image[16*BlockSize:], next)
	writeTerminator(image[17*BlockSize:])
	for _, directory := range directories {
		writeDirectory(image[int(directory.extent)*BlockSize:], directory)
	}
	for _, file := range files {
		copy(image[int(file.extent)*BlockSize:], file.data)
	}
	return image
}

// Write serializes the tree into a file under t.TempDir and returns
// its path.
func Write(t testing.TB, b *Builder, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("writing test image: %v", err)
	}
	return path
}

func (b *Builder) directories() []*node {
	queue := []*node{b.root}
	var ordered []*node
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, current)
		for _, child := range current.children {
			if child.dir {
				queue = append(queue, child)
			}
		}
	}
	return ordered
}

func identifier(n *node) string {
	if n.dir {
		return strings.ToUpper(n.name)
	}
	return strings.ToUpper(n.name) + ";1"
}

func recordLength(identifierLength int) int {
	length := 33 + identifierLength
	if length%2 != 0 {
		length++
	}
	return length
}

// directorySize returns the extent size in bytes, a whole number of
// blocks since records may not cross a block boundary.
func directorySize(directory *node) uint32 {
	used := 2 * recordLength(1)
	blocks := 1
	for _, child := range directory.children {
		length := recordLength(len(identifier(child)))
		if used+length > BlockSize {
			blocks++
			used = 0
		}
		used += length
	}
	return uint32(blocks * BlockSize)
}

func writeDirectory(extent []byte, directory *node) {
	offset := writeRecord(extent, "\x00", directory.extent, directory.size, true, directory.modTime)
	offset += writeRecord(extent[offset:], "\x01", directory.parent.extent, directory.parent.size, true, directory.parent.modTime)
	for _, child := range directory.children {
		name := identifier(child)
		length := recordLength(len(name))
		if offset%BlockSize+length > BlockSize {
			offset = (offset/BlockSize + 1) * BlockSize
		}
		offset += writeRecord(extent[offset:], name, child.extent, child.size, child.dir, child.modTime)
	}
}

func writeRecord(out []byte, name string, extent, size uint32, dir bool, modTime time.Time) int {
	length := recordLength(len(name))
	out[0] = byte(length)
	putBothEndian32(out[2:], extent)
	putBothEndian32(out[10:], size)
	writeRecordingTime(out[18:25], modTime)
	if dir {
		out[25] = 0x02
	}
	putBothEndian16(out[28:], 1)
	out[32] = byte(len(name))
	copy(out[33:], name)
	return length
}

func (b *Builder) writePrimary(out []byte, totalBlocks uint32) {
	out[0] = 1
	copy(out[1:6], "CD001")
	out[6] = 1
	volumeID := []byte(strings.Repeat(" ", 32))
	copy(volumeID, b.VolumeID)
	copy(out[40:72], volumeID)
	putBothEndian32(out[80:], totalBlocks)
	putBothEndian16(out[120:], 1)
	putBothEndian16(out[124:], 1)
	putBothEndian16(out[128:], BlockSize)
	writeRecord(out[156:190], "\x00", b.root.extent, b.root.size, true, b.root.modTime)
	out[881] = 1
}

func writeTerminator(out []byte) {
	out[0] = 255
	copy(out[1:6], "CD001")
	out[6] = 1
}

func writeRecordingTime(out []byte, t time.Time) {
	t = t.UTC()
	out[0] = byte(t.Year() - 1900)
	out[1] = byte(t.Month())
	out[2] = byte(t.Day())
	out[3] = byte(t.Hour())
	out[4] = byte(t.Minute())
	out[5] = byte(t.Second())
	out[6] = 0
}

func putBothEndian32(out []byte, value uint32) {
	binary.LittleEndian.PutUint32(out[0:], value)
	binary.BigEndian.PutUint32(out[4:], value)
}

func putBothEndian16(out []byte, value uint16) {
	binary.LittleEndian.PutUint16(out[0:], value)
	binary.BigEndian.PutUint16(out[2:], value)
}
