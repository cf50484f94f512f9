// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package iso9660

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"
)

// BlockSize is the logical block size of every image this package
// accepts. The standard permits others but no mastering tool emits them.
const BlockSize = 2048

const (
	systemAreaBlocks = 16

	// maxDescriptors bounds the descriptor scan so a corrupt image
	// without a terminator cannot make Open read the whole file.
	maxDescriptors = 64

	descriptorPrimary    = 1
	descriptorTerminator = 255

	standardIdentifier = "CD001"

	// Offsets within the primary volume descriptor.
	volumeIDOffset        = 40
	volumeIDLength        = 32
	volumeSpaceSizeOffset = 80
	logicalBlockOffset    = 128
	rootRecordOffset      = 156
	rootRecordLength      = 34
)

var (
	// ErrNotISO9660 is returned by Open when the file carries no valid
	// primary volume descriptor.
	ErrNotISO9660 = errors.New("not an ISO9660 image")

	// ErrNotFound is returned when a path does not name an entry.
	ErrNotFound = errors.New("no such entry")

	// ErrNotDirectory is returned by ReadDir for a file entry.
	ErrNotDirectory = errors.New("not a directory")

	// ErrShortRead is returned by ReadBlock when fewer bytes than the
	// requested blocks could be read.
	ErrShortRead = errors.New("short block read")
)

// Entry is the metadata the image records for one file or directory.
type Entry struct {
	// Name is the translated identifier. Empty for the root.
	Name string

	// Size is the byte length of the entry's extent as recorded.
	Size int64

	// Extent is the first logical block of the entry's data.
	Extent uint32

	// Dir is true for directories.
	Dir bool

	// ModTime is the single recording timestamp the format keeps.
	ModTime time.Time

	identifier string
}

// Image is an open ISO9660 image.
type Image struct {
	reader      io.ReaderAt
	closer      io.Closer
	root        Entry
	volumeID    string
	totalBlocks uint32
}

// Open opens the image file at path and reads its primary volume
// descriptor. The caller must Close the returned Image.
func Open(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image %s: %w", path, err)
	}
	image, err := NewImage(file, file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("reading image %s: %w", path, err)
	}
	return image, nil
}

// NewImage reads the volume descriptors from reader. closer, if
// non-nil, is closed by Image.Close.
func NewImage(reader io.ReaderAt, closer io.Closer) (*Image, error) {
	image := &Image{reader: reader, closer: closer}
	for index := uint32(systemAreaBlocks); index < systemAreaBlocks+maxDescriptors; index++ {
		block, err := image.ReadBlock(index, 1)
		if err != nil {
			return nil, fmt.Errorf("%w: volume descriptor at block %d: %v", ErrNotISO9660, index, err)
		}
		if string(block[1:6]) != standardIdentifier {
			return nil, fmt.Errorf("%w: bad standard identifier at block %d", ErrNotISO9660, index)
		}
		switch block[0] {
		case descriptorPrimary:
			if err := image.parsePrimary(block); err != nil {
				return nil, err
			}
			return image, nil
		case descriptorTerminator:
			return nil, fmt.Errorf("%w: no primary volume descriptor", ErrNotISO9660)
		}
	}
	return nil, fmt.Errorf("%w: volume descriptor set is not terminated", ErrNotISO9660)
}

func (i *Image) parsePrimary(block []byte) error {
	logicalBlockSize := binary.LittleEndian.Uint16(block[logicalBlockOffset:])
	if logicalBlockSize != BlockSize {
		return fmt.Errorf("%w: unsupported logical block size %d", ErrNotISO9660, logicalBlockSize)
	}
	i.totalBlocks = binary.LittleEndian.Uint32(block[volumeSpaceSizeOffset:])
	i.volumeID = strings.TrimRight(string(block[volumeIDOffset:volumeIDOffset+volumeIDLength]), " \x00")

	root, err := parseRecord(block[rootRecordOffset : rootRecordOffset+rootRecordLength])
	if err != nil {
		return fmt.Errorf("%w: root directory record: %v", ErrNotISO9660, err)
	}
	if !root.Dir {
		return fmt.Errorf("%w: root directory record is not a directory", ErrNotISO9660)
	}
	root.Name = ""
	root.identifier = ""
	i.root = root
	return nil
}

// VolumeID returns the volume identifier with padding removed.
func (i *Image) VolumeID() string {
	return i.volumeID
}

// TotalBlocks returns the volume space size in logical blocks.
func (i *Image) TotalBlocks() uint32 {
	return i.totalBlocks
}

// Root returns the root directory entry.
func (i *Image) Root() Entry {
	return i.root
}

// Stat returns the entry at name, a slash-separated path relative to
// the image root. Both "/" and "" name the root.
func (i *Image) Stat(name string) (Entry, error) {
	current := i.root
	for _, component := range splitPath(name) {
		if !current.Dir {
			return Entry{}, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		children, err := i.children(current)
		if err != nil {
			return Entry{}, err
		}
		found := false
		for _, child := range children {
			if child.Name == component || child.identifier == component {
				current = child
				found = true
				break
			}
		}
		if !found {
			return Entry{}, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
	}
	return current, nil
}

// ReadDir returns the children of the directory at name in the order
// their records appear in the image. The "." and ".." records are not
// included.
func (i *Image) ReadDir(name string) ([]Entry, error) {
	entry, err := i.Stat(name)
	if err != nil {
		return nil, err
	}
	if !entry.Dir {
		return nil, fmt.Errorf("%s: %w", name, ErrNotDirectory)
	}
	return i.children(entry)
}

// ReadBlock reads count consecutive logical blocks starting at block.
// A read that yields less than count full blocks returns the bytes it
// got along with an error wrapping ErrShortRead. A range outside the
// volume space is rejected with ErrShortRead before anything is read.
func (i *Image) ReadBlock(block uint32, count int) ([]byte, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: block %d: invalid block count %d", ErrShortRead, block, count)
	}
	// totalBlocks is zero only while the descriptors are being read.
	if i.totalBlocks != 0 && uint64(block)+uint64(count) > uint64(i.totalBlocks) {
		return nil, fmt.Errorf("%w: blocks %d+%d lie outside the %d-block volume",
			ErrShortRead, block, count, i.totalBlocks)
	}
	buffer := make([]byte, count*BlockSize)
	n, err := i.reader.ReadAt(buffer, int64(block)*BlockSize)
	if n == len(buffer) {
		return buffer, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return buffer[:n], fmt.Errorf("%w: block %d: got %d of %d bytes", ErrShortRead, block, n, len(buffer))
	}
	return buffer[:n], fmt.Errorf("%w: block %d: %w", ErrShortRead, block, err)
}

// Close releases the underlying container.
func (i *Image) Close() error {
	if i.closer == nil {
		return nil
	}
	return i.closer.Close()
}

func (i *Image) children(directory Entry) ([]Entry, error) {
	if !directory.Dir {
		return nil, ErrNotDirectory
	}
	if directory.Size == 0 {
		return nil, nil
	}
	blocks := int((directory.Size + BlockSize - 1) / BlockSize)
	data, err := i.ReadBlock(directory.Extent, blocks)
	if err != nil {
		return nil, fmt.Errorf("reading directory extent at block %d: %w", directory.Extent, err)
	}
	data = data[:directory.Size]

	var entries []Entry
	// A file too large for one record is split over consecutive records
	// with the same identifier; all but the last carry flagMultiExtent.
	// extending indexes the entry still open for continuation records.
	extending, contiguous := -1, false
	for offset := 0; offset < len(data); {
		length := int(data[offset])
		if length == 0 {
			offset = (offset/BlockSize + 1) * BlockSize
			continue
		}
		if offset+length > len(data) {
			return nil, fmt.Errorf("directory record at block %d offset %d overruns the extent",
				directory.Extent, offset)
		}
		record := data[offset : offset+length]
		offset += length

		entry, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("directory record in block %d: %w", directory.Extent, err)
		}
		if entry.identifier == "\x00" || entry.identifier == "\x01" {
			continue
		}
		if record[recordFlagsOffset]&flagAssociated != 0 {
			continue
		}
		more := record[recordFlagsOffset]&flagMultiExtent != 0

		if extending >= 0 && entries[extending].identifier == entry.identifier {
			first := &entries[extending]
			// Reads assume one run of blocks, so the file ends at the
			// first section that does not directly follow the last.
			if contiguous && first.Size%BlockSize == 0 &&
				uint64(first.Extent)+uint64(first.Size/BlockSize) == uint64(entry.Extent) {
				first.Size += entry.Size
			} else {
				contiguous = false
			}
			if !more {
				extending = -1
			}
			continue
		}

		entries = append(entries, entry)
		extending, contiguous = -1, false
		if more {
			extending, contiguous = len(entries)-1, true
		}
	}
	return entries, nil
}

func splitPath(name string) []string {
	cleaned := strings.Trim(path.Clean("/"+name), "/")
	if cleaned == "" {
		return nil
	}
	return strings.Split(cleaned, "/")
}
