// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package isofs

import (
	"fmt"

	"github.com/isomount/isomount/lib/iso9660"
)

// blockReader fetches logical blocks from an image.
type blockReader interface {
	ReadBlock(block uint32, count int) ([]byte, error)
}

// readExtent copies up to len(dest) bytes of the file described by
// entry, starting at offset, into dest. The read is clamped to the
// file size. Blocks are fetched one at a time; a block that comes back
// short fails the whole read and nothing is returned.
func readExtent(image blockReader, entry iso9660.Entry, dest []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("offset %d: %w", offset, ErrInvalid)
	}
	if offset >= entry.Size || len(dest) == 0 {
		return 0, nil
	}

	length := len(dest)
	if remaining := entry.Size - offset; int64(length) > remaining {
		length = int(remaining)
	}

	firstBlock := uint32(offset / iso9660.BlockSize)
	intraBlock := int(offset % iso9660.BlockSize)
	blocks := blockCount(length, intraBlock)

	copied := 0
	for index := 0; index < blocks; index++ {
		block := entry.Extent + firstBlock + uint32(index)
		data, err := image.ReadBlock(block, 1)
		if err != nil {
			return 0, fmt.Errorf("%w: block %d at file offset %d: %w", ErrIO, block, offset, err)
		}
		if len(data) < iso9660.BlockSize {
			return 0, fmt.Errorf("%w: block %d returned %d bytes", ErrIO, block, len(data))
		}
		start := 0
		if index == 0 {
			start = intraBlock
		}
		copied += copy(dest[copied:length], data[start:])
	}
	return copied, nil
}

// blockCount is the number of blocks spanned by length bytes starting
// intraBlock bytes into the first block.
func blockCount(length, intraBlock int) int {
	return (length + intraBlock + iso9660.BlockSize - 1) / iso9660.BlockSize
}
