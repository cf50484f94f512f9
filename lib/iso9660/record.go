// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package iso9660

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// Directory record field offsets (ECMA-119 9.1).
const (
	recordExtentOffset     = 2
	recordSizeOffset       = 10
	recordTimeOffset       = 18
	recordFlagsOffset      = 25
	recordNameLengthOffset = 32
	recordNameOffset       = 33

	flagDirectory   = 0x02
	flagAssociated  = 0x04
	flagMultiExtent = 0x80
)

func parseRecord(record []byte) (Entry, error) {
	if len(record) < recordNameOffset || int(record[0]) < recordNameOffset {
		return Entry{}, fmt.Errorf("record length %d is shorter than the fixed header", len(record))
	}
	nameLength := int(record[recordNameLengthOffset])
	if recordNameOffset+nameLength > len(record) {
		return Entry{}, fmt.Errorf("identifier length %d overruns record of length %d", nameLength, len(record))
	}
	identifier := string(record[recordNameOffset : recordNameOffset+nameLength])

	var timestamp [7]byte
	copy(timestamp[:], record[recordTimeOffset:recordTimeOffset+7])

	return Entry{
		Name:       translateName(identifier),
		Size:       int64(binary.LittleEndian.Uint32(record[recordSizeOffset:])),
		Extent:     binary.LittleEndian.Uint32(record[recordExtentOffset:]),
		Dir:        record[recordFlagsOffset]&flagDirectory != 0,
		ModTime:    recordingTime(timestamp),
		identifier: identifier,
	}, nil
}

// recordingTime decodes the seven-byte directory record timestamp:
// years since 1900, month, day, hour, minute, second, and the offset
// from GMT in 15 minute intervals.
func recordingTime(field [7]byte) time.Time {
	if field == [7]byte{} {
		return time.Unix(0, 0).UTC()
	}
	offset := int(int8(field[6])) * 15 * 60
	zone := time.FixedZone("", offset)
	return time.Date(1900+int(field[0]), time.Month(field[1]), int(field[2]),
		int(field[3]), int(field[4]), int(field[5]), 0, zone).UTC()
}

func translateName(identifier string) string {
	switch identifier {
	case "\x00":
		return "."
	case "\x01":
		return ".."
	}
	name := identifier
	if index := strings.LastIndexByte(name, ';'); index >= 0 {
		name = name[:index]
	}
	name = strings.TrimSuffix(name, ".")
	return strings.ToLower(name)
}
