// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package iso9660_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rn/iso9660wrap"

	"github.com/isomount/isomount/lib/iso9660"
	"github.com/isomount/isomount/lib/iso9660/isotest"
)

func openBuilt(t *testing.T, builder *isotest.Builder) *iso9660.Image {
	t.Helper()
	image, err := iso9660.Open(isotest.Write(t, builder, "test.iso"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { image.Close() })
	return image
}

func TestOpenReadsPrimaryDescriptor(t *testing.T) {
	builder := isotest.NewBuilder()
	builder.VolumeID = "INSTALL_DISC"
	builder.AddFile("readme.txt", []byte("hello"))
	image := openBuilt(t, builder)

	if got := image.VolumeID(); got != "INSTALL_DISC" {
		t.Errorf("VolumeID = %q, want INSTALL_DISC", got)
	}
	if image.TotalBlocks() == 0 {
		t.Error("TotalBlocks = 0")
	}
	root := image.Root()
	if !root.Dir {
		t.Error("root entry is not a directory")
	}
	if root.Name != "" {
		t.Errorf("root Name = %q, want empty", root.Name)
	}
}

func TestOpenRejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.bin")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x5a}, 40*iso9660.BlockSize), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := iso9660.Open(path)
	if !errors.Is(err, iso9660.ErrNotISO9660) {
		t.Fatalf("Open error = %v, want ErrNotISO9660", err)
	}
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.iso")
	if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := iso9660.Open(path)
	if !errors.Is(err, iso9660.ErrNotISO9660) {
		t.Fatalf("Open error = %v, want ErrNotISO9660", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := iso9660.Open(filepath.Join(t.TempDir(), "absent.iso"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Open error = %v, want os.ErrNotExist", err)
	}
}

func TestStatNestedPaths(t *testing.T) {
	modTime := time.Date(2019, time.November, 2, 8, 15, 0, 0, time.UTC)
	builder := isotest.NewBuilder()
	builder.AddFileAt("boot/grub/grub.cfg", []byte("set timeout=5\n"), modTime)
	builder.AddDir("docs")
	image := openBuilt(t, builder)

	entry, err := image.Stat("/boot/grub/grub.cfg")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if entry.Dir {
		t.Error("grub.cfg reported as directory")
	}
	if entry.Name != "grub.cfg" {
		t.Errorf("Name = %q, want grub.cfg", entry.Name)
	}
	if entry.Size != int64(len("set timeout=5\n")) {
		t.Errorf("Size = %d", entry.Size)
	}
	if !entry.ModTime.Equal(modTime) {
		t.Errorf("ModTime = %v, want %v", entry.ModTime, modTime)
	}

	for _, path := range []string{"boot", "/boot/grub", "boot/grub/", "docs", "/", ""} {
		entry, err := image.Stat(path)
		if err != nil {
			t.Errorf("Stat(%q): %v", path, err)
			continue
		}
		if !entry.Dir {
			t.Errorf("Stat(%q) is not a directory", path)
		}
	}
}

func TestStatAcceptsRawIdentifier(t *testing.T) {
	builder := isotest.NewBuilder()
	builder.AddFile("readme.txt", []byte("x"))
	image := openBuilt(t, builder)

	for _, name := range []string{"readme.txt", "README.TXT;1"} {
		if _, err := image.Stat(name); err != nil {
			t.Errorf("Stat(%q): %v", name, err)
		}
	}
}

func TestStatNotFound(t *testing.T) {
	builder := isotest.NewBuilder()
	builder.AddFile("a/b.txt", []byte("x"))
	image := openBuilt(t, builder)

	for _, path := range []string{"missing", "a/missing", "a/b.txt/below"} {
		_, err := image.Stat(path)
		if !errors.Is(err, iso9660.ErrNotFound) {
			t.Errorf("Stat(%q) error = %v, want ErrNotFound", path, err)
		}
	}
}

func TestReadDirPreservesRecordOrder(t *testing.T) {
	builder := isotest.NewBuilder()
	builder.AddFile("zeta.txt", []byte("z"))
	builder.AddDir("alpha")
	builder.AddFile("mid.dat", []byte("m"))
	image := openBuilt(t, builder)

	entries, err := image.ReadDir("/")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	if got, want := strings.Join(names, ","), "zeta.txt,alpha,mid.dat"; got != want {
		t.Errorf("ReadDir names = %s, want %s", got, want)
	}
	if !entries[1].Dir {
		t.Error("alpha is not reported as a directory")
	}
}

func TestReadDirSpanningBlocks(t *testing.T) {
	builder := isotest.NewBuilder()
	const count = 120
	for index := 0; index < count; index++ {
		builder.AddFile("many/"+strings.Repeat("f", 20)+string(rune('a'+index%26))+strings.Repeat("x", index/26)+".txt", []byte{byte(index)})
	}
	image := openBuilt(t, builder)

	entries, err := image.ReadDir("many")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != count {
		t.Fatalf("ReadDir returned %d entries, want %d", len(entries), count)
	}
	for _, entry := range entries {
		if _, err := image.Stat("many/" + entry.Name); err != nil {
			t.Errorf("Stat(%q): %v", entry.Name, err)
		}
	}
}

func TestReadDirOnFile(t *testing.T) {
	builder := isotest.NewBuilder()
	builder.AddFile("file.txt", []byte("x"))
	image := openBuilt(t, builder)

	_, err := image.ReadDir("file.txt")
	if !errors.Is(err, iso9660.ErrNotDirectory) {
		t.Fatalf("ReadDir error = %v, want ErrNotDirectory", err)
	}
}

func TestReadBlockReturnsFileData(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 500)
	builder := isotest.NewBuilder()
	builder.AddFile("data.bin", content)
	image := openBuilt(t, builder)

	entry, err := image.Stat("data.bin")
	if err != nil {
		t.Fatal(err)
	}
	data, err := image.ReadBlock(entry.Extent, 3)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if len(data) != 3*iso9660.BlockSize {
		t.Fatalf("ReadBlock returned %d bytes", len(data))
	}
	if !bytes.Equal(data[:len(content)], content) {
		t.Error("ReadBlock content does not match the file")
	}
}

func TestReadBlockPastEnd(t *testing.T) {
	builder := isotest.NewBuilder()
	builder.AddFile("data.bin", []byte("x"))
	image := openBuilt(t, builder)

	_, err := image.ReadBlock(image.TotalBlocks(), 1)
	if !errors.Is(err, iso9660.ErrShortRead) {
		t.Fatalf("ReadBlock error = %v, want ErrShortRead", err)
	}
}

// A root record claiming a directory far larger than the volume is
// rejected before the extent is read.
func TestOversizedDirectoryRejected(t *testing.T) {
	builder := isotest.NewBuilder()
	builder.AddFile("a.txt", []byte("a"))
	data := builder.Bytes()

	sizeField := 16*iso9660.BlockSize + 156 + 10
	binary.LittleEndian.PutUint32(data[sizeField:], 0xFFFFF800)
	binary.BigEndian.PutUint32(data[sizeField+4:], 0xFFFFF800)

	image, err := iso9660.NewImage(bytes.NewReader(data), nil)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err = image.Stat("/a.txt")
	runtime.ReadMemStats(&after)

	if !errors.Is(err, iso9660.ErrShortRead) {
		t.Fatalf("Stat error = %v, want ErrShortRead", err)
	}
	if allocated := after.TotalAlloc - before.TotalAlloc; allocated > 1<<20 {
		t.Errorf("Stat allocated %d bytes for a corrupt directory", allocated)
	}
	if _, err := image.ReadDir("/"); !errors.Is(err, iso9660.ErrShortRead) {
		t.Errorf("ReadDir error = %v, want ErrShortRead", err)
	}
}

// TestThirdPartyWriter checks the reader against an image produced by
// an independent writer.
func TestThirdPartyWriter(t *testing.T) {
	content := bytes.Repeat([]byte("isomount "), 700)
	var buffer bytes.Buffer
	if err := iso9660wrap.WriteBuffer(&buffer, content, "PAYLOAD.BIN"); err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}
	if remainder := buffer.Len() % iso9660.BlockSize; remainder != 0 {
		buffer.Write(make([]byte, iso9660.BlockSize-remainder))
	}

	image, err := iso9660.NewImage(bytes.NewReader(buffer.Bytes()), nil)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	defer image.Close()

	entries, err := image.ReadDir("")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "payload.bin" {
		t.Fatalf("root entries = %+v, want one payload.bin", entries)
	}
	entry := entries[0]
	if entry.Size != int64(len(content)) {
		t.Fatalf("Size = %d, want %d", entry.Size, len(content))
	}
	blocks := int((entry.Size + iso9660.BlockSize - 1) / iso9660.BlockSize)
	data, err := image.ReadBlock(entry.Extent, blocks)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(data[:entry.Size], content) {
		t.Error("payload content mismatch")
	}
}
