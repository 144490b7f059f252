package test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Segment is one PT_LOAD entry of a synthetic executable.
type Segment struct {
	Vaddr uint64
	Data  []byte
	// Memsz defaults to len(Data); anything beyond is BSS.
	Memsz uint64
	Flags elf.ProgFlag
	// Offset defaults to Vaddr, which keeps file offset and address congruent for any host page size.
	Offset uint64
	// Trailer is written to the file right after Data, without being part of the segment.
	Trailer []byte
}

// Image describes a minimal statically linked executable.
type Image struct {
	Entry    uint64
	Class    elf.Class
	Machine  elf.Machine
	Segments []Segment
}

const (
	ehdr64Size = 64
	phdr64Size = 56
	ehdr32Size = 52
)

// Bytes renders the image. Class and Machine default to a RV64 executable.
func (img *Image) Bytes() []byte {
	class := img.Class
	if class == elf.ELFCLASSNONE {
		class = elf.ELFCLASS64
	}
	machine := img.Machine
	if machine == elf.EM_NONE {
		machine = elf.EM_RISCV
	}
	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(class)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var buf bytes.Buffer
	if class == elf.ELFCLASS32 {
		hdr := elf.Header32{
			Ident:     ident,
			Type:      uint16(elf.ET_EXEC),
			Machine:   uint16(machine),
			Version:   uint32(elf.EV_CURRENT),
			Entry:     uint32(img.Entry),
			Ehsize:    ehdr32Size,
			Phentsize: 32,
		}
		_ = binary.Write(&buf, binary.LittleEndian, &hdr)
		return buf.Bytes()
	}

	hdr := elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     img.Entry,
		Phoff:     ehdr64Size,
		Ehsize:    ehdr64Size,
		Phentsize: phdr64Size,
		Phnum:     uint16(len(img.Segments)),
	}
	_ = binary.Write(&buf, binary.LittleEndian, &hdr)

	var out []byte
	for _, seg := range img.Segments {
		memsz := seg.Memsz
		if memsz == 0 {
			memsz = uint64(len(seg.Data))
		}
		off := seg.Offset
		if off == 0 {
			off = seg.Vaddr
		}
		ph := elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(seg.Flags),
			Off:    off,
			Vaddr:  seg.Vaddr,
			Paddr:  seg.Vaddr,
			Filesz: uint64(len(seg.Data)),
			Memsz:  memsz,
			Align:  0x1000,
		}
		_ = binary.Write(&buf, binary.LittleEndian, &ph)
	}
	out = append(out, buf.Bytes()...)

	for _, seg := range img.Segments {
		off := seg.Offset
		if off == 0 {
			off = seg.Vaddr
		}
		end := off + uint64(len(seg.Data)) + uint64(len(seg.Trailer))
		if uint64(len(out)) < end {
			out = append(out, make([]byte, end-uint64(len(out)))...)
		}
		copy(out[off:], seg.Data)
		copy(out[off+uint64(len(seg.Data)):], seg.Trailer)
	}
	return out
}

// WriteFile writes raw bytes into a fresh temporary file and returns its path.
func WriteFile(t testing.TB, data []byte) string {
	path := filepath.Join(t.TempDir(), "program.elf")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// WriteELF renders the image into a temporary file and returns its path.
func WriteELF(t testing.TB, img *Image) string {
	return WriteFile(t, img.Bytes())
}

// OpenELF renders the image into a temporary file and opens it; the file is closed on test cleanup.
func OpenELF(t testing.TB, img *Image) *os.File {
	f, err := os.Open(WriteELF(t, img))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}
