package mmu

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrBadELF      = errors.New("bad elf file")
	ErrTruncated   = errors.New("elf file too small")
	ErrNotRISCV64  = errors.New("only riscv64 elf files are supported")
	ErrBadSegment  = errors.New("malformed loadable segment")
	ErrNoLoadables = errors.New("elf file has no loadable segments")
)

// Segment is one PT_LOAD program header.
type Segment struct {
	Offset uint64       `json:"offset"`
	Vaddr  uint64       `json:"vaddr"`
	Filesz uint64       `json:"filesz"`
	Memsz  uint64       `json:"memsz"`
	Flags  elf.ProgFlag `json:"flags"`
	Align  uint64       `json:"align"`
}

// Prot maps the segment's R/W/X flags 1:1 onto host protections.
func (s Segment) Prot() Prot {
	var p Prot
	if s.Flags&elf.PF_R != 0 {
		p |= ProtRead
	}
	if s.Flags&elf.PF_W != 0 {
		p |= ProtWrite
	}
	if s.Flags&elf.PF_X != 0 {
		p |= ProtExec
	}
	return p
}

// Program is what loading leaves behind: where to start, and what got mapped.
type Program struct {
	Entry    uint64    `json:"entry"`
	Segments []Segment `json:"segments"`
}

// LoadELF validates a RV64 executable and maps each of its loadable segments into the address space.
// The address space is only usable if no error is returned.
func LoadELF(f *os.File, as *AddressSpace) (*Program, error) {
	ef, err := elf.NewFile(f)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrBadELF, err)
	}
	if ef.Class != elf.ELFCLASS64 || ef.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("%w: class %s, machine %s", ErrNotRISCV64, ef.Class, ef.Machine)
	}

	out := &Program{Entry: ef.Entry}
	for i, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Filesz > prog.Memsz {
			return nil, fmt.Errorf("%w: segment %d file size (%d) > mem size (%d)", ErrBadSegment, i, prog.Filesz, prog.Memsz)
		}
		if prog.Memsz == 0 {
			continue
		}
		seg := Segment{
			Offset: prog.Off,
			Vaddr:  prog.Vaddr,
			Filesz: prog.Filesz,
			Memsz:  prog.Memsz,
			Flags:  prog.Flags,
			Align:  prog.Align,
		}
		if err := as.MapSegment(seg, f); err != nil {
			return nil, fmt.Errorf("failed to load program segment %d: %w", i, err)
		}
		out.Segments = append(out.Segments, seg)
	}
	if len(out.Segments) == 0 {
		return nil, ErrNoLoadables
	}
	return out, nil
}
