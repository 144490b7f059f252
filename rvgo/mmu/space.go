package mmu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// DefaultSize is the guest address range reserved when no size is configured: guest addresses [0, 4 GiB).
const DefaultSize = 1 << 32

var (
	ErrUnsupportedHost  = errors.New("host cannot back a fixed guest address space")
	ErrMisplacedMapping = errors.New("host mapping did not land at the requested address")
	ErrOutOfRange       = errors.New("guest range outside of the reserved address space")
	ErrMisalignedSeg    = errors.New("segment file offset and address disagree modulo the page size")
)

// Prot is the access the host grants to a mapped guest range.
type Prot uint8

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
)

func (p Prot) String() string {
	out := []byte("---")
	if p&ProtRead != 0 {
		out[0] = 'r'
	}
	if p&ProtWrite != 0 {
		out[1] = 'w'
	}
	if p&ProtExec != 0 {
		out[2] = 'x'
	}
	return string(out)
}

func (p Prot) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Prot) UnmarshalText(text []byte) error {
	if len(text) != 3 {
		return fmt.Errorf("invalid protection %q", text)
	}
	var out Prot
	for i, want := range "rwx" {
		switch text[i] {
		case byte(want):
			out |= 1 << i
		case '-':
		default:
			return fmt.Errorf("invalid protection %q", text)
		}
	}
	*p = out
	return nil
}

// Region is one host mapping backing part of the guest address space.
type Region struct {
	Guest  uint64 `json:"guest"`
	Length uint64 `json:"length"`
	Prot   Prot   `json:"prot"`
	Anon   bool   `json:"anon"`
}

// AddressSpace maps guest addresses onto one contiguous host reservation.
// Guest address 0 is the first byte of the reservation, so translation is a single addition.
// Everything outside of the mapped regions stays PROT_NONE: touching it faults the host process.
type AddressSpace struct {
	mem      []byte
	pageSize uint64

	// highest host address backing guest memory, page aligned
	hostAlloc uintptr

	regions []Region
}

// New reserves size bytes of host address space for the guest.
func New(size uint64) (*AddressSpace, error) {
	if size == 0 {
		size = DefaultSize
	}
	pageSize := uint64(os.Getpagesize())
	size = roundUp(size, pageSize)
	mem, err := reserve(size)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve %d bytes of guest memory: %w", size, err)
	}
	as := &AddressSpace{
		mem:      mem,
		pageSize: pageSize,
	}
	as.hostAlloc = as.Base()
	return as, nil
}

// Close releases the whole reservation, including every mapping made inside of it.
func (as *AddressSpace) Close() error {
	if as.mem == nil {
		return nil
	}
	err := release(as.mem)
	as.mem = nil
	as.regions = nil
	return err
}

func (as *AddressSpace) PageSize() uint64 {
	return as.pageSize
}

// Size is the length of the guest address range.
func (as *AddressSpace) Size() uint64 {
	return uint64(len(as.mem))
}

// Base is the host address corresponding to guest address 0.
func (as *AddressSpace) Base() uintptr {
	return hostAddr(as.mem, 0)
}

// HostAlloc is the highest host address backing guest memory, the initial heap growth point.
func (as *AddressSpace) HostAlloc() uintptr {
	return as.hostAlloc
}

// GuestAlloc is HostAlloc translated back into the guest address space.
func (as *AddressSpace) GuestAlloc() uint64 {
	return as.ToGuest(as.hostAlloc)
}

// ToHost translates a guest address into the host address that backs it.
func (as *AddressSpace) ToHost(guest uint64) uintptr {
	if guest >= uint64(len(as.mem)) {
		panic(fmt.Errorf("%w: %016x", ErrOutOfRange, guest))
	}
	return as.Base() + uintptr(guest)
}

// ToGuest is the inverse of ToHost.
func (as *AddressSpace) ToGuest(host uintptr) uint64 {
	return uint64(host - as.Base())
}

// Regions lists the host mappings made so far, in mapping order.
func (as *AddressSpace) Regions() []Region {
	return append([]Region(nil), as.regions...)
}

// Bytes returns the host memory backing [addr, addr+n). The range must be mapped readable.
func (as *AddressSpace) Bytes(addr uint64, n uint64) []byte {
	return as.mem[addr : addr+n : addr+n]
}

// Load reads a little-endian value of size 1, 2, 4 or 8 bytes, zero-extended.
func (as *AddressSpace) Load(addr uint64, size uint64) uint64 {
	switch size {
	case 1:
		return uint64(as.mem[addr])
	case 2:
		return uint64(binary.LittleEndian.Uint16(as.mem[addr:]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(as.mem[addr:]))
	case 8:
		return binary.LittleEndian.Uint64(as.mem[addr:])
	default:
		panic(fmt.Errorf("bad load size: %d", size))
	}
}

// Store writes the low size bytes of value, little-endian.
func (as *AddressSpace) Store(addr uint64, size uint64, value uint64) {
	switch size {
	case 1:
		as.mem[addr] = uint8(value)
	case 2:
		binary.LittleEndian.PutUint16(as.mem[addr:], uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(as.mem[addr:], uint32(value))
	case 8:
		binary.LittleEndian.PutUint64(as.mem[addr:], value)
	default:
		panic(fmt.Errorf("bad store size: %d", size))
	}
}

// MapAnonymous backs [addr, addr+length) with zeroed private memory. The range is page aligned outwards.
func (as *AddressSpace) MapAnonymous(addr uint64, length uint64, prot Prot) error {
	start := roundDown(addr, as.pageSize)
	end := roundUp(addr+length, as.pageSize)
	if err := as.checkRange(start, end-start); err != nil {
		return err
	}
	if err := mapAnon(as.mem, start, end-start, prot); err != nil {
		return fmt.Errorf("failed to map anonymous range %016x-%016x: %w", start, end, err)
	}
	as.track(Region{Guest: start, Length: end - start, Prot: prot, Anon: true})
	return nil
}

// MapSegment maps one loadable ELF segment at its fixed guest address.
// The file-backed part comes straight from f; the BSS remainder is zeroed anonymous memory.
func (as *AddressSpace) MapSegment(seg Segment, f *os.File) error {
	ps := as.pageSize
	if seg.Offset%ps != seg.Vaddr%ps {
		return fmt.Errorf("%w: offset %x, vaddr %x, page size %x", ErrMisalignedSeg, seg.Offset, seg.Vaddr, ps)
	}
	aligned := roundDown(seg.Vaddr, ps)
	skew := seg.Vaddr - aligned
	fileLen := seg.Filesz + skew
	memLen := seg.Memsz + skew
	// a segment without file data is anonymous from its first page on
	fileEnd := uint64(0)
	if seg.Filesz > 0 {
		fileEnd = roundUp(fileLen, ps)
	}
	memEnd := roundUp(memLen, ps)
	if err := as.checkRange(aligned, memEnd); err != nil {
		return err
	}
	prot := seg.Prot()

	if seg.Filesz > 0 {
		// the bytes between the end of the file data and the end of its last page belong to the BSS,
		// they must read as zero even if the file has more data there.
		zeroTail := memLen > fileLen && fileLen != fileEnd
		mapProt := prot
		if zeroTail {
			mapProt |= ProtWrite
		}
		applied, err := mapFile(as.mem, aligned, fileLen, mapProt, f, roundDown(seg.Offset, ps))
		if err != nil {
			return fmt.Errorf("failed to map segment at %016x: %w", seg.Vaddr, err)
		}
		if zeroTail {
			clear(as.mem[aligned+fileLen : aligned+fileEnd])
			applied &^= ProtWrite
			applied |= prot & ProtWrite
			if err := protect(as.mem[aligned:aligned+fileEnd], applied); err != nil {
				return fmt.Errorf("failed to restore protection of segment at %016x: %w", seg.Vaddr, err)
			}
		}
		as.track(Region{Guest: aligned, Length: fileEnd, Prot: applied})
	}

	if memEnd > fileEnd {
		bss := aligned + fileEnd
		if err := mapAnon(as.mem, bss, memEnd-fileEnd, prot); err != nil {
			return fmt.Errorf("failed to map bss at %016x: %w", bss, err)
		}
		as.track(Region{Guest: bss, Length: memEnd - fileEnd, Prot: prot, Anon: true})
	}

	if top := as.ToHost(aligned) + uintptr(memEnd); top > as.hostAlloc {
		as.hostAlloc = top
	}
	return nil
}

func (as *AddressSpace) checkRange(start, length uint64) error {
	if start > uint64(len(as.mem)) || length > uint64(len(as.mem))-start {
		return fmt.Errorf("%w: %016x + %x (size %x)", ErrOutOfRange, start, length, len(as.mem))
	}
	return nil
}

func (as *AddressSpace) track(r Region) {
	as.regions = append(as.regions, r)
}

func roundDown(v, align uint64) uint64 {
	return v &^ (align - 1)
}

func roundUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
