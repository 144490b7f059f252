package mmu

import (
	"bytes"
	"debug/elf"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/rvemu/rvgo/test"
)

func loadImage(t *testing.T, img *test.Image) (*AddressSpace, *Program, error) {
	as := newSpace(t, 1<<24)
	prog, err := LoadELF(test.OpenELF(t, img), as)
	return as, prog, err
}

func TestLoadELF(t *testing.T) {
	code := []byte{0x13, 0x05, 0x10, 0x00, 0x73, 0x00, 0x00, 0x00} // li a0, 1; ecall
	data := []byte("hello")
	img := &test.Image{
		Entry: 0x10000,
		Segments: []test.Segment{
			{Vaddr: 0x10000, Data: code, Flags: elf.PF_R | elf.PF_X},
			{Vaddr: 0x40000, Data: data, Flags: elf.PF_R | elf.PF_W},
		},
	}
	as, prog, err := loadImage(t, img)
	require.NoError(t, err)
	require.Equal(t, uint64(0x10000), prog.Entry)
	require.Len(t, prog.Segments, 2)
	require.Equal(t, uint64(len(code)), prog.Segments[0].Filesz)
	require.Equal(t, ProtRead|ProtWrite, prog.Segments[1].Prot())

	require.Equal(t, code, as.Bytes(0x10000, uint64(len(code))))
	require.Equal(t, data, as.Bytes(0x40000, uint64(len(data))))
	require.Equal(t, uint64(0x0010_0513), as.Load(0x10000, 4))

	regions := as.Regions()
	require.Len(t, regions, 2)
	require.Equal(t, uint64(0x10000), regions[0].Guest)
	require.NotZero(t, regions[0].Prot&ProtRead)
	require.Zero(t, regions[0].Prot&ProtWrite, "text stays read-only")
	require.Equal(t, ProtRead|ProtWrite, regions[1].Prot)

	require.Equal(t, uint64(0x40000)+as.PageSize(), as.GuestAlloc(), "high-water mark is the page-rounded end of the last segment")
}

func TestLoadELFZeroesBSS(t *testing.T) {
	garbage := bytes.Repeat([]byte{0xAA}, 256)
	img := &test.Image{
		Entry: 0x20000,
		Segments: []test.Segment{{
			Vaddr:   0x20000,
			Data:    []byte{1, 2, 3, 4},
			Memsz:   0x3000,
			Flags:   elf.PF_R | elf.PF_W,
			Trailer: garbage,
		}},
	}
	as, prog, err := loadImage(t, img)
	require.NoError(t, err)
	require.Equal(t, uint64(0x3000), prog.Segments[0].Memsz)

	require.Equal(t, []byte{1, 2, 3, 4}, as.Bytes(0x20000, 4))
	require.Equal(t, make([]byte, len(garbage)), as.Bytes(0x20004, uint64(len(garbage))), "file data past filesz must not leak into the bss")
	require.Equal(t, make([]byte, 16), as.Bytes(0x22FF0, 16))

	// the bss is writable like the rest of the segment
	as.Store(0x22FF8, 8, 0x1122_3344_5566_7788)
	require.Equal(t, uint64(0x1122_3344_5566_7788), as.Load(0x22FF8, 8))
	require.Equal(t, uint64(0x20000)+roundUp(0x3000, as.PageSize()), as.GuestAlloc())
}

func TestLoadELFUnalignedSegments(t *testing.T) {
	cases := []struct {
		name string
		seg  test.Segment
	}{
		{"file backed", test.Segment{Vaddr: 0x10010, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}, Memsz: 0x100, Flags: elf.PF_R | elf.PF_W, Trailer: bytes.Repeat([]byte{0xAA}, 64)}},
		{"bss only", test.Segment{Vaddr: 0x30010, Memsz: 0x100, Flags: elf.PF_R | elf.PF_W}},
		{"bss across a page", test.Segment{Vaddr: 0x50FF0, Data: []byte{9, 9}, Memsz: 0x2000, Flags: elf.PF_R | elf.PF_W}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seg := tc.seg
			as, prog, err := loadImage(t, &test.Image{Entry: seg.Vaddr, Segments: []test.Segment{seg}})
			require.NoError(t, err)
			require.Len(t, prog.Segments, 1)
			require.NotEmpty(t, as.Regions())

			filesz := uint64(len(seg.Data))
			if filesz > 0 {
				require.Equal(t, seg.Data, as.Bytes(seg.Vaddr, filesz))
			}
			require.Equal(t, make([]byte, seg.Memsz-filesz), as.Bytes(seg.Vaddr+filesz, seg.Memsz-filesz))
			require.Equal(t, roundUp(seg.Vaddr+seg.Memsz, as.PageSize()), as.GuestAlloc())

			last := seg.Vaddr + seg.Memsz - 8
			as.Store(last, 8, 0x0102_0304_0506_0708)
			require.Equal(t, uint64(0x0102_0304_0506_0708), as.Load(last, 8))
		})
	}
}

func TestLoadELFSkipsEmptySegments(t *testing.T) {
	img := &test.Image{
		Entry: 0x10000,
		Segments: []test.Segment{
			{Vaddr: 0x10000, Data: []byte{0x73, 0, 0, 0}, Flags: elf.PF_R | elf.PF_X},
			{Vaddr: 0x30000, Flags: elf.PF_R},
		},
	}
	_, prog, err := loadImage(t, img)
	require.NoError(t, err)
	require.Len(t, prog.Segments, 1)
}

func TestLoadELFErrors(t *testing.T) {
	valid := &test.Image{
		Entry:    0x10000,
		Segments: []test.Segment{{Vaddr: 0x10000, Data: []byte{0x73, 0, 0, 0}, Flags: elf.PF_R | elf.PF_X}},
	}

	open := func(t *testing.T, data []byte) *os.File {
		f, err := os.Open(test.WriteFile(t, data))
		require.NoError(t, err)
		t.Cleanup(func() { _ = f.Close() })
		return f
	}

	t.Run("bad magic", func(t *testing.T) {
		data := valid.Bytes()
		data[1] = 'X'
		_, err := LoadELF(open(t, data), newSpace(t, 1<<24))
		require.ErrorIs(t, err, ErrBadELF)
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := LoadELF(open(t, valid.Bytes()[:10]), newSpace(t, 1<<24))
		require.ErrorIs(t, err, ErrTruncated)
	})
	t.Run("wrong machine", func(t *testing.T) {
		img := *valid
		img.Machine = elf.EM_X86_64
		_, _, err := loadImage(t, &img)
		require.ErrorIs(t, err, ErrNotRISCV64)
	})
	t.Run("32-bit", func(t *testing.T) {
		img := *valid
		img.Class = elf.ELFCLASS32
		_, _, err := loadImage(t, &img)
		require.ErrorIs(t, err, ErrNotRISCV64)
	})
	t.Run("file size beyond memory size", func(t *testing.T) {
		img := &test.Image{
			Entry:    0x10000,
			Segments: []test.Segment{{Vaddr: 0x10000, Data: []byte{1, 2, 3, 4}, Memsz: 2, Flags: elf.PF_R}},
		}
		_, _, err := loadImage(t, img)
		require.ErrorIs(t, err, ErrBadSegment)
	})
	t.Run("no loadable segments", func(t *testing.T) {
		_, _, err := loadImage(t, &test.Image{Entry: 0x10000})
		require.ErrorIs(t, err, ErrNoLoadables)
	})
	t.Run("offset and address disagree", func(t *testing.T) {
		img := &test.Image{
			Entry:    0x30000,
			Segments: []test.Segment{{Vaddr: 0x30000, Offset: 0x10010, Data: []byte{1}, Flags: elf.PF_R}},
		}
		_, _, err := loadImage(t, img)
		require.ErrorIs(t, err, ErrMisalignedSeg)
	})
	t.Run("outside of the address space", func(t *testing.T) {
		img := &test.Image{
			Entry:    1 << 30,
			Segments: []test.Segment{{Vaddr: 1 << 30, Offset: 0x10000, Data: []byte{1}, Flags: elf.PF_R}},
		}
		_, _, err := loadImage(t, img)
		require.ErrorIs(t, err, ErrOutOfRange)
	})
}
