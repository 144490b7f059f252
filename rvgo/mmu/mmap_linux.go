//go:build linux && (amd64 || arm64 || riscv64 || loong64 || ppc64le || s390x)

package mmu

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

func (p Prot) host() int {
	out := unix.PROT_NONE
	if p&ProtRead != 0 {
		out |= unix.PROT_READ
	}
	if p&ProtWrite != 0 {
		out |= unix.PROT_WRITE
	}
	if p&ProtExec != 0 {
		out |= unix.PROT_EXEC
	}
	return out
}

func hostAddr(mem []byte, off uint64) uintptr {
	if len(mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&mem[off]))
}

func reserve(size uint64) ([]byte, error) {
	return unix.Mmap(-1, 0, int(size), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
}

func release(mem []byte) error {
	return unix.Munmap(mem)
}

func protect(mem []byte, prot Prot) error {
	return unix.Mprotect(mem, prot.host())
}

// mmapFixed replaces the pages at mem[off:off+length] with a new mapping.
func mmapFixed(mem []byte, off, length uint64, prot Prot, flags int, fd int, fileOff uint64) error {
	want := hostAddr(mem, off)
	got, _, errno := unix.Syscall6(unix.SYS_MMAP, uintptr(unsafe.Pointer(&mem[off])), uintptr(length),
		uintptr(prot.host()), uintptr(flags|unix.MAP_FIXED), uintptr(fd), uintptr(fileOff))
	if errno != 0 {
		return errno
	}
	if got != want {
		return fmt.Errorf("%w: wanted %x, got %x", ErrMisplacedMapping, want, got)
	}
	return nil
}

func mapAnon(mem []byte, off, length uint64, prot Prot) error {
	return mmapFixed(mem, off, length, prot, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS, -1, 0)
}

// mapFile maps file data privately and returns the protection that was applied.
// Hosts that refuse executable file mappings (noexec mounts) get the range without PROT_EXEC:
// guest code is only ever interpreted.
func mapFile(mem []byte, off, length uint64, prot Prot, f *os.File, fileOff uint64) (Prot, error) {
	err := mmapFixed(mem, off, length, prot, unix.MAP_PRIVATE, int(f.Fd()), fileOff)
	if prot&ProtExec != 0 && (errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES)) {
		prot &^= ProtExec
		err = mmapFixed(mem, off, length, prot, unix.MAP_PRIVATE, int(f.Fd()), fileOff)
	}
	return prot, err
}
