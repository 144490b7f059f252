//go:build !(linux && (amd64 || arm64 || riscv64 || loong64 || ppc64le || s390x))

package mmu

import "os"

func hostAddr(mem []byte, off uint64) uintptr {
	return 0
}

func reserve(size uint64) ([]byte, error) {
	return nil, ErrUnsupportedHost
}

func release(mem []byte) error {
	return ErrUnsupportedHost
}

func protect(mem []byte, prot Prot) error {
	return ErrUnsupportedHost
}

func mapAnon(mem []byte, off, length uint64, prot Prot) error {
	return ErrUnsupportedHost
}

func mapFile(mem []byte, off, length uint64, prot Prot, f *os.File, fileOff uint64) (Prot, error) {
	return prot, ErrUnsupportedHost
}
