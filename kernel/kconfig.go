package kernel

// Adapted from https://github.com/cilium/ebpf/tree/dc256170d8d343fbfdf751c54f4cbb4b4d7aaba3/internal/kconfig

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Uname returns the release and machine strings of the running kernel.
// The release format depends on the distribution and corresponds to the
// directory names in /lib/modules, e.g. 5.15.17-1-lts or 4.19.0-16-amd64.
func Uname() (release string, machine string, err error) {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return "", "", fmt.Errorf("uname failed: %w", err)
	}

	return unix.ByteSliceToString(uname.Release[:]), unix.ByteSliceToString(uname.Machine[:]), nil
}

// FindKConfig searches for the kconfig of the given release below root
// (usually /). It first tries <root>/boot/config-<release> and falls
// back to <root>/proc/config.gz.
func FindKConfig(root, release string) (*os.File, error) {
	path := filepath.Join(root, "boot", "config-"+release)
	f, err := os.Open(path)
	if err == nil {
		return f, nil
	}

	gzPath := filepath.Join(root, "proc", "config.gz")
	f, err = os.Open(gzPath)
	if err == nil {
		return f, nil
	}

	return nil, fmt.Errorf("neither %s nor %s provide a kconfig", path, gzPath)
}

// ParseKConfig parses the kconfig file behind source, transparently
// decompressing it when needed. Every CONFIG_* present in filter (or every
// one if filter is nil) ends up in the returned map.
func ParseKConfig(source io.ReaderAt, filter map[string]struct{}) (map[string]string, error) {
	var r io.Reader
	zr, err := gzip.NewReader(io.NewSectionReader(source, 0, math.MaxInt64))
	if err != nil {
		r = io.NewSectionReader(source, 0, math.MaxInt64)
	} else {
		r = zr
	}

	ret := make(map[string]string, len(filter))

	s := bufio.NewScanner(r)
	for s.Scan() {
		if err := processKconfigLine(s.Bytes(), ret, filter); err != nil {
			return nil, fmt.Errorf("cannot parse line: %w", err)
		}

		if filter != nil && len(ret) == len(filter) {
			break
		}
	}

	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("cannot parse: %w", err)
	}

	if zr != nil {
		return ret, zr.Close()
	}

	return ret, nil
}

// Mirrors libbpf's bpf_object__process_kconfig_line() checks without
// touching any map.
func processKconfigLine(line []byte, m map[string]string, filter map[string]struct{}) error {
	// Ignore empty lines and "# CONFIG_* is not set".
	if !bytes.HasPrefix(line, []byte("CONFIG_")) {
		return nil
	}

	key, value, found := bytes.Cut(line, []byte{'='})
	if !found {
		return fmt.Errorf("line %q does not contain separator '='", line)
	}

	if len(value) == 0 {
		return fmt.Errorf("line %q has no value", line)
	}

	if filter != nil {
		// NB: map[string(key)] gets special optimisation help from the compiler
		// and doesn't allocate. Don't turn this into a variable.
		if _, ok := filter[string(key)]; !ok {
			return nil
		}
	}

	// libbpf only keeps the first value seen for a key.
	if _, ok := m[string(key)]; !ok {
		m[string(key)] = string(value)
	}

	return nil
}
