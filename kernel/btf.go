package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cilium/ebpf/btf"

	"github.com/scitags/conntuple/types"
)

// LoadKernelLayout resolves ff against the running kernel's BTF, or against
// the BTF blob at path when it's not empty.
func LoadKernelLayout(path string, ff ...Field) (*Layout, error) {
	var (
		spec *btf.Spec
		err  error
	)
	if path == "" {
		spec, err = btf.LoadKernelSpec()
	} else {
		spec, err = btf.LoadSpec(path)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading BTF: %w", err)
	}

	return LayoutFromSpec(spec, ff...)
}

// LayoutFromSpec resolves the offsets of ff in spec. Any field that can't
// be located is an error: a program relying on it couldn't be loaded.
func LayoutFromSpec(spec *btf.Spec, ff ...Field) (*Layout, error) {
	return ResolveLayout(func(name string) (*btf.Struct, error) {
		var s *btf.Struct
		if err := spec.TypeByName(name, &s); err != nil {
			return nil, err
		}
		return s, nil
	}, ff...)
}

// ResolveLayout resolves ff with the structs returned by lookup.
func ResolveLayout(lookup func(name string) (*btf.Struct, error), ff ...Field) (*Layout, error) {
	if len(ff) == 0 {
		ff = Fields()
	}

	structs := map[string]*btf.Struct{}
	layout := &Layout{}
	errs := []error{}

	for _, f := range ff {
		name := f.Struct()
		s, ok := structs[name]
		if !ok {
			var err error
			s, err = lookup(name)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: struct %s: %w", f, name, err))
				continue
			}
			structs[name] = s
		}

		off, err := MemberOffset(s, f.Path(), f.Size())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f, err))
			continue
		}

		slog.Log(context.Background(), types.LevelTrace, "relocated field", "field", f, "struct", name, "offset", off)
		layout.Set(f, off)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return layout, nil
}

// MemberOffset returns the byte offset of the member at the dotted path
// inside s, checking it spans exactly size bytes.
func MemberOffset(s *btf.Struct, path string, size int) (uint32, error) {
	off, typ, err := memberOffset(s, strings.Split(path, "."))
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %w", s.Name, path, err)
	}

	if off%8 != 0 {
		return 0, fmt.Errorf("%s.%s: member isn't byte aligned", s.Name, path)
	}

	sz, err := btf.Sizeof(typ)
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %w", s.Name, path, err)
	}
	if sz != size {
		return 0, fmt.Errorf("%s.%s: member spans %d bytes, want %d", s.Name, path, sz, size)
	}

	return off.Bytes(), nil
}

func memberOffset(typ btf.Type, path []string) (btf.Bits, btf.Type, error) {
	var members []btf.Member
	switch c := btf.UnderlyingType(typ).(type) {
	case *btf.Struct:
		members = c.Members
	case *btf.Union:
		members = c.Members
	default:
		return 0, nil, fmt.Errorf("%w: %s is not a composite type", ErrFieldUnavailable, typ)
	}

	for _, m := range members {
		if m.Name != path[0] {
			continue
		}
		if m.BitfieldSize != 0 {
			return 0, nil, fmt.Errorf("%q is a bitfield", m.Name)
		}
		if len(path) == 1 {
			return m.Offset, m.Type, nil
		}
		off, t, err := memberOffset(m.Type, path[1:])
		if err != nil {
			return 0, nil, err
		}
		return m.Offset + off, t, nil
	}

	// Members of anonymous structs and unions are reachable from the
	// enclosing type.
	for _, m := range members {
		if m.Name != "" {
			continue
		}
		off, t, err := memberOffset(m.Type, path)
		if err == nil {
			return m.Offset + off, t, nil
		}
	}

	return 0, nil, fmt.Errorf("%w: no member %q", ErrFieldUnavailable, path[0])
}
