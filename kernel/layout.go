package kernel

import "sort"

// Layout maps fields onto byte offsets inside their kernel structure.
type Layout struct {
	offsets [numFields]uint32
	present [numFields]bool
}

func (l *Layout) Set(f Field, offset uint32) {
	if !f.valid() {
		return
	}
	l.offsets[f] = offset
	l.present[f] = true
}

func (l *Layout) Offset(f Field) (uint32, bool) {
	if l == nil || !f.valid() {
		return 0, false
	}
	return l.offsets[f], l.present[f]
}

// Missing returns the fields in ff with no known offset.
func (l *Layout) Missing(ff ...Field) []Field {
	missing := []Field{}
	for _, f := range ff {
		if _, ok := l.Offset(f); !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// Map returns the known offsets keyed by field name.
func (l *Layout) Map() map[string]uint32 {
	m := map[string]uint32{}
	for f := Field(0); f < numFields; f++ {
		if off, ok := l.Offset(f); ok {
			m[f.String()] = off
		}
	}
	return m
}

// Entries returns the known fields sorted by structure and offset.
func (l *Layout) Entries() []LayoutEntry {
	ee := []LayoutEntry{}
	for f := Field(0); f < numFields; f++ {
		if off, ok := l.Offset(f); ok {
			ee = append(ee, LayoutEntry{Field: f, Offset: off})
		}
	}
	sort.Slice(ee, func(i, j int) bool {
		if ee[i].Field.Struct() != ee[j].Field.Struct() {
			return ee[i].Field.Struct() < ee[j].Field.Struct()
		}
		return ee[i].Offset < ee[j].Offset
	})
	return ee
}

type LayoutEntry struct {
	Field  Field
	Offset uint32
}
