package snapshot

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
)

// Modification selects how an existing identity is judged modified.
type Modification string

const (
	// ByTimestamp treats a size change or a newer modification time as a change.
	ByTimestamp Modification = "timestamp"
	// ByContent additionally compares bytes when only the timestamp moved.
	ByContent Modification = "content"
)

// ParseModification maps a configuration value to a Modification.
func ParseModification(s string) (Modification, error) {
	switch Modification(s) {
	case "", ByTimestamp:
		return ByTimestamp, nil
	case ByContent:
		return ByContent, nil
	default:
		return "", fmt.Errorf("unknown modification mode %q", s)
	}
}

// Change pairs the previous and current record of a modified identity.
type Change struct {
	Old Record
	New Record
}

// Delta is the difference between the previous snapshot and the current sources.
type Delta struct {
	// ToCompile holds every added or modified record.
	ToCompile []Record
	// Modified is the subset of ToCompile that existed before.
	Modified []Change
	// ToRemove holds previous records whose identity is gone.
	ToRemove []Record
}

// Empty reports whether nothing needs compiling or removing.
func (d Delta) Empty() bool { return len(d.ToCompile) == 0 && len(d.ToRemove) == 0 }

// Diff compares old and current by identity. Each input must already be
// unique per identity (see Unique). Results are ordered by identity.
func Diff(old, current []Record, mode Modification) Delta {
	prev := make(map[string]Record, len(old))
	for _, r := range old {
		prev[r.Identity] = r
	}
	seen := make(map[string]struct{}, len(current))
	var d Delta
	for _, n := range current {
		seen[n.Identity] = struct{}{}
		o, ok := prev[n.Identity]
		if !ok {
			d.ToCompile = append(d.ToCompile, n)
			continue
		}
		if modified(o, n, mode) {
			d.ToCompile = append(d.ToCompile, n)
			d.Modified = append(d.Modified, Change{Old: o, New: n})
		}
	}
	for _, o := range old {
		if _, ok := seen[o.Identity]; !ok {
			d.ToRemove = append(d.ToRemove, o)
		}
	}
	sort.Slice(d.ToCompile, func(i, j int) bool { return d.ToCompile[i].Identity < d.ToCompile[j].Identity })
	sort.Slice(d.Modified, func(i, j int) bool { return d.Modified[i].New.Identity < d.Modified[j].New.Identity })
	sort.Slice(d.ToRemove, func(i, j int) bool { return d.ToRemove[i].Identity < d.ToRemove[j].Identity })
	return d
}

func modified(o, n Record, mode Modification) bool {
	if o.Size != n.Size {
		return true
	}
	if !n.ModTime.After(o.ModTime) {
		return false
	}
	if mode != ByContent {
		return true
	}
	same, err := sameContent(o.Path, n.Path)
	return err != nil || !same
}

func sameContent(a, b string) (bool, error) {
	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer func() { _ = fa.Close() }()
	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer func() { _ = fb.Close() }()
	ba := make([]byte, 32*1024)
	bb := make([]byte, 32*1024)
	for {
		na, ea := io.ReadFull(fa, ba)
		nb, eb := io.ReadFull(fb, bb)
		if na != nb || !bytes.Equal(ba[:na], bb[:nb]) {
			return false, nil
		}
		aDone := ea == io.EOF || ea == io.ErrUnexpectedEOF
		bDone := eb == io.EOF || eb == io.ErrUnexpectedEOF
		if aDone || bDone {
			return aDone == bDone, nil
		}
		if ea != nil {
			return false, ea
		}
		if eb != nil {
			return false, eb
		}
	}
}
