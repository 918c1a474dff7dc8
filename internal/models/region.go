package models

import "fmt"

// Range is an inclusive [Start, End] span of lines or characters.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Intersects reports whether two inclusive ranges share at least one position.
func (r Range) Intersects(other Range) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// Contains reports whether pos lies within the range.
func (r Range) Contains(pos int) bool {
	return pos >= r.Start && pos <= r.End
}

// Region describes a named or positional sub-range of a document.
// Any combination of the three descriptors may be set; comparison
// prefers lines, then characters, then the section name.
type Region struct {
	Lines   *Range `json:"lines,omitempty"`   // Lines диапазон строк (включительно)
	Chars   *Range `json:"chars,omitempty"`   // Chars диапазон абсолютных смещений символов
	Section string `json:"section,omitempty"` // Section имя раздела документа
}

// Validate checks that the region carries at least one descriptor
// and that its ranges are well formed.
func (r *Region) Validate() error {
	if r == nil {
		return fmt.Errorf("region is required")
	}
	if r.Lines == nil && r.Chars == nil && r.Section == "" {
		return fmt.Errorf("region must specify lines, chars or section")
	}
	for name, rng := range map[string]*Range{"lines": r.Lines, "chars": r.Chars} {
		if rng == nil {
			continue
		}
		if rng.Start < 0 || rng.End < 0 {
			return fmt.Errorf("region %s must not be negative", name)
		}
		if rng.Start > rng.End {
			return fmt.Errorf("region %s start %d is after end %d", name, rng.Start, rng.End)
		}
	}
	return nil
}

// Overlaps reports whether two regions overlap.
// Line ranges are compared when both regions have them, otherwise
// character ranges, otherwise section names. Regions that cannot be
// compared are treated as overlapping.
func (r *Region) Overlaps(other *Region) bool {
	if r == nil || other == nil {
		return true
	}
	switch {
	case r.Lines != nil && other.Lines != nil:
		return r.Lines.Intersects(*other.Lines)
	case r.Chars != nil && other.Chars != nil:
		return r.Chars.Intersects(*other.Chars)
	case r.Section != "" && other.Section != "":
		return r.Section == other.Section
	default:
		return true
	}
}

// Covers reports whether an edit at pos falls inside the region.
// Section-only regions cannot be mapped to a position and never cover it.
func (r *Region) Covers(pos Position) bool {
	if r == nil {
		return false
	}
	if r.Lines != nil {
		return r.Lines.Contains(pos.Line)
	}
	if r.Chars != nil && pos.Offset != nil {
		return r.Chars.Contains(*pos.Offset)
	}
	return false
}

// Clone returns a deep copy of the region.
func (r *Region) Clone() *Region {
	if r == nil {
		return nil
	}
	out := &Region{Section: r.Section}
	if r.Lines != nil {
		lines := *r.Lines
		out.Lines = &lines
	}
	if r.Chars != nil {
		chars := *r.Chars
		out.Chars = &chars
	}
	return out
}

// String renders the region for log and error messages.
func (r *Region) String() string {
	if r == nil {
		return "<document>"
	}
	switch {
	case r.Lines != nil:
		return fmt.Sprintf("lines %d-%d", r.Lines.Start, r.Lines.End)
	case r.Chars != nil:
		return fmt.Sprintf("chars %d-%d", r.Chars.Start, r.Chars.End)
	default:
		return fmt.Sprintf("section %q", r.Section)
	}
}
