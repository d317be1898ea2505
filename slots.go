package vmem_go

// NextSlot returns the slot following s in a table of the given size.
func NextSlot(s, entries uint32) uint32 {
	s++
	if s >= entries {
		return 0
	}
	return s
}

// Between reports whether advancing circularly from lo up to hi passes x,
// i.e. whether x lies in the half-open interval [lo, hi).
//
// Three cases: lo == hi is the empty interval, lo < hi is a plain interval,
// and lo > hi is an interval that wraps through zero.
func Between(lo, x, hi uint32) bool {
	switch {
	case lo == hi:
		return false
	case lo < hi:
		return lo <= x && x < hi
	default:
		return x >= lo || x < hi
	}
}

// distance returns how far forward to travels from from in a ring of size n.
func distance(from, to, n uint32) uint32 {
	if to >= from {
		return to - from
	}
	return n - from + to
}
