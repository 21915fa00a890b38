package permission

// Mask64 is a 64-bit permission bitmask supporting up to 64 permissions.
type Mask64 uint64

// Has reports whether the given bit is set.
func (m *Mask64) Has(bit int) bool {
	if bit < 0 || bit >= 64 {
		return false
	}
	return (*m & (1 << bit)) != 0
}

// Set sets the given bit in the mask.
func (m *Mask64) Set(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m |= (1 << bit)
}

// Clear clears the given bit in the mask.
func (m *Mask64) Clear(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m &^= (1 << bit)
}

// Empty reports whether no bit is set.
func (m *Mask64) Empty() bool {
	return *m == 0
}
