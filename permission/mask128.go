package permission

// Mask128 is a 128-bit permission bitmask supporting up to 128 permissions.
type Mask128 struct {
	Lo uint64
	Hi uint64
}

// Has reports whether the given bit is set.
func (m *Mask128) Has(bit int) bool {
	switch {
	case bit < 0 || bit >= 128:
		return false
	case bit < 64:
		return (m.Lo & (1 << bit)) != 0
	default:
		return (m.Hi & (1 << (bit - 64))) != 0
	}
}

// Set sets the given bit in the mask.
func (m *Mask128) Set(bit int) {
	switch {
	case bit < 0 || bit >= 128:
		return
	case bit < 64:
		m.Lo |= (1 << bit)
	default:
		m.Hi |= (1 << (bit - 64))
	}
}

// Clear clears the given bit in the mask.
func (m *Mask128) Clear(bit int) {
	switch {
	case bit < 0 || bit >= 128:
		return
	case bit < 64:
		m.Lo &^= (1 << bit)
	default:
		m.Hi &^= (1 << (bit - 64))
	}
}

// Empty reports whether no bit is set.
func (m *Mask128) Empty() bool {
	return m.Lo == 0 && m.Hi == 0
}
