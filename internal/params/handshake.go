// SPDX-License-Identifier: MIT
package params

// Handshake tracks which kinds have had their ordered key lists confirmed
// by the control side. Until every kind is confirmed, flat payloads must be
// discarded. It is owned by the render goroutine and does not allocate.
type Handshake struct {
	layout    *Layout
	confirmed [NumKinds]bool
	rejected  [NumKinds]bool
}

// NewHandshake starts an unconfirmed handshake against layout.
func NewHandshake(layout *Layout) *Handshake {
	return &Handshake{layout: layout}
}

// Accept records the control side's key list for kind. A list that does
// not match the local layout leaves the kind unconfirmed and marks it
// rejected.
func (h *Handshake) Accept(kind Kind, keys []string) bool {
	if kind >= NumKinds {
		return false
	}
	if !h.layout.Matches(kind, keys) {
		h.confirmed[kind] = false
		h.rejected[kind] = true
		return false
	}
	h.confirmed[kind] = true
	h.rejected[kind] = false
	return true
}

// Confirmed reports whether kind's keys have been accepted.
func (h *Handshake) Confirmed(kind Kind) bool {
	return kind < NumKinds && h.confirmed[kind]
}

// Rejected reports whether the last key list for kind was a mismatch.
func (h *Handshake) Rejected(kind Kind) bool {
	return kind < NumKinds && h.rejected[kind]
}

// Ready reports whether every kind has been confirmed.
func (h *Handshake) Ready() bool {
	for _, c := range h.confirmed {
		if !c {
			return false
		}
	}
	return true
}

// Reset forgets all confirmations.
func (h *Handshake) Reset() {
	h.confirmed = [NumKinds]bool{}
	h.rejected = [NumKinds]bool{}
}
