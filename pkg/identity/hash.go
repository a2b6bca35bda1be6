// Package identity maps stable user identifiers to numeric transport
// session identifiers. Every peer derives the same value independently,
// so no coordination is needed to bridge signaling identities and
// transport uids.
package identity

// Hash maps an identity string to a numeric transport session id.
//
// The computation runs in 32-bit signed arithmetic with wrap-around
// (hash*31 + char per byte of the UTF-16 code units, matching the
// canonical string hash every client implements), then discards the
// sign. Distinct identities can collide; that is an accepted rare
// failure of the shared id space, not something this function guards
// against.
func Hash(id string) uint32 {
	if id == "" {
		return 0
	}

	var h int32
	for _, r := range id {
		// Identities are expected to be ASCII (uuids, account ids).
		// Code points above the BMP would hash as two UTF-16 units in
		// other clients; restricting to one unit keeps parity for the
		// id alphabets actually in use.
		h = (h << 5) - h + int32(uint16(r))
	}

	if h < 0 {
		h = -h
	}
	return uint32(h)
}
