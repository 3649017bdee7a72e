// Package pair canonicalizes unordered user pairs. Every match-ledger read
// and write goes through Canonical so the (A,B) and (B,A) orderings always
// resolve to the same record key.
package pair

// Canonical returns the pair sorted into its storage order, lower id first.
func Canonical(x, y int64) (int64, int64) {
	if x > y {
		return y, x
	}
	return x, y
}

// IsFirst reports whether userID occupies the first (lower) slot of the
// canonical ordering for the pair (userID, otherID).
func IsFirst(userID, otherID int64) bool {
	return userID < otherID
}
