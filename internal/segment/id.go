// Package segment owns the route segments of one mounted view: the directed
// edges between consecutive stops, their recalculation state and the map
// routes drawn for them.
package segment

import (
	"strings"

	"github.com/google/uuid"
)

// Separator joins the two order ids of a segment id.
const Separator = "-"

// ID is the key of the segment running from fromOrderID to toOrderID. It is
// ordered: ID(a, b) != ID(b, a).
//
// Order ids must either be free of Separator or be canonical UUIDs; anything
// else can make two pairs collide.
func ID(fromOrderID, toOrderID string) string {
	return fromOrderID + Separator + toOrderID
}

// ValidOrderID reports whether id can be used in a segment id without
// ambiguity.
func ValidOrderID(id string) bool {
	if id == "" {
		return false
	}
	if !strings.Contains(id, Separator) {
		return true
	}
	return isUUID(id)
}

// SplitID recovers the order ids from a segment id.
func SplitID(id string) (from, to string, ok bool) {
	if len(id) > 37 && id[36] == '-' && isUUID(id[:36]) {
		return id[:36], id[37:], true
	}
	from, to, ok = strings.Cut(id, Separator)
	if !ok || from == "" || to == "" {
		return "", "", false
	}
	return from, to, true
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
