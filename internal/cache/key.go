package cache

import "time"

// Key identifies one cached aggregate: the owning user plus the two
// optional date-range bounds. An unset bound is distinct from every real
// date, and keys compare by value, so "user 1, open range" can never
// collide with "user 11" or with any concrete range.
type Key struct {
	UserID int64
	Start  Bound
	End    Bound
}

// Bound is a tri-state range bound: absent, or a specific instant
// normalized to unix seconds.
type Bound struct {
	Set  bool
	Unix int64
}

// BoundOf normalizes an optional time into a Bound.
func BoundOf(t *time.Time) Bound {
	if t == nil {
		return Bound{}
	}
	return Bound{Set: true, Unix: t.Unix()}
}

// NewKey builds the cache key for a (user, start?, end?) statistics query.
func NewKey(userID int64, start, end *time.Time) Key {
	return Key{
		UserID: userID,
		Start:  BoundOf(start),
		End:    BoundOf(end),
	}
}
