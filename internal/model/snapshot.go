package model

import "time"

// FieldSnapshot pairs a safety-relevant value with the moment it was observed.
// A snapshot without a valid observation time is unusable no matter what
// value it carries.
type FieldSnapshot[T any] struct {
	Value      T
	ObservedAt time.Time
	Present    bool
}

// Observed builds a usable snapshot.
func Observed[T any](value T, at time.Time) FieldSnapshot[T] {
	return FieldSnapshot[T]{Value: value, ObservedAt: at, Present: true}
}

// Absent builds an unusable snapshot.
func Absent[T any]() FieldSnapshot[T] {
	return FieldSnapshot[T]{}
}

// HasObservation reports whether the snapshot carries both a value and an
// observation timestamp.
func (s FieldSnapshot[T]) HasObservation() bool {
	return s.Present && !s.ObservedAt.IsZero()
}

// Age returns the snapshot age relative to now. Snapshots without an
// observation report the maximum duration.
func (s FieldSnapshot[T]) Age(now time.Time) time.Duration {
	if !s.HasObservation() {
		return time.Duration(int64(^uint64(0) >> 1))
	}
	return now.Sub(s.ObservedAt)
}
