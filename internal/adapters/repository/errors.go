package repository

import "errors"

// Sentinel kinds for rating store errors.
var (
	ErrItemNotFound     = errors.New("item not found")
	ErrItemExists       = errors.New("item already exists")
	ErrItemRetired      = errors.New("item retired")
	ErrScoreNotComputed = errors.New("score not computed")
	ErrInvalidLimit     = errors.New("invalid leaderboard limit")

	// ErrConflict marks a lost atomic-update race after local retries were
	// exhausted. MemStore never produces it (its mutations run under item
	// locks); it is part of the Store contract for optimistic-concurrency
	// implementations, and callers already retry and map it.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrTransient marks a timeout or temporary unavailability; safe to
	// retry at the ingestion boundary.
	ErrTransient = errors.New("transient storage error")
)
