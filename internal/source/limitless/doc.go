// Package limitless extracts card metadata from Limitless TCG card pages.
//
// A set is enumerated by card number: /cards/<lang>/<set>/<n>. Each page
// describes exactly one card, so the enumeration has no pagination wrap and
// runs without loop detection.
package limitless
