// Package pragma holds marker types that only affect static analysis.
package pragma

// DoNotCopy may be embedded in structs which must not be copied after first use,
// such as packets whose backing buffer is owned by exactly one holder.
//
// See https://golang.org/issues/8005#issuecomment-190753527 for details
type DoNotCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*DoNotCopy) Lock() {}

// Unlock is a no-op used by -copylocks checker from `go vet`.
func (*DoNotCopy) Unlock() {}
