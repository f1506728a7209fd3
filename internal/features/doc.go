// Package features derives the per-transaction flags consumed by the
// anomaly scorer and encodes them into the fixed feature vector.
//
// Date flags and the 3-sigma rule are pure per-record functions once group
// statistics are known. Opposite matching and the repeat scan need the whole
// batch; they run over a Snapshot, an immutable point-in-time copy, so that
// concurrent scoring never observes a batch that is being mutated.
package features
