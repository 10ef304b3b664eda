// Package state holds the in-process record of what a component is currently
// tracking.
//
// Responsibilities:
//   - Store[T] loads/saves exactly one value per Ref and replaces it whole.
//   - Meta is storage-owned: SnapshotID comes from the caller, while ETag and
//     UpdatedAt are assigned by the store on every save.
//   - A save that carries an ETag only succeeds while the stored record still
//     has that ETag, so readers that raced with a newer save can detect it.
//
// Nothing here outlives the process; MemoryStore is the only implementation
// shipped.
package state
