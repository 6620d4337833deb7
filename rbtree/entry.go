package rbtree

// Entry is the value type stored per key: the current value, the
// sequence number that produced it, and whether it represents a tombstone
// (spec §3: "A delete is represented as a tombstone"). Both the standalone
// red-black-tree engine and the LSM memtable (spec §4.3.1) use this same
// shape; the two differ only in whether Delete physically removes the
// node (standalone engine) or inserts a tombstone Entry (memtable).
type Entry struct {
	Value   []byte
	SeqNum  uint64
	Deleted bool
}
