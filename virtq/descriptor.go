package virtq

// descFlag marks properties of a single descriptor table entry, matching
// the transport wire layout.
type descFlag uint16

const (
	// flagNext continues the chain via the next field.
	flagNext descFlag = 1 << iota
	// flagWrite marks the buffer device write-only (otherwise the device
	// only reads it).
	flagWrite
)

// descriptor is one entry of the descriptor table. The data slice stands
// in for the (address, length) pair of the wire layout; the transport is
// in-process, so buffers are referenced directly.
type descriptor struct {
	data  []byte
	flags descFlag
	next  uint16
}

// chainState tracks which ring currently owns a descriptor index. An
// index cycles strictly free -> avail -> complete -> free; chained
// (non-head) indices are parked until their head is reclaimed.
type chainState uint8

const (
	stateFree chainState = iota
	stateAvail
	stateComplete
	stateChained
)
