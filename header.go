package vmem_go

import (
	"encoding/binary"
	"fmt"
)

// Persisted layout, little-endian:
//
//	0               tail     uint32
//	4               head     uint32
//	8               offsets  [entries]uint32
//	8+4*entries     data     [dataSize]byte, circular
const (
	headerFixedSize = 8
	offsetSize      = 4
)

// RingState is the persisted cursor and offset table of a ring.
type RingState struct {
	Tail    uint32
	Head    uint32
	Offsets []uint32
}

func headerSize(entries uint32) int64 {
	return headerFixedSize + offsetSize*int64(entries)
}

func newRingState(entries uint32) RingState {
	return RingState{Offsets: make([]uint32, entries)}
}

func (state RingState) clone() RingState {
	offsets := make([]uint32, len(state.Offsets))
	copy(offsets, state.Offsets)
	return RingState{Tail: state.Tail, Head: state.Head, Offsets: offsets}
}

func (state RingState) count() uint32 {
	return distance(state.Tail, state.Head, uint32(len(state.Offsets)))
}

func (state RingState) marshal() []byte {
	buf := make([]byte, headerSize(uint32(len(state.Offsets))))
	binary.LittleEndian.PutUint32(buf[0:], state.Tail)
	binary.LittleEndian.PutUint32(buf[4:], state.Head)
	for i, offset := range state.Offsets {
		binary.LittleEndian.PutUint32(buf[headerFixedSize+offsetSize*i:], offset)
	}
	return buf
}

func unmarshalRingState(buf []byte, entries uint32) RingState {
	state := newRingState(entries)
	state.Tail = binary.LittleEndian.Uint32(buf[0:])
	state.Head = binary.LittleEndian.Uint32(buf[4:])
	for i := range state.Offsets {
		state.Offsets[i] = binary.LittleEndian.Uint32(buf[headerFixedSize+offsetSize*i:])
	}
	return state
}

// validate checks a recovered header against the ring geometry.
func (state RingState) validate(dataSize uint32) error {
	entries := uint32(len(state.Offsets))
	if state.Tail >= entries {
		return fmt.Errorf("%w: tail %d >= entries %d", ErrCorruptState, state.Tail, entries)
	}
	if state.Head >= entries {
		return fmt.Errorf("%w: head %d >= entries %d", ErrCorruptState, state.Head, entries)
	}
	for i, offset := range state.Offsets {
		if offset >= dataSize {
			return fmt.Errorf("%w: offsets[%d] = %d >= data size %d", ErrCorruptState, i, offset, dataSize)
		}
	}

	var used uint64
	for s := state.Tail; s != state.Head; s = NextSlot(s, entries) {
		used += uint64(distance(state.Offsets[s], state.Offsets[NextSlot(s, entries)], dataSize))
	}
	if used > uint64(dataSize) {
		return fmt.Errorf("%w: retained records span %d bytes > data size %d", ErrCorruptState, used, dataSize)
	}
	return nil
}
