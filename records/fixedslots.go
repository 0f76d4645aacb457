package records

import (
	"errors"
	"fmt"
)

var (
	ErrSlotIndex         = errors.New("fixed slot index out of range")
	ErrSlotValueTooLong  = errors.New("value is wider than the fixed slot")
	ErrSlotBufferUneven  = errors.New("buffer length is not a multiple of the slot width")
	ErrSlotWidthNotValid = errors.New("fixed slot width must be positive")
)

// FixedSlots is a packed array of equal width byte slots. All offset
// arithmetic for the positional generations goes through it.
type FixedSlots struct {
	width int
	data  []byte
}

func NewFixedSlots(width int, data []byte) (FixedSlots, error) {
	if width <= 0 {
		return FixedSlots{}, ErrSlotWidthNotValid
	}
	if len(data)%width != 0 {
		return FixedSlots{}, fmt.Errorf("%w: %d %% %d", ErrSlotBufferUneven, len(data), width)
	}
	return FixedSlots{width: width, data: data}, nil
}

func (s FixedSlots) Width() int { return s.width }

func (s FixedSlots) Len() int {
	if s.width == 0 {
		return 0
	}
	return len(s.data) / s.width
}

// Bytes returns the packed slots. The result aliases the slot storage.
func (s FixedSlots) Bytes() []byte { return s.data }

// At returns slot i. The result aliases the slot storage.
func (s FixedSlots) At(i int) ([]byte, error) {
	start, end, err := s.bounds(i)
	if err != nil {
		return nil, err
	}
	return s.data[start:end:end], nil
}

// Set overwrites slot i with v, zero padding on the right.
func (s FixedSlots) Set(i int, v []byte) error {
	start, end, err := s.bounds(i)
	if err != nil {
		return err
	}
	if len(v) > s.width {
		return fmt.Errorf("%w: %d > %d", ErrSlotValueTooLong, len(v), s.width)
	}
	n := copy(s.data[start:end], v)
	clear(s.data[start+n : end])
	return nil
}

// Append adds v as a new last slot, zero padded on the right.
func (s *FixedSlots) Append(v []byte) error {
	if s.width <= 0 {
		return ErrSlotWidthNotValid
	}
	if len(v) > s.width {
		return fmt.Errorf("%w: %d > %d", ErrSlotValueTooLong, len(v), s.width)
	}
	slot := make([]byte, s.width)
	copy(slot, v)
	s.data = append(s.data, slot...)
	return nil
}

// Remove deletes slot i, shifting the later slots down by one.
func (s *FixedSlots) Remove(i int) error {
	start, end, err := s.bounds(i)
	if err != nil {
		return err
	}
	s.data = append(s.data[:start], s.data[end:]...)
	return nil
}

// Index returns the first slot equal to v once zero padded, or -1.
func (s FixedSlots) Index(v []byte) int {
	if len(v) > s.width {
		return -1
	}
	for i := 0; i < s.Len(); i++ {
		slot := s.data[i*s.width : (i+1)*s.width]
		if equalPadded(slot, v) {
			return i
		}
	}
	return -1
}

func (s FixedSlots) bounds(i int) (int, int, error) {
	if i < 0 || i >= s.Len() {
		return 0, 0, fmt.Errorf("%w: %d of %d", ErrSlotIndex, i, s.Len())
	}
	return i * s.width, (i + 1) * s.width, nil
}

func equalPadded(slot, v []byte) bool {
	for j := range slot {
		var b byte
		if j < len(v) {
			b = v[j]
		}
		if slot[j] != b {
			return false
		}
	}
	return true
}
