package protocol

// DefaultBufferSize is the initial capacity of a receive Buffer.
const DefaultBufferSize = 1024

// Buffer accumulates bytes from successive network reads and hands out the
// frames they complete. The store grows when a frame larger than the current
// capacity is announced, up to the maximum frame size.
//
// A Buffer is owned by a single reader goroutine and is not safe for
// concurrent use.
type Buffer struct {
	data         []byte
	fill         int
	maxFrameSize uint32
}

// NewBuffer creates a Buffer.
//
// Parameters:
//   - initialSize: Initial capacity in bytes; values below HeaderSize are
//     raised to DefaultBufferSize
//   - maxFrameSize: Largest declared frame length accepted; 0 selects
//     DefaultMaxFrameSize
//
// Returns:
//   - A new, empty Buffer
func NewBuffer(initialSize int, maxFrameSize uint32) *Buffer {
	if initialSize < HeaderSize {
		initialSize = DefaultBufferSize
	}

	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}

	return &Buffer{
		data:         make([]byte, initialSize),
		maxFrameSize: maxFrameSize,
	}
}

// Free returns the unfilled region of the store, to be passed to the next
// read. Its length is Cap() - Len().
func (b *Buffer) Free() []byte {
	return b.data[b.fill:]
}

// Append records that n bytes were written at the start of Free().
// It panics if n exceeds the free space.
func (b *Buffer) Append(n int) {
	if n < 0 || b.fill+n > len(b.data) {
		panic("protocol: buffer append out of range")
	}

	b.fill += n
}

// Write copies p into the buffer, growing the store as needed. It is the
// io.Writer counterpart of Free/Append for callers that do not read
// directly into the buffer.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) > len(b.Free()) {
		b.grow(b.fill + len(p))
	}

	n := copy(b.data[b.fill:], p)
	b.fill += n
	return n, nil
}

// Bytes returns the filled, unconsumed bytes.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.fill]
}

// Len returns the number of filled, unconsumed bytes.
func (b *Buffer) Len() int {
	return b.fill
}

// Cap returns the current capacity of the store.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Consume drops the first n filled bytes and compacts the tail to offset 0,
// so consumed bytes are never revisited.
func (b *Buffer) Consume(n int) {
	if n <= 0 {
		return
	}

	if n >= b.fill {
		b.fill = 0
		return
	}

	copy(b.data, b.data[n:b.fill])
	b.fill -= n
}

// Reset discards all buffered bytes, keeping the store.
func (b *Buffer) Reset() {
	b.fill = 0
}

// Frames runs one decode round: it extracts every complete frame, drops the
// bytes they occupied and, if a partial frame remains whose declared size
// exceeds the capacity, grows the store so the rest of it can be read.
//
// Returns:
//   - The completed frames, in arrival order
//   - An error wrapping ErrProtocol if a declared length is out of bounds;
//     frames completed before it are still returned
func (b *Buffer) Frames() ([]Frame, error) {
	frames, consumed, err := Decode(b.Bytes(), b.maxFrameSize)
	b.Consume(consumed)
	if err != nil {
		return frames, err
	}

	if b.fill >= LengthSize {
		length, err := declaredLength(b.data[:LengthSize], b.maxFrameSize)
		if err != nil {
			return frames, err
		}

		if need := LengthSize + int(length); need > len(b.data) {
			b.grow(need)
		}
	}

	return frames, nil
}

// grow enlarges the store to at least need bytes, doubling where that stays
// within the largest possible frame.
func (b *Buffer) grow(need int) {
	size := len(b.data) * 2
	limit := LengthSize + int(b.maxFrameSize)
	if size > limit {
		size = limit
	}

	if size < need {
		size = need
	}

	data := make([]byte, size)
	copy(data, b.data[:b.fill])
	b.data = data
}
