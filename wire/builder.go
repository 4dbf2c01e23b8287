package wire

// Builder accumulates the arguments of one outbound message.
type Builder struct {
	buf []byte
	fds []int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) word(v uint32) *Builder {
	b.buf = byteOrder.AppendUint32(b.buf, v)
	return b
}

func (b *Builder) pad() {
	for len(b.buf)%4 != 0 {
		b.buf = append(b.buf, 0)
	}
}

// Int appends a signed integer.
func (b *Builder) Int(v int32) *Builder { return b.word(uint32(v)) }

// Uint appends an unsigned integer or enum value.
func (b *Builder) Uint(v uint32) *Builder { return b.word(v) }

// Fixed appends a fixed-point number.
func (b *Builder) Fixed(v Fixed) *Builder { return b.word(uint32(v)) }

// Object appends an object id. Zero encodes null.
func (b *Builder) Object(id ObjectID) *Builder { return b.word(uint32(id)) }

// NewID appends a new_id whose interface is known from the signature.
func (b *Builder) NewID(id ObjectID) *Builder { return b.word(uint32(id)) }

// UntypedNewID appends a new_id carrying its interface name and version.
func (b *Builder) UntypedNewID(n NewID) *Builder {
	return b.String(n.Interface).Uint(n.Version).NewID(n.ID)
}

// String appends a string. The encoded length counts the terminating NUL.
func (b *Builder) String(s string) *Builder {
	b.word(uint32(len(s) + 1))
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	b.pad()
	return b
}

// NullableString appends s, or a null string if s is nil.
func (b *Builder) NullableString(s *string) *Builder {
	if s == nil {
		return b.word(0)
	}
	return b.String(*s)
}

// Array appends a byte array.
func (b *Builder) Array(data []byte) *Builder {
	b.word(uint32(len(data)))
	b.buf = append(b.buf, data...)
	b.pad()
	return b
}

// FD attaches a file descriptor. The built message takes ownership of it.
func (b *Builder) FD(fd int) *Builder {
	b.fds = append(b.fds, fd)
	return b
}

// Bytes returns the encoded payload and the attached descriptors.
func (b *Builder) Bytes() ([]byte, []int) {
	return b.buf, b.fds
}

// Message frames the accumulated arguments as a message from sender.
func (b *Builder) Message(sender ObjectID, opcode uint16) (Message, error) {
	if sender == 0 {
		return Message{}, ErrInvalidSenderID
	}
	if len(b.buf) > MaxPayloadSize {
		return Message{}, InvalidLength(HeaderSize + len(b.buf))
	}
	return Message{Sender: sender, Opcode: opcode, Payload: b.buf, FDs: b.fds}, nil
}
