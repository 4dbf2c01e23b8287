package wire

// Framing constants.
const (
	// HeaderSize is the size of the sender/opcode/length header.
	HeaderSize = 8
	// MaxMessageSize is the largest total length a header can declare.
	MaxMessageSize = 65532
	// MaxPayloadSize is the largest payload a message can carry.
	MaxPayloadSize = MaxMessageSize - HeaderSize
)

// Message is one framed request or event.
//
// FDs lists the descriptors sent with an outbound message; the message owns
// them until they are written. Inbound messages leave FDs empty: descriptors
// are claimed through Reader from the socket's queue.
type Message struct {
	Sender  ObjectID
	Opcode  uint16
	Payload []byte
	FDs     []int

	queue FDSource
}

// Size returns the total encoded length of m, header included.
func (m *Message) Size() int {
	return HeaderSize + len(m.Payload)
}

// Reader returns a cursor over the payload. File descriptor arguments are
// served from the receiving socket's queue, or from FDs for messages that
// were built locally.
func (m *Message) Reader() *Reader {
	if m.queue != nil {
		return NewReader(m.Payload, m.queue)
	}
	return NewReader(m.Payload, &fdList{fds: m.FDs})
}

// Encode appends the encoded header and payload of m to buf. The caller hands
// m.FDs to the descriptor channel separately.
func Encode(buf []byte, m Message) ([]byte, error) {
	if m.Sender == 0 {
		return buf, ErrInvalidSenderID
	}
	size := m.Size()
	if size > MaxMessageSize || len(m.Payload)%4 != 0 {
		return buf, InvalidLength(size)
	}

	var hdr [HeaderSize]byte
	byteOrder.PutUint32(hdr[0:4], uint32(m.Sender))
	byteOrder.PutUint16(hdr[4:6], m.Opcode)
	byteOrder.PutUint16(hdr[6:8], uint16(size))
	buf = append(buf, hdr[:]...)
	return append(buf, m.Payload...), nil
}

// Decode decodes the first message in buf.
//
// If buf does not hold a complete message, Decode returns need > 0: the
// number of bytes still missing, or the minimum missing while the header
// itself is incomplete. Otherwise the returned message's payload aliases buf
// and the caller consumes msg.Size() bytes.
func Decode(buf []byte) (msg Message, need int, err error) {
	if len(buf) < HeaderSize {
		return Message{}, HeaderSize - len(buf), nil
	}

	sender := byteOrder.Uint32(buf[0:4])
	opcode := byteOrder.Uint16(buf[4:6])
	size := int(byteOrder.Uint16(buf[6:8]))

	if size < HeaderSize || size%4 != 0 || size > MaxMessageSize {
		return Message{}, 0, InvalidLength(size)
	}
	if sender == 0 {
		return Message{}, 0, ErrInvalidSenderID
	}
	if len(buf) < size {
		return Message{}, size - len(buf), nil
	}

	return Message{
		Sender:  ObjectID(sender),
		Opcode:  opcode,
		Payload: buf[HeaderSize:size:size],
	}, 0, nil
}
