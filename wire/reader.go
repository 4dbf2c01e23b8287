package wire

import "bytes"

// Reader is a cursor over the payload of one message. Every extractor consumes
// exactly the encoded size of its argument.
type Reader struct {
	buf []byte
	off int
	fds FDSource
}

// NewReader returns a Reader over payload claiming descriptors from fds.
func NewReader(payload []byte, fds FDSource) *Reader {
	return &Reader{buf: payload, fds: fds}
}

// Remaining returns the number of unread payload bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Finish fails if unread payload bytes remain.
func (r *Reader) Finish() error {
	if n := r.Remaining(); n != 0 {
		return Malformed("%d trailing bytes", n)
	}
	return nil
}

func (r *Reader) word() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, Malformed("truncated argument at offset %d", r.off)
	}
	v := byteOrder.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

// Int decodes a signed integer.
func (r *Reader) Int() (int32, error) {
	v, err := r.word()
	return int32(v), err
}

// Uint decodes an unsigned integer.
func (r *Reader) Uint() (uint32, error) {
	return r.word()
}

// Fixed decodes a fixed-point number.
func (r *Reader) Fixed() (Fixed, error) {
	v, err := r.word()
	return Fixed(int32(v)), err
}

// Object decodes an object id that must not be null.
func (r *Reader) Object() (ObjectID, error) {
	id, err := r.NullableObject()
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, Malformed("null object at offset %d", r.off-4)
	}
	return id, nil
}

// NullableObject decodes an object id; zero means null.
func (r *Reader) NullableObject() (ObjectID, error) {
	v, err := r.word()
	return ObjectID(v), err
}

// NewID decodes a new_id whose interface is known from the signature.
func (r *Reader) NewID() (ObjectID, error) {
	return r.Object()
}

// UntypedNewID decodes a new_id carrying its interface name and version.
func (r *Reader) UntypedNewID() (NewID, error) {
	name, err := r.String()
	if err != nil {
		return NewID{}, err
	}
	version, err := r.Uint()
	if err != nil {
		return NewID{}, err
	}
	id, err := r.NewID()
	if err != nil {
		return NewID{}, err
	}
	return NewID{Interface: name, Version: version, ID: id}, nil
}

// String decodes a string that must not be null.
func (r *Reader) String() (string, error) {
	s, err := r.NullableString()
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", Malformed("null string at offset %d", r.off-4)
	}
	return *s, nil
}

// NullableString decodes a string, returning nil for the null string.
func (r *Reader) NullableString() (*string, error) {
	n, err := r.word()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	data, err := r.padded(n)
	if err != nil {
		return nil, err
	}
	if data[len(data)-1] != 0 {
		return nil, Malformed("string not NUL terminated")
	}
	data = data[:len(data)-1]
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, Malformed("string contains NUL")
	}
	s := string(data)
	return &s, nil
}

// Array decodes a byte array. The result is a copy of the payload bytes.
func (r *Reader) Array() ([]byte, error) {
	n, err := r.word()
	if err != nil {
		return nil, err
	}
	data, err := r.padded(n)
	if err != nil {
		return nil, err
	}
	return append([]byte{}, data...), nil
}

func (r *Reader) padded(n uint32) ([]byte, error) {
	size := (uint64(n) + 3) &^ 3
	if uint64(r.Remaining()) < size {
		return nil, Malformed("length %d overruns payload at offset %d", n, r.off-4)
	}
	data := r.buf[r.off : r.off+int(n)]
	r.off += int(size)
	return data, nil
}

// FD claims the next file descriptor.
func (r *Reader) FD() (*FD, error) {
	if r.fds == nil {
		return nil, ErrMissingFD
	}
	fd, ok := r.fds.PopFD()
	if !ok {
		return nil, ErrMissingFD
	}
	return fd, nil
}

// Enum decodes an enum argument, failing for values valid rejects.
func Enum[T ~uint32](r *Reader, valid func(T) bool) (T, error) {
	v, err := r.Uint()
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(T(v)) {
		return 0, Malformed("unknown enum value %d", v)
	}
	return T(v), nil
}
