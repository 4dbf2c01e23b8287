package wayland

import (
	"github.com/Zereker/wayland/wire"
)

// Method describes one request or event of an interface: its name and its
// argument signature in libwayland notation.
type Method struct {
	Name      string
	Signature string
}

// Interface describes a protocol interface. Request and event opcodes are the
// indices into Requests and Events.
type Interface struct {
	Name     string
	Version  uint32
	Requests []Method
	Events   []Method
	// Errors lists the interface's protocol error codes by name.
	Errors map[string]uint32
}

// Request returns the request with opcode op.
func (i *Interface) Request(op uint16) (Method, error) {
	if int(op) >= len(i.Requests) {
		return Method{}, wire.UnknownOpcode(op)
	}
	return i.Requests[op], nil
}

// Event returns the event with opcode op.
func (i *Interface) Event(op uint16) (Method, error) {
	if int(op) >= len(i.Events) {
		return Method{}, wire.UnknownOpcode(op)
	}
	return i.Events[op], nil
}

// DecodeRequest decodes the arguments of m according to its request
// signature, claiming exactly the descriptors the signature declares.
func (i *Interface) DecodeRequest(m *wire.Message) (Method, []wire.Arg, error) {
	method, err := i.Request(m.Opcode)
	if err != nil {
		return Method{}, nil, err
	}
	sig, err := wire.ParseSignature(method.Signature)
	if err != nil {
		return method, nil, wire.Malformed("%s.%s: %v", i.Name, method.Name, err)
	}
	args, err := m.Reader().Args(sig)
	return method, args, err
}

// Described is implemented by handlers that expose their interface.
type Described interface {
	Interface() *Interface
}
