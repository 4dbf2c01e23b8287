package wire

import (
	"fmt"
	"strings"
)

// ArgType is an argument kind as written in libwayland signature strings.
type ArgType byte

// Argument kinds.
const (
	ArgInt    ArgType = 'i'
	ArgUint   ArgType = 'u'
	ArgFixed  ArgType = 'f'
	ArgString ArgType = 's'
	ArgObject ArgType = 'o'
	ArgNewID  ArgType = 'n'
	ArgArray  ArgType = 'a'
	ArgFD     ArgType = 'h'
)

// ArgSpec describes one argument of a signature.
type ArgSpec struct {
	Type     ArgType
	Nullable bool
}

// Signature is the ordered argument list of a request or event. A new_id of
// unknown interface is spelled "sun", as in libwayland.
type Signature []ArgSpec

// ParseSignature parses a signature string such as "?ouh". A leading since
// version is ignored.
func ParseSignature(s string) (Signature, error) {
	s = strings.TrimLeft(s, "0123456789")
	var sig Signature
	nullable := false
	for i := 0; i < len(s); i++ {
		c := ArgType(s[i])
		switch c {
		case '?':
			nullable = true
			continue
		case ArgInt, ArgUint, ArgFixed, ArgArray, ArgFD:
			if nullable {
				return nil, fmt.Errorf("wire: argument %q cannot be nullable", c)
			}
		case ArgString, ArgObject, ArgNewID:
		default:
			return nil, fmt.Errorf("wire: unknown argument type %q", c)
		}
		sig = append(sig, ArgSpec{Type: c, Nullable: nullable})
		nullable = false
	}
	if nullable {
		return nil, fmt.Errorf("wire: dangling '?' in signature %q", s)
	}
	return sig, nil
}

// FDCount returns the number of descriptors a message with this signature
// carries.
func (s Signature) FDCount() int {
	n := 0
	for _, a := range s {
		if a.Type == ArgFD {
			n++
		}
	}
	return n
}

// String formats s back into its signature string.
func (s Signature) String() string {
	var b strings.Builder
	for _, a := range s {
		if a.Nullable {
			b.WriteByte('?')
		}
		b.WriteByte(byte(a.Type))
	}
	return b.String()
}

// Arg is one decoded argument. Value holds an int32, uint32, Fixed, *string,
// ObjectID, []byte or *FD depending on Type.
type Arg struct {
	Type  ArgType
	Value any
}

func (a Arg) String() string {
	switch v := a.Value.(type) {
	case *string:
		if v == nil {
			return "nil"
		}
		return fmt.Sprintf("%q", *v)
	case ObjectID:
		if v == 0 {
			return "nil"
		}
		if a.Type == ArgNewID {
			return fmt.Sprintf("new id %d", v)
		}
		return fmt.Sprintf("object %d", v)
	case Fixed:
		return fmt.Sprintf("%g", v.Float())
	case []byte:
		return fmt.Sprintf("array[%d]", len(v))
	case *FD:
		return fmt.Sprintf("fd %d", v.Raw())
	default:
		return fmt.Sprint(v)
	}
}

// Args decodes every argument of sig and checks that the payload is fully
// consumed.
func (r *Reader) Args(sig Signature) ([]Arg, error) {
	args := make([]Arg, 0, len(sig))
	for _, spec := range sig {
		var (
			v   any
			err error
		)
		switch spec.Type {
		case ArgInt:
			v, err = r.Int()
		case ArgUint:
			v, err = r.Uint()
		case ArgFixed:
			v, err = r.Fixed()
		case ArgString:
			if spec.Nullable {
				v, err = r.NullableString()
			} else {
				var s string
				s, err = r.String()
				v = &s
			}
		case ArgObject, ArgNewID:
			if spec.Nullable {
				v, err = r.NullableObject()
			} else {
				v, err = r.Object()
			}
		case ArgArray:
			v, err = r.Array()
		case ArgFD:
			v, err = r.FD()
		default:
			err = Malformed("unknown argument type %q", spec.Type)
		}
		if err != nil {
			return nil, err
		}
		args = append(args, Arg{Type: spec.Type, Value: v})
	}
	return args, r.Finish()
}

// Args appends args in order.
func (b *Builder) Args(args []Arg) error {
	for _, a := range args {
		switch v := a.Value.(type) {
		case int32:
			b.Int(v)
		case uint32:
			b.Uint(v)
		case Fixed:
			b.Fixed(v)
		case *string:
			b.NullableString(v)
		case string:
			b.String(v)
		case ObjectID:
			b.Object(v)
		case []byte:
			b.Array(v)
		case *FD:
			fd, ok := v.TakeRaw()
			if !ok {
				return ErrMissingFD
			}
			b.FD(fd)
		case int:
			b.FD(v)
		default:
			return fmt.Errorf("wire: cannot encode %T argument", a.Value)
		}
	}
	return nil
}
