package wayland

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Zereker/wayland/wire"
)

func TestInterface_Lookup(t *testing.T) {
	m, err := DisplayInterface.Request(1)
	if err != nil || m.Name != "get_registry" {
		t.Errorf("Request(1) = %v, %v", m, err)
	}
	m, err = DisplayInterface.Event(0)
	if err != nil || m.Name != "error" {
		t.Errorf("Event(0) = %v, %v", m, err)
	}

	if _, err := DisplayInterface.Request(2); !errors.Is(err, wire.UnknownOpcode(2)) {
		t.Errorf("expected UnknownOpcode(2), got %v", err)
	}
	if _, err := CallbackInterface.Request(0); !errors.Is(err, wire.ErrUnknownOpcode) {
		t.Errorf("expected ErrUnknownOpcode, got %v", err)
	}
}

func TestInterface_DecodeRequest(t *testing.T) {
	msg, err := wire.NewBuilder().
		Uint(3).
		UntypedNewID(wire.NewID{Interface: "wl_compositor", Version: 4, ID: 7}).
		Message(2, 0)
	if err != nil {
		t.Fatalf("Message failed: %v", err)
	}

	method, args, err := RegistryInterface.DecodeRequest(&msg)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if method.Name != "bind" {
		t.Errorf("method = %s, want bind", method.Name)
	}

	var got []string
	for _, a := range args {
		got = append(got, a.String())
	}
	want := []string{"3", `"wl_compositor"`, "4", "new id 7"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestInterface_DecodeRequestErrors(t *testing.T) {
	short := wire.Message{Sender: 2, Opcode: 0, Payload: []byte{3, 0, 0, 0}}
	if _, _, err := RegistryInterface.DecodeRequest(&short); !errors.Is(err, wire.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}

	unknown := wire.Message{Sender: 2, Opcode: 1}
	if _, _, err := RegistryInterface.DecodeRequest(&unknown); !errors.Is(err, wire.UnknownOpcode(1)) {
		t.Errorf("expected UnknownOpcode(1), got %v", err)
	}

	broken := &Interface{Name: "broken", Requests: []Method{{Name: "x", Signature: "q"}}}
	if _, _, err := broken.DecodeRequest(&wire.Message{Sender: 2}); !errors.Is(err, wire.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
}
