package main

import (
	"fmt"

	"github.com/Zereker/wayland"
)

var (
	compositorInterface = &wayland.Interface{
		Name:    "wl_compositor",
		Version: 6,
		Requests: []wayland.Method{
			{Name: "create_surface", Signature: "n"},
			{Name: "create_region", Signature: "n"},
		},
	}

	surfaceInterface = &wayland.Interface{
		Name:    "wl_surface",
		Version: 6,
		Requests: []wayland.Method{
			{Name: "destroy", Signature: ""},
			{Name: "attach", Signature: "?oii"},
			{Name: "damage", Signature: "iiii"},
			{Name: "frame", Signature: "n"},
			{Name: "set_opaque_region", Signature: "?o"},
			{Name: "set_input_region", Signature: "?o"},
			{Name: "commit", Signature: ""},
			{Name: "set_buffer_transform", Signature: "2i"},
			{Name: "set_buffer_scale", Signature: "3i"},
			{Name: "damage_buffer", Signature: "4iiii"},
			{Name: "offset", Signature: "5ii"},
		},
		Events: []wayland.Method{
			{Name: "enter", Signature: "o"},
			{Name: "leave", Signature: "o"},
		},
		Errors: map[string]uint32{
			"invalid_scale":     0,
			"invalid_transform": 1,
			"invalid_size":      2,
			"invalid_offset":    3,
			"defunct_role":      4,
		},
	}

	regionInterface = &wayland.Interface{
		Name:    "wl_region",
		Version: 1,
		Requests: []wayland.Method{
			{Name: "destroy", Signature: ""},
			{Name: "add", Signature: "iiii"},
			{Name: "subtract", Signature: "iiii"},
		},
	}

	shmInterface = &wayland.Interface{
		Name:    "wl_shm",
		Version: 2,
		Requests: []wayland.Method{
			{Name: "create_pool", Signature: "nhi"},
			{Name: "release", Signature: "2"},
		},
		Events: []wayland.Method{{Name: "format", Signature: "u"}},
		Errors: map[string]uint32{
			"invalid_format": 0,
			"invalid_stride": 1,
			"invalid_fd":     2,
		},
	}

	shmPoolInterface = &wayland.Interface{
		Name:    "wl_shm_pool",
		Version: 2,
		Requests: []wayland.Method{
			{Name: "create_buffer", Signature: "niiiiu"},
			{Name: "destroy", Signature: ""},
			{Name: "resize", Signature: "i"},
		},
	}

	bufferInterface = &wayland.Interface{
		Name:     "wl_buffer",
		Version:  1,
		Requests: []wayland.Method{{Name: "destroy", Signature: ""}},
		Events:   []wayland.Method{{Name: "release", Signature: ""}},
	}

	seatInterface = &wayland.Interface{
		Name:    "wl_seat",
		Version: 9,
		Requests: []wayland.Method{
			{Name: "get_pointer", Signature: "n"},
			{Name: "get_keyboard", Signature: "n"},
			{Name: "get_touch", Signature: "n"},
			{Name: "release", Signature: "5"},
		},
		Events: []wayland.Method{
			{Name: "capabilities", Signature: "u"},
			{Name: "name", Signature: "2s"},
		},
	}

	pointerInterface = &wayland.Interface{
		Name:    "wl_pointer",
		Version: 9,
		Requests: []wayland.Method{
			{Name: "set_cursor", Signature: "u?oii"},
			{Name: "release", Signature: "3"},
		},
	}

	keyboardInterface = &wayland.Interface{
		Name:     "wl_keyboard",
		Version:  9,
		Requests: []wayland.Method{{Name: "release", Signature: "3"}},
	}

	touchInterface = &wayland.Interface{
		Name:     "wl_touch",
		Version:  9,
		Requests: []wayland.Method{{Name: "release", Signature: "3"}},
	}

	outputInterface = &wayland.Interface{
		Name:     "wl_output",
		Version:  4,
		Requests: []wayland.Method{{Name: "release", Signature: "3"}},
		Events: []wayland.Method{
			{Name: "geometry", Signature: "iiiiissi"},
			{Name: "mode", Signature: "uiii"},
			{Name: "done", Signature: "2"},
			{Name: "scale", Signature: "2i"},
			{Name: "name", Signature: "4s"},
			{Name: "description", Signature: "4s"},
		},
	}
)

// interfaces are the protocol objects wldump can advertise as globals.
var interfaces = map[string]*wayland.Interface{
	compositorInterface.Name: compositorInterface,
	shmInterface.Name:        shmInterface,
	seatInterface.Name:       seatInterface,
	outputInterface.Name:     outputInterface,
}

// children maps "interface.request" to the interface of the object the
// request creates.
var children = map[string]*wayland.Interface{
	"wl_compositor.create_surface": surfaceInterface,
	"wl_compositor.create_region":  regionInterface,
	"wl_surface.frame":             wayland.CallbackInterface,
	"wl_shm.create_pool":           shmPoolInterface,
	"wl_shm_pool.create_buffer":    bufferInterface,
	"wl_seat.get_pointer":          pointerInterface,
	"wl_seat.get_keyboard":         keyboardInterface,
	"wl_seat.get_touch":            touchInterface,
}

// destructors are the request names that end an object's lifetime.
var destructors = map[string]bool{
	"destroy": true,
	"release": true,
}

// defaultGlobals is advertised when the configuration names none.
var defaultGlobals = []wayland.GlobalConfig{
	{Interface: "wl_compositor", Version: 6},
	{Interface: "wl_shm", Version: 1},
	{Interface: "wl_seat", Version: 9},
	{Interface: "wl_output", Version: 4},
}

// lookupGlobals resolves configured globals against the interface table.
func lookupGlobals(configured []wayland.GlobalConfig) ([]*wayland.Interface, error) {
	if len(configured) == 0 {
		configured = defaultGlobals
	}

	ifaces := make([]*wayland.Interface, 0, len(configured))
	for _, g := range configured {
		iface, ok := interfaces[g.Interface]
		if !ok {
			return nil, fmt.Errorf("no description for interface %s", g.Interface)
		}
		if g.Version > iface.Version {
			return nil, fmt.Errorf("%s supports up to version %d, configured %d", g.Interface, iface.Version, g.Version)
		}
		advertised := *iface
		advertised.Version = g.Version
		ifaces = append(ifaces, &advertised)
	}
	return ifaces, nil
}
