package wayland

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Zereker/wayland/wire"
)

// createTestUnixPair creates a connected pair of unix stream connections.
func createTestUnixPair(t *testing.T) (*net.UnixConn, *net.UnixConn) {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair failed: %v", err)
	}

	wrap := func(fd int) *net.UnixConn {
		f := os.NewFile(uintptr(fd), "socketpair")
		defer f.Close()
		c, err := net.FileConn(f)
		if err != nil {
			t.Fatalf("FileConn failed: %v", err)
		}
		return c.(*net.UnixConn)
	}

	return wrap(fds[0]), wrap(fds[1])
}

// createTestPeer wraps the peer side of a pair for writing raw messages.
func createTestPeer(t *testing.T, conn *net.UnixConn) *wire.Socket {
	t.Helper()

	sock, err := wire.NewSocket(conn)
	if err != nil {
		t.Fatalf("NewSocket failed: %v", err)
	}
	t.Cleanup(func() { sock.Close() })
	return sock
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// runConn starts c.Run and returns a channel receiving its result.
func runConn(ctx context.Context, c *Conn) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
		return nil
	}
}

var testInterface = &Interface{
	Name:    "test_object",
	Version: 1,
	Requests: []Method{
		{Name: "ping", Signature: "u"},
		{Name: "attach", Signature: "h"},
		{Name: "fail", Signature: "s"},
	},
	Events: []Method{{Name: "pong", Signature: "u"}},
}

// testObject echoes ping as pong, claims fds on attach and fails on fail.
type testObject struct {
	pings chan uint32
	fds   chan *wire.FD
}

func newTestObject() *testObject {
	return &testObject{
		pings: make(chan uint32, 10),
		fds:   make(chan *wire.FD, 10),
	}
}

func (o *testObject) Interface() *Interface { return testInterface }

func (o *testObject) Dispatch(ctx context.Context, c *Conn, sender wire.ObjectID, m *wire.Message) error {
	if _, err := testInterface.Request(m.Opcode); err != nil {
		return err
	}

	r := m.Reader()
	switch m.Opcode {
	case 0:
		v, err := r.Uint()
		if err != nil {
			return err
		}
		o.pings <- v
		return c.Post(ctx, sender, 0, wire.NewBuilder().Uint(v))
	case 1:
		fd, err := r.FD()
		if err != nil {
			return err
		}
		o.fds <- fd
		return nil
	default:
		s, err := r.String()
		if err != nil {
			return err
		}
		return wire.Errorf("%s", s)
	}
}

func TestNewConn(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)
	defer clientConn.Close()

	obj := newTestObject()
	conn, err := NewConn(serverConn, ObjectOption(3, obj))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	defer conn.Close()

	if conn.opts.bufferSize != defaultBufferSize {
		t.Errorf("bufferSize = %d, want %d", conn.opts.bufferSize, defaultBufferSize)
	}
	if conn.Role() != RoleServer {
		t.Errorf("Role = %v, want server", conn.Role())
	}
	if h, ok := conn.Store().Get(3); !ok || h != obj {
		t.Error("object 3 not registered")
	}
}

func TestNewConn_WithAllOptions(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)
	defer clientConn.Close()

	logger := &mockLogger{}
	conn, err := NewConn(serverConn,
		BufferSizeOption(10),
		RoleOption(RoleClient),
		LoggerOption(logger),
		OnErrorOption(func(error) ErrorAction { return Continue }),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	defer conn.Close()

	if conn.opts.bufferSize != 10 {
		t.Errorf("bufferSize = %d, want 10", conn.opts.bufferSize)
	}
	if conn.Role() != RoleClient {
		t.Errorf("Role = %v, want client", conn.Role())
	}
	if id, _ := conn.Store().NextID(); id != 2 {
		t.Errorf("first client id = %d, want 2", id)
	}
	if conn.opts.onError(errors.New("x")) != Continue {
		t.Error("onError not set")
	}
}

func TestCheckOptions_DefaultOnError(t *testing.T) {
	var opts options
	checkOptions(&opts)

	// Default onError should return Disconnect
	if opts.onError(errors.New("test")) != Disconnect {
		t.Error("default onError should return Disconnect")
	}
	if opts.logger == nil {
		t.Error("logger should have default value")
	}
}

func TestConn_NextSerial(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	defer conn.Close()

	for want := uint32(0); want < 3; want++ {
		if got := conn.NextSerial(); got != want {
			t.Errorf("NextSerial = %d, want %d", got, want)
		}
	}

	conn.serial.Store(0xFFFFFFFF)
	if got := conn.NextSerial(); got != 0xFFFFFFFF {
		t.Errorf("NextSerial = %d, want 0xFFFFFFFF", got)
	}
	if got := conn.NextSerial(); got != 0 {
		t.Errorf("NextSerial after wrap = %d, want 0", got)
	}
}

func TestConn_Send_BufferFull(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn, BufferSizeOption(1))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	defer conn.Close()

	msg := wire.Message{Sender: 1, Opcode: 0}

	// Fill the channel
	if err := conn.Send(msg); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}

	if err := conn.Send(msg); err != ErrBufferFull {
		t.Errorf("expected ErrBufferFull, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := conn.SendBlocking(ctx, msg); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	if err := conn.SendTimeout(msg, 10*time.Millisecond); err != ErrBufferFull {
		t.Errorf("expected ErrBufferFull, got %v", err)
	}
}

func TestConn_Send_Invalid(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if err := conn.Send(wire.Message{}); !errors.Is(err, wire.ErrInvalidSenderID) {
		t.Errorf("expected ErrInvalidSenderID, got %v", err)
	}
	if err := conn.Send(wire.Message{Sender: 1, Payload: []byte{1}}); !errors.Is(err, wire.ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}

	conn.Close()
	if !conn.IsClosed() {
		t.Error("IsClosed should be true after Close")
	}
	if err := conn.Send(wire.Message{Sender: 1}); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestConn_Run_ContextCanceled(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runConn(ctx, conn)

	cancel()

	if err := waitRun(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if !conn.IsClosed() {
		t.Error("connection should be closed after Run")
	}
}

func TestConn_Run_PeerClose(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)

	conn, err := NewConn(serverConn)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	done := runConn(context.Background(), conn)
	clientConn.Close()

	if err := waitRun(t, done); err != nil {
		t.Errorf("expected nil on orderly close, got %v", err)
	}
}

func TestConn_Run_Dispatch(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)
	peer := createTestPeer(t, clientConn)
	ctx := testContext(t)

	obj := newTestObject()
	conn, err := NewConn(serverConn, ObjectOption(3, obj))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	done := runConn(ctx, conn)

	for i := uint32(0); i < 5; i++ {
		msg, _ := wire.NewBuilder().Uint(i).Message(3, 0)
		if err := peer.WriteMessage(ctx, msg); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
	}

	for i := uint32(0); i < 5; i++ {
		ev, err := peer.ReadMessage(ctx)
		if err != nil {
			t.Fatalf("ReadMessage failed: %v", err)
		}
		v, err := ev.Reader().Uint()
		if ev.Sender != 3 || ev.Opcode != 0 || err != nil || v != i {
			t.Errorf("event %d = %d/%d carrying %d, %v", i, ev.Sender, ev.Opcode, v, err)
		}
		if got := <-obj.pings; got != i {
			t.Errorf("ping %d dispatched as %d", i, got)
		}
	}

	conn.Close()
	waitRun(t, done)
}

func TestConn_Run_MissingObject(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)
	peer := createTestPeer(t, clientConn)
	ctx := testContext(t)

	conn, err := NewConn(serverConn)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	done := runConn(ctx, conn)

	if err := peer.WriteMessage(ctx, wire.Message{Sender: 5, Opcode: 0}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	err = waitRun(t, done)
	if !errors.Is(err, wire.MissingObject(5)) {
		t.Errorf("expected MissingObject(5), got %v", err)
	}

	if _, err := peer.ReadMessage(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("peer should observe EOF, got %v", err)
	}
}

func TestConn_Run_UnknownOpcode(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)
	peer := createTestPeer(t, clientConn)
	ctx := testContext(t)

	conn, err := NewConn(serverConn,
		ObjectOption(3, newTestObject()),
		OnErrorOption(func(error) ErrorAction { return Continue }),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	done := runConn(ctx, conn)

	if err := peer.WriteMessage(ctx, wire.Message{Sender: 3, Opcode: 3}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	// protocol violations disconnect even when the callback says Continue
	err = waitRun(t, done)
	if !errors.Is(err, wire.UnknownOpcode(3)) {
		t.Errorf("expected UnknownOpcode(3), got %v", err)
	}
}

func TestConn_Run_OnErrorContinue(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)
	peer := createTestPeer(t, clientConn)
	ctx := testContext(t)

	var handled []error
	obj := newTestObject()
	conn, err := NewConn(serverConn,
		ObjectOption(3, obj),
		OnErrorOption(func(err error) ErrorAction {
			handled = append(handled, err)
			return Continue
		}),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	done := runConn(ctx, conn)

	fail, _ := wire.NewBuilder().String("boom").Message(3, 2)
	ping, _ := wire.NewBuilder().Uint(9).Message(3, 0)
	for _, m := range []wire.Message{fail, ping} {
		if err := peer.WriteMessage(ctx, m); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
	}

	select {
	case v := <-obj.pings:
		if v != 9 {
			t.Errorf("ping = %d, want 9", v)
		}
	case <-ctx.Done():
		t.Fatal("ping after suppressed error was not dispatched")
	}

	conn.Close()
	waitRun(t, done)

	if len(handled) != 1 || !errors.Is(handled[0], wire.ErrCustom) {
		t.Errorf("handled = %v, want one custom error", handled)
	}
}

func TestConn_Run_FDHandoff(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)
	peer := createTestPeer(t, clientConn)
	ctx := testContext(t)

	obj := newTestObject()
	conn, err := NewConn(serverConn, ObjectOption(3, obj))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	done := runConn(ctx, conn)

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe failed: %v", err)
	}
	defer r.Close()

	fd, err := unix.Dup(int(w.Fd()))
	w.Close()
	if err != nil {
		t.Fatalf("dup failed: %v", err)
	}

	msg, _ := wire.NewBuilder().FD(fd).Message(3, 1)
	if err := peer.WriteMessage(ctx, msg); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	var got *wire.FD
	select {
	case got = <-obj.fds:
	case <-ctx.Done():
		t.Fatal("fd was not dispatched")
	}

	f, ok := got.Take()
	if !ok {
		t.Fatal("Take failed")
	}
	if _, err := f.Write([]byte("hi")); err != nil {
		t.Fatalf("write through received fd failed: %v", err)
	}
	f.Close()

	buf := make([]byte, 2)
	if _, err := io.ReadFull(r, buf); err != nil || string(buf) != "hi" {
		t.Errorf("pipe read = %q, %v", buf, err)
	}

	conn.Close()
	waitRun(t, done)
}

func TestConn_Run_MissingFD(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)
	peer := createTestPeer(t, clientConn)
	ctx := testContext(t)

	conn, err := NewConn(serverConn, ObjectOption(3, newTestObject()))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	done := runConn(ctx, conn)

	if err := peer.WriteMessage(ctx, wire.Message{Sender: 3, Opcode: 1}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	if err := waitRun(t, done); !errors.Is(err, wire.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestConn_PostError(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)
	peer := createTestPeer(t, clientConn)
	ctx := testContext(t)

	handler := DispatcherFunc(func(ctx context.Context, c *Conn, sender wire.ObjectID, m *wire.Message) error {
		return c.PostError(ctx, sender, DisplayErrorInvalidMethod, "no such method")
	})
	conn, err := NewConn(serverConn,
		ObjectOption(4, handler),
		OnErrorOption(func(error) ErrorAction { return Continue }),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	done := runConn(ctx, conn)

	if err := peer.WriteMessage(ctx, wire.Message{Sender: 4, Opcode: 0}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	ev, err := peer.ReadMessage(ctx)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if ev.Sender != wire.DisplayID || ev.Opcode != 0 {
		t.Fatalf("event = %d/%d, want display error", ev.Sender, ev.Opcode)
	}
	sig, _ := wire.ParseSignature("ous")
	args, err := ev.Reader().Args(sig)
	if err != nil {
		t.Fatalf("Args failed: %v", err)
	}
	if args[0].Value != wire.ObjectID(4) || args[1].Value != DisplayErrorInvalidMethod || *args[2].Value.(*string) != "no such method" {
		t.Errorf("error args = %v", args)
	}

	if err := waitRun(t, done); !errors.Is(err, wire.ErrCustom) {
		t.Errorf("expected custom error, got %v", err)
	}
	if _, err := peer.ReadMessage(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("peer should observe EOF, got %v", err)
	}
}

func TestConn_SendBlocking_Closed(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn, BufferSizeOption(1))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	msg := wire.Message{Sender: 1}
	if err := conn.Send(msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	blocked := make(chan error, 1)
	go func() {
		blocked <- conn.SendBlocking(context.Background(), msg)
	}()
	timed := make(chan error, 1)
	go func() {
		timed <- conn.SendTimeout(msg, time.Minute)
	}()

	time.Sleep(20 * time.Millisecond)
	conn.Close()

	for _, ch := range []chan error{blocked, timed} {
		select {
		case err := <-ch:
			if err != ErrConnectionClosed {
				t.Errorf("expected ErrConnectionClosed, got %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("sender still blocked after Close")
		}
	}
}

func TestConn_CloseReleasesQueuedFDs(t *testing.T) {
	serverConn, clientConn := createTestUnixPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe failed: %v", err)
	}
	defer r.Close()
	fd, err := unix.Dup(int(w.Fd()))
	w.Close()
	if err != nil {
		t.Fatalf("dup failed: %v", err)
	}

	// never written: Run was not started
	if err := conn.Send(wire.Message{Sender: 1, FDs: []int{fd}}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	conn.Close()

	// the read end sees EOF once the last write end is closed
	if err := r.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	if _, err := r.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("expected EOF on pipe, got %v", err)
	}

	if err := conn.Send(wire.Message{Sender: 1}); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}
