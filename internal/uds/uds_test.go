package uds

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// tempSocket returns a short socket path; macOS limits them to 104 bytes.
func tempSocket(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "uri-uds-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "d.sock")
}

func startServer(t *testing.T, register func(s *Server)) (*Server, *Client) {
	t.Helper()
	sock := tempSocket(t)
	server := NewServer(sock, nil)
	if register != nil {
		register(server)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("server start: %v", err)
	}
	t.Cleanup(server.Stop)

	client := NewClient(sock)
	client.SetTimeout(5 * time.Second)
	return server, client
}

type pressParams struct {
	DurationMs int `json:"duration_ms"`
}

func TestFraming_RoundTrip(t *testing.T) {
	sock := tempSocket(t)
	listener, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var req Request
		if err := ReadFrame(conn, &req); err != nil {
			t.Errorf("server ReadFrame: %v", err)
			return
		}
		var p pressParams
		if err := req.DecodeParams(&p); err != nil {
			t.Errorf("DecodeParams: %v", err)
		}
		if req.Command != "press" || p.DurationMs != 2100 {
			t.Errorf("got command %q params %+v", req.Command, p)
		}
		WriteFrame(conn, SuccessResponse(map[string]string{"code": "REPEAT_HOLD_2S"}))
	}()

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req, err := NewRequest("press", pressParams{DurationMs: 2100})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if err := WriteFrame(conn, req); err != nil {
		t.Fatalf("client WriteFrame: %v", err)
	}
	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		t.Fatalf("client ReadFrame: %v", err)
	}
	var out map[string]string
	if err := resp.Decode(&out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out["code"] != "REPEAT_HOLD_2S" {
		t.Errorf("code = %q", out["code"])
	}
	<-done
}

func TestReadFrame_RejectsOversizedLength(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		binary.Write(client, binary.BigEndian, uint32(maxFrameSize+1))
	}()

	var req Request
	err := ReadFrame(server, &req)
	if err == nil || !strings.Contains(err.Error(), "frame too large") {
		t.Fatalf("expected frame too large, got %v", err)
	}
}

func TestServer_ProtocolVersionMismatch(t *testing.T) {
	_, client := startServer(t, func(s *Server) {
		s.Handle("ping", func(context.Context, *Request) *Response { return SuccessResponse(nil) })
	})

	resp, err := client.Send(&Request{ProtocolVersion: 999, Command: "ping"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Success || resp.Error == nil || resp.Error.Code != ErrCodeProtocolMismatch {
		t.Fatalf("expected %s, got %+v", ErrCodeProtocolMismatch, resp)
	}
}

func TestServer_UnknownCommand(t *testing.T) {
	_, client := startServer(t, nil)

	err := client.Call("levitate", nil, nil)
	var ce *CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if ce.Code != ErrCodeUnknownCommand {
		t.Errorf("code = %q", ce.Code)
	}
}

func TestServer_HandlerResultsAndErrors(t *testing.T) {
	_, client := startServer(t, func(s *Server) {
		s.Handle("press", func(_ context.Context, req *Request) *Response {
			var p pressParams
			if err := req.DecodeParams(&p); err != nil {
				return ErrorResponse(ErrCodeValidation, err.Error())
			}
			if p.DurationMs < 0 {
				return ErrorResponse(ErrCodeValidation, "duration_ms must not be negative")
			}
			return SuccessResponse(p)
		})
		s.Handle("task_toggle", func(context.Context, *Request) *Response {
			return ErrorResponse(ErrCodeNotFound, `task "t9" not found`)
		})
	})

	var echoed pressParams
	if err := client.Call("press", pressParams{DurationMs: 5200}, &echoed); err != nil {
		t.Fatalf("press: %v", err)
	}
	if echoed.DurationMs != 5200 {
		t.Errorf("echoed = %+v", echoed)
	}

	err := client.Call("press", pressParams{DurationMs: -1}, nil)
	var ce *CommandError
	if !errors.As(err, &ce) || ce.Code != ErrCodeValidation {
		t.Errorf("negative duration: got %v", err)
	}

	err = client.Call("press", map[string]string{"duration_ms": "long"}, nil)
	if !errors.As(err, &ce) || ce.Code != ErrCodeValidation {
		t.Errorf("bad params: got %v", err)
	}

	err = client.Call("task_toggle", map[string]string{"id": "t9"}, nil)
	if !errors.As(err, &ce) || ce.Code != ErrCodeNotFound {
		t.Errorf("task_toggle: got %v", err)
	}
}

func TestServer_HandlerPanicBecomesInternalError(t *testing.T) {
	_, client := startServer(t, func(s *Server) {
		s.Handle("boom", func(context.Context, *Request) *Response { panic("poller gone") })
		s.Handle("ping", func(context.Context, *Request) *Response { return SuccessResponse(nil) })
	})

	err := client.Call("boom", nil, nil)
	var ce *CommandError
	if !errors.As(err, &ce) || ce.Code != ErrCodeInternal {
		t.Fatalf("expected INTERNAL_ERROR, got %v", err)
	}
	if err := client.Call("ping", nil, nil); err != nil {
		t.Errorf("server should keep serving after a panic: %v", err)
	}
}

func TestServer_ConcurrentClients(t *testing.T) {
	server, _ := startServer(t, func(s *Server) {
		s.Handle("ping", func(context.Context, *Request) *Response {
			return SuccessResponse(map[string]string{"status": "ok"})
		})
	})

	errs := make(chan error, 10)
	for n := 0; n < 10; n++ {
		go func() {
			c := NewClient(server.SocketPath())
			c.SetTimeout(5 * time.Second)
			errs <- c.Call("ping", nil, nil)
		}()
	}
	for i := 0; i < 10; i++ {
		if err := <-errs; err != nil {
			t.Errorf("client %d: %v", i, err)
		}
	}
}

func TestServer_HandlerContextCancelledOnStop(t *testing.T) {
	sock := tempSocket(t)
	server := NewServer(sock, nil)
	entered := make(chan struct{})
	server.Handle("wait", func(ctx context.Context, _ *Request) *Response {
		close(entered)
		<-ctx.Done()
		return ErrorResponse(ErrCodeInternal, "shutting down")
	})
	if err := server.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	client := NewClient(sock)
	client.SetTimeout(5 * time.Second)
	result := make(chan error, 1)
	go func() { result <- client.Call("wait", nil, nil) }()

	<-entered
	server.Stop()

	select {
	case err := <-result:
		if err == nil {
			t.Error("expected error from cancelled handler")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not observe cancellation")
	}
}

func TestClient_DaemonNotRunning(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	client.SetTimeout(time.Second)

	_, err := client.SendCommand("ping", nil)
	if err == nil {
		t.Fatal("expected error when daemon not running")
	}
	if !strings.Contains(err.Error(), "uri daemon") {
		t.Errorf("expected hint about 'uri daemon', got: %v", err)
	}
}

func TestServer_IdleConnectionTimesOut(t *testing.T) {
	server, client := startServer(t, func(s *Server) {
		s.SetConnTimeout(300 * time.Millisecond)
		s.Handle("ping", func(context.Context, *Request) *Response { return SuccessResponse(nil) })
	})

	conn, err := net.Dial("unix", server.SocketPath())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("expected idle connection to be closed by the server")
	}
	if err := client.Call("ping", nil, nil); err != nil {
		t.Errorf("server unresponsive after idle timeout: %v", err)
	}
}

func TestServer_SocketLifecycle(t *testing.T) {
	sock := tempSocket(t)
	// stale socket file from a crashed daemon
	if err := os.WriteFile(sock, nil, 0600); err != nil {
		t.Fatal(err)
	}

	server := NewServer(sock, nil)
	if err := server.Start(); err != nil {
		t.Fatalf("start over stale socket: %v", err)
	}
	info, err := os.Stat(sock)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %04o, want 0600", perm)
	}

	server.Stop()
	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Error("socket should be removed after stop")
	}
}

func TestResponseHelpers(t *testing.T) {
	if err := SuccessResponse(nil).Err(); err != nil {
		t.Errorf("success Err = %v", err)
	}
	if SuccessResponse(nil).Data != nil {
		t.Error("nil data should stay nil")
	}

	err := ErrorResponse(ErrCodeValidation, "unknown role").Err()
	if err == nil || err.Error() != "VALIDATION_ERROR: unknown role" {
		t.Errorf("Err = %v", err)
	}

	err = (&Response{}).Err()
	var ce *CommandError
	if !errors.As(err, &ce) || ce.Code != ErrCodeInternal {
		t.Errorf("detail-less failure: %v", err)
	}

	if resp := SuccessResponse(func() {}); resp.Success || resp.Error.Code != ErrCodeInternal {
		t.Errorf("unmarshalable data should produce an internal error, got %+v", resp)
	}
}
