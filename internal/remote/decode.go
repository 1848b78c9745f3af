package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/msageha/uri/internal/model"
)

// MalformedBodyError wraps a poll body that is not a JSON object.
type MalformedBodyError struct {
	Err error
}

func (e *MalformedBodyError) Error() string { return "malformed poll body: " + e.Err.Error() }
func (e *MalformedBodyError) Unwrap() error { return e.Err }

// DecodePoll extracts event, task_text and task_id from a poll body. The
// wire format is loosely typed: a key may be absent, null, the string
// "null", blank, or even a non-string scalar; the first four all mean "no
// value" and scalars are rendered as text.
func DecodePoll(body []byte) (model.RemoteEvent, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.RemoteEvent{}, &MalformedBodyError{Err: err}
	}
	if raw == nil {
		return model.RemoteEvent{}, &MalformedBodyError{Err: errors.New("body is null")}
	}
	return model.RemoteEvent{
		Event:    wireString(raw["event"]),
		TaskText: wireString(raw["task_text"]),
		TaskID:   wireString(raw["task_id"]),
	}, nil
}

func wireString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return model.CleanWireValue(x)
	case map[string]any, []any:
		return ""
	default:
		return model.CleanWireValue(fmt.Sprint(x))
	}
}

// ErrorClass names the class of a transport failure for the status line.
func ErrorClass(err error) string {
	var (
		dnsErr  *net.DNSError
		netErr  net.Error
		bodyErr *MalformedBodyError
		opErr   *net.OpError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &bodyErr):
		return "MalformedBody"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.As(err, &dnsErr):
		return "UnknownHost"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "ConnectionRefused"
	case errors.Is(err, syscall.ECONNRESET):
		return "ConnectionReset"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "Timeout"
	case errors.As(err, &opErr):
		return "NetworkError"
	default:
		return "IOError"
	}
}
