package mqtt

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/halspa/halspa.go/pkg/repl"
)

// Error kinds carried in replies.
const (
	KindArgument   = "argument"
	KindConnection = "connection"
	KindProtocol   = "protocol"
	KindTimeout    = "timeout"
	KindRemote     = "remote"
	KindTooLarge   = "too-large"
	KindOther      = "other"
)

// ErrMalformed indicates a payload which is not a request or reply.
var ErrMalformed = errors.New("malformed message")

// Request asks the serving jig to run program text.
type Request struct {
	ID      string
	Code    string
	Timeout time.Duration
}

// Reply carries the outcome of a Request.
type Reply struct {
	ID     string
	Output string
	Error  *ErrorInfo
}

// ErrorInfo is the wire form of the errors returned by repl.Session.
type ErrorInfo struct {
	Kind string
	// Stage of a timeout or protocol violation, Op of a connection failure.
	Stage string
	Text  string
	Got   []byte
}

// NewErrorInfo classifies err, nil for nil.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var (
		remoteErr  *repl.RemoteError
		connErr    *repl.ConnectionError
		timeoutErr *repl.TimeoutError
		protoErr   *repl.ProtocolError
	)
	info := &ErrorInfo{Kind: KindOther, Text: err.Error()}
	switch {
	case errors.As(err, &remoteErr):
		info.Kind, info.Text = KindRemote, remoteErr.Text
	case errors.As(err, &connErr):
		info.Kind, info.Stage = KindConnection, connErr.Op
		if connErr.Err != nil {
			info.Text = connErr.Err.Error()
		}
	case errors.As(err, &timeoutErr):
		info.Kind, info.Stage = KindTimeout, timeoutErr.Stage
	case errors.As(err, &protoErr):
		info.Kind, info.Stage, info.Got = KindProtocol, protoErr.Stage, protoErr.Got
	case errors.Is(err, repl.ErrResponseTooLarge):
		info.Kind = KindTooLarge
	case errors.Is(err, repl.ErrArgument):
		info.Kind = KindArgument
	}
	return info
}

// Err restores the typed error.
func (e *ErrorInfo) Err() error {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case KindRemote:
		return &repl.RemoteError{Text: e.Text}
	case KindConnection:
		return &repl.ConnectionError{Op: e.Stage, Err: errors.New(e.Text)}
	case KindTimeout:
		return &repl.TimeoutError{Stage: e.Stage}
	case KindProtocol:
		return &repl.ProtocolError{Stage: e.Stage, Got: e.Got}
	case KindTooLarge:
		return fmt.Errorf("remote: %w", repl.ErrResponseTooLarge)
	case KindArgument:
		return fmt.Errorf("remote: %w", repl.ErrArgument)
	}
	return errors.New(e.Text)
}

func stringValue(s string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: strings.ToValidUTF8(s, "\uFFFD")}}
}

func numberValue(n float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: n}}
}

func structValue(fields map[string]*structpb.Value) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StructValue{StructValue: &structpb.Struct{Fields: fields}}}
}

func decodeStruct(data []byte) (map[string]*structpb.Value, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Fields["id"].GetStringValue() == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	return msg.Fields, nil
}

// EncodeRequest marshals req.
func EncodeRequest(req *Request) ([]byte, error) {
	return proto.Marshal(&structpb.Struct{Fields: map[string]*structpb.Value{
		"id":         stringValue(req.ID),
		"code":       stringValue(req.Code),
		"timeout_ms": numberValue(float64(req.Timeout / time.Millisecond)),
	}})
}

// DecodeRequest unmarshals a request.
func DecodeRequest(data []byte) (*Request, error) {
	fields, err := decodeStruct(data)
	if err != nil {
		return nil, err
	}
	ms := fields["timeout_ms"].GetNumberValue()
	if ms < 0 {
		ms = 0
	}
	return &Request{
		ID:      fields["id"].GetStringValue(),
		Code:    fields["code"].GetStringValue(),
		Timeout: time.Duration(ms) * time.Millisecond,
	}, nil
}

// EncodeReply marshals reply.
func EncodeReply(reply *Reply) ([]byte, error) {
	fields := map[string]*structpb.Value{
		"id":     stringValue(reply.ID),
		"output": stringValue(reply.Output),
	}
	if e := reply.Error; e != nil {
		fields["error"] = structValue(map[string]*structpb.Value{
			"kind":  stringValue(e.Kind),
			"stage": stringValue(e.Stage),
			"text":  stringValue(e.Text),
			"got":   stringValue(hex.EncodeToString(e.Got)),
		})
	}
	return proto.Marshal(&structpb.Struct{Fields: fields})
}

// DecodeReply unmarshals a reply.
func DecodeReply(data []byte) (*Reply, error) {
	fields, err := decodeStruct(data)
	if err != nil {
		return nil, err
	}
	reply := &Reply{
		ID:     fields["id"].GetStringValue(),
		Output: fields["output"].GetStringValue(),
	}
	if e := fields["error"].GetStructValue(); e != nil {
		got, err := hex.DecodeString(e.Fields["got"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if len(got) == 0 {
			got = nil
		}
		reply.Error = &ErrorInfo{
			Kind:  e.Fields["kind"].GetStringValue(),
			Stage: e.Fields["stage"].GetStringValue(),
			Text:  e.Fields["text"].GetStringValue(),
			Got:   got,
		}
	}
	return reply, nil
}
