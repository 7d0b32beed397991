// Package ipc defines the frames exchanged between contacts clients and the broker,
// and the transport they travel on.
package ipc

import (
	"encoding/binary"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
)

// FrameKind tells request, response and publish frames apart.
type FrameKind int32

const (
	KindRequest FrameKind = iota + 1
	KindResponse
	KindPublish
)

var kindNames = map[FrameKind]string{
	KindRequest:  "REQUEST",
	KindResponse: "RESPONSE",
	KindPublish:  "PUBLISH",
}

func (k FrameKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND(%d)", int32(k))
}

// MaxFrameSize bounds a single frame on the wire.
const MaxFrameSize = 16 << 20

// Frame is one bson document on the wire. A bson document starts with its own
// little-endian int32 length, which is what ReadFrame uses for framing.
type Frame struct {
	Kind     FrameKind  `bson:"kind"`
	ID       uint64     `bson:"id"`
	Module   string     `bson:"module,omitempty"`
	Function string     `bson:"function,omitempty"`
	Topic    string     `bson:"topic,omitempty"`
	Result   ResultCode `bson:"result"`
	Version  *int64     `bson:"version,omitempty"`
	Payload  []byte     `bson:"payload,omitempty"`
}

// Response is what a Channel hands back for one call.
type Response struct {
	Result  ResultCode
	Payload []byte
	// Version is the trailing change version of mutating calls, nil when the
	// server did not send one.
	Version *int64
}

// Err returns the sentinel error for a non-OK result.
func (r *Response) Err() error {
	return r.Result.Err()
}

// Decode unmarshals the response payload into v.
func (r *Response) Decode(v any) error {
	return Decode(r.Payload, v)
}

func ReadFrame(r io.Reader) (*Frame, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := int(int32(binary.LittleEndian.Uint32(header[:])))
	if size < 5 || size > MaxFrameSize {
		return nil, fmt.Errorf("invalid frame size %d", size)
	}
	data := make([]byte, size)
	copy(data, header[:])
	if _, err := io.ReadFull(r, data[4:]); err != nil {
		return nil, fmt.Errorf("error occured while reading frame body, details: %w", err)
	}
	frame := &Frame{}
	if err := bson.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("frame is not a valid document: %w", err)
	}
	return frame, nil
}

func WriteFrame(w io.Writer, frame *Frame) error {
	data, err := bson.Marshal(frame)
	if err != nil {
		return fmt.Errorf("unable to encode %s frame: %w", frame.Kind, err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%s frame of %d bytes exceeds limit", frame.Kind, len(data))
	}
	total := 0
	for total < len(data) {
		n, err := w.Write(data[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

// Encode marshals a request or response body. A nil value encodes to nil.
func Encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	return data, nil
}

func Decode(data []byte, v any) error {
	if len(data) == 0 {
		return ErrNoData
	}
	if err := bson.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", ErrInvalidParameter, err)
	}
	return nil
}
