package bb84

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/qkdlab/bb84sim/bb84/photon"
)

// maxFrameBytes bounds a single frame; real events are a few hundred bytes.
const maxFrameBytes = 1 << 20

// A Recorder is a Sink which writes every event it receives to an io.Writer as
// a framed protocol buffer. The structure of the frame is trivial:
// proto-length | proto, with the length a little-endian int32 and the proto a
// google.protobuf.Struct whose "type" field holds the EventKind.
//
// After the first write error the Recorder drops everything; check Err once
// the session is done.
type Recorder struct {
	mu     sync.Mutex
	w      io.Writer
	frames int
	err    error
}

// NewRecorder returns a Recorder writing to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

// Emit implements Sink.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if err := writeFrame(r.w, e); err != nil {
		r.err = fmt.Errorf("recording frame %d: %w", r.frames, err)
		return
	}
	r.frames++
}

// Frames returns the number of events successfully written.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// ReadEvents decodes a recording produced by a Recorder, up to EOF.
func ReadEvents(r io.Reader) ([]Event, error) {
	var events []Event
	for {
		e, err := readFrame(r)
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, fmt.Errorf("reading frame %d: %w", len(events), err)
		}
		events = append(events, e)
	}
}

func writeFrame(w io.Writer, e Event) error {
	m, err := eventToProto(e)
	if err != nil {
		return err
	}
	marshalled, err := proto.Marshal(m)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(marshalled))); err != nil {
		return err
	}
	if _, err := w.Write(marshalled); err != nil {
		return err
	}
	return nil
}

// readFrame returns io.EOF only if r ends cleanly on a frame boundary.
func readFrame(r io.Reader) (Event, error) {
	var mLen int32
	if err := binary.Read(r, binary.LittleEndian, &mLen); err != nil {
		return nil, err
	}
	if mLen < 0 || mLen > maxFrameBytes {
		return nil, fmt.Errorf("invalid frame length %d", mLen)
	}
	marshalled := make([]byte, mLen)
	if _, err := io.ReadFull(r, marshalled); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	m := new(structpb.Struct)
	if err := proto.Unmarshal(marshalled, m); err != nil {
		return nil, err
	}
	return eventFromProto(m)
}

func eventToProto(e Event) (*structpb.Struct, error) {
	var fields map[string]interface{}
	switch e := e.(type) {
	case QubitEvent:
		fields = map[string]interface{}{
			"seq":           e.Seq,
			"bit":           int(e.Bit),
			"senderBasis":   e.SenderBasis.String(),
			"receiverBasis": e.ReceiverBasis.String(),
			"measuredBit":   int(e.MeasuredBit),
			"intercepted":   e.Intercepted,
			"detected":      e.Detected,
			"eveBasis":      e.EveBasis.String(),
			"gain":          e.InformationGain,
			"x":             e.X,
			"y":             e.Y,
			"z":             e.Z,
		}
	case StatsSnapshot:
		fields = map[string]interface{}{
			"totalSent":   e.TotalSent,
			"intercepts":  e.Intercepts,
			"detections":  e.Detections,
			"runningQBER": e.RunningQBER,
			"eveGain":     e.EveInformationGain,
		}
	case SessionSummary:
		fields = map[string]interface{}{
			"totalSent":  e.TotalSent,
			"intercepts": e.Intercepts,
			"detections": e.Detections,
			"finalQBER":  e.FinalQBER,
			"verdict":    string(e.Verdict),
			"keyLength":  e.KeyLength,
			"efficiency": e.Efficiency,
			"eveGain":    e.EveInformationGain,
		}
	case ResetAck:
		fields = map[string]interface{}{}
	default:
		return nil, fmt.Errorf("unknown event type %T", e)
	}
	fields["type"] = string(e.Kind())
	return structpb.NewStruct(fields)
}

func eventFromProto(m *structpb.Struct) (Event, error) {
	f := m.GetFields()
	kind := EventKind(f["type"].GetStringValue())
	switch kind {
	case KindQubit:
		sb, err := basisField(f, "senderBasis")
		if err != nil {
			return nil, err
		}
		rb, err := basisField(f, "receiverBasis")
		if err != nil {
			return nil, err
		}
		eb, err := basisField(f, "eveBasis")
		if err != nil {
			return nil, err
		}
		return QubitEvent{
			Seq:           intField(f, "seq"),
			Bit:           photon.Bit(intField(f, "bit")),
			SenderBasis:   sb,
			ReceiverBasis: rb,
			MeasuredBit:   photon.Bit(intField(f, "measuredBit")),
			Intercepted:   f["intercepted"].GetBoolValue(),
			Detected:      f["detected"].GetBoolValue(),
			EveBasis:      eb,
			X:             f["x"].GetNumberValue(),
			Y:             f["y"].GetNumberValue(),
			Z:             f["z"].GetNumberValue(),

			InformationGain: f["gain"].GetNumberValue(),
		}, nil
	case KindStats:
		return StatsSnapshot{
			TotalSent:   intField(f, "totalSent"),
			Intercepts:  intField(f, "intercepts"),
			Detections:  intField(f, "detections"),
			RunningQBER: f["runningQBER"].GetNumberValue(),

			EveInformationGain: f["eveGain"].GetNumberValue(),
		}, nil
	case KindSummary:
		return SessionSummary{
			TotalSent:  intField(f, "totalSent"),
			Intercepts: intField(f, "intercepts"),
			Detections: intField(f, "detections"),
			FinalQBER:  f["finalQBER"].GetNumberValue(),
			Verdict:    Verdict(f["verdict"].GetStringValue()),
			KeyLength:  intField(f, "keyLength"),
			Efficiency: f["efficiency"].GetNumberValue(),

			EveInformationGain: f["eveGain"].GetNumberValue(),
		}, nil
	case KindReset:
		return ResetAck{}, nil
	}
	return nil, fmt.Errorf("unknown event kind %q", kind)
}

func intField(f map[string]*structpb.Value, name string) int {
	return int(f[name].GetNumberValue())
}

func basisField(f map[string]*structpb.Value, name string) (photon.Basis, error) {
	s := f[name].GetStringValue()
	b, ok := photon.ParseBasis(s)
	if !ok {
		return b, fmt.Errorf("invalid %s %q", name, s)
	}
	return b, nil
}
