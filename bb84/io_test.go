package bb84

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"reflect"
	"testing"

	"github.com/qkdlab/bb84sim/bb84/photon"
)

var recorded = []Event{
	QubitEvent{
		Seq:           1,
		Bit:           1,
		SenderBasis:   photon.Diagonal,
		ReceiverBasis: photon.Rectilinear,
		MeasuredBit:   0,
		Intercepted:   true,
		Detected:      true,
		EveBasis:      photon.Diagonal,
		X:             -1,
		Y:             0,
		Z:             0,

		InformationGain: 1,
	},
	StatsSnapshot{TotalSent: 1, Intercepts: 1, Detections: 1, RunningQBER: 0, EveInformationGain: 1},
	SessionSummary{
		TotalSent:  1,
		Intercepts: 1,
		Detections: 1,
		FinalQBER:  0.25,
		Verdict:    Compromised,
		KeyLength:  0,
		Efficiency: 0,

		EveInformationGain: 0.5,
	},
	ResetAck{},
}

func TestRecordReplay(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	for _, e := range recorded {
		rec.Emit(e)
	}
	if err := rec.Err(); err != nil {
		t.Fatalf("error recording: %v", err)
	}
	if got := rec.Frames(); got != len(recorded) {
		t.Errorf("Frames() = %d, want %d", got, len(recorded))
	}

	got, err := ReadEvents(&buf)
	if err != nil {
		t.Fatalf("error replaying: %v", err)
	}
	if !reflect.DeepEqual(got, recorded) {
		t.Errorf("Events mangled in transit: got %v, want %v", got, recorded)
	}
}

func TestRecordOverPipe(t *testing.T) {
	l, r := net.Pipe()
	rec := NewRecorder(l)

	// net.Pipe() doesn't do any sort of buffering, so we write asynchronously.
	go func() {
		for _, e := range recorded {
			rec.Emit(e)
		}
		l.Close()
	}()
	got, err := ReadEvents(r)
	if err != nil {
		t.Fatalf("error replaying: %v", err)
	}
	if rec.Err() != nil {
		t.Fatalf("error recording: %v", rec.Err())
	}
	if !reflect.DeepEqual(got, recorded) {
		t.Errorf("Events mangled in transit: got %v, want %v", got, recorded)
	}
}

func TestReadEventsEmpty(t *testing.T) {
	got, err := ReadEvents(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("error reading empty recording: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d events from an empty recording", len(got))
	}
}

func TestReadEventsTruncated(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	rec.Emit(recorded[0])
	rec.Emit(recorded[1])
	data := buf.Bytes()
	first := 4 + int(binary.LittleEndian.Uint32(data[:4]))

	tcs := []struct {
		name  string
		data  []byte
		wantN int
	}{
		{name: "mid length", data: data[:first+2], wantN: 1},
		{name: "mid proto", data: data[:len(data)-1], wantN: 1},
		{name: "partial length", data: data[:2], wantN: 0},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ReadEvents(bytes.NewReader(tc.data))
			if err == nil {
				t.Fatalf("expected error reading truncated recording")
			}
			if len(got) != tc.wantN {
				t.Errorf("got %d complete events, want %d", len(got), tc.wantN)
			}
		})
	}
}

func TestReadEventsRejectsBadLength(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, int32(-4))
	if _, err := ReadEvents(&buf); err == nil {
		t.Errorf("expected error for negative frame length")
	}
}

type failingWriter struct{ n int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n <= 0 {
		return 0, io.ErrClosedPipe
	}
	w.n--
	return len(p), nil
}

func TestRecorderKeepsFirstError(t *testing.T) {
	// Each frame is two writes: the length then the proto.
	rec := NewRecorder(&failingWriter{n: 2})
	for _, e := range recorded {
		rec.Emit(e)
	}
	if !errors.Is(rec.Err(), io.ErrClosedPipe) {
		t.Errorf("Err() = %v, want %v", rec.Err(), io.ErrClosedPipe)
	}
	if got := rec.Frames(); got != 1 {
		t.Errorf("Frames() = %d, want 1", got)
	}
}
