package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Control socket operations.
const (
	OpStatus = "status"
	OpHealth = "health"
	OpStop   = "stop"
)

type Request struct {
	Op string `json:"op"`
}

type Status struct {
	Running          bool        `json:"running"`
	UptimeSec        float64     `json:"uptime_sec"`
	SessionID        string      `json:"session_id"`
	Recording        bool        `json:"recording"`
	QueueDepth       int         `json:"queue_depth"`
	SegmentsRecorded int64       `json:"segments_recorded"`
	NotesSaved       int64       `json:"notes_saved"`
	Notes            []NoteEntry `json:"notes"`
}

type SimpleResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// NoteEntry is one recently saved note shown by status.
type NoteEntry struct {
	Timestamp time.Time `json:"timestamp"`
	SegmentID int64     `json:"segment_id"`
	Summary   string    `json:"summary"`
	NotePath  string    `json:"note_path,omitempty"`
	Degraded  bool      `json:"degraded,omitempty"`
}

// Call sends one request over the control socket and decodes the reply.
func Call(socketPath, op string, out any) error {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("cannot connect to daemon: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	if err := json.NewEncoder(conn).Encode(Request{Op: op}); err != nil {
		return err
	}
	return json.NewDecoder(conn).Decode(out)
}
