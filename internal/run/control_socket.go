package run

import (
	"bufio"
	"context"
	"encoding/json"
	"net"

	"lectern/internal/control"
)

// controlLoop serves ln until ctx is cancelled, then closes it.
func (s *Server) controlLoop(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		if err := ln.Close(); err != nil {
			s.logger.Debugf("control listener close: %v", err)
		}
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Errorf("control accept: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Warnf("control connection close: %v", err)
		}
	}()
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	var req control.Request
	if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: false, Message: "bad request"})
		return
	}
	enc := json.NewEncoder(conn)
	switch req.Op {
	case control.OpStatus:
		_ = enc.Encode(s.status())
	case control.OpHealth:
		_ = enc.Encode(control.SimpleResponse{OK: true, Message: "ok"})
	case control.OpStop:
		_ = enc.Encode(control.SimpleResponse{OK: true, Message: "stopping; session summary will be written"})
		s.Stop()
	default:
		_ = enc.Encode(control.SimpleResponse{OK: false, Message: "unknown op " + req.Op})
	}
}
