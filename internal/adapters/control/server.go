// Package control serves the line-oriented command protocol on a unix
// socket:
//
//	!<id> <cmd> <radio> [params]   ->   OK <id> [payload] | ERR <id> <reason>
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/hopping"
	"github.com/lcalzada-xor/wsensor/internal/core/domain"
	"github.com/lcalzada-xor/wsensor/internal/telemetry"
)

const (
	DefaultTimeout = 5 * time.Second

	ReasonNoRadio = "no such radio"
	ReasonTimeout = "timeout"

	maxLine = 1024
)

// Target accepts tokenised commands for one radio. *hopping.Scanner
// implements it.
type Target interface {
	SubmitTokens(ctx context.Context, id, name string, params []string) error
}

type reply struct {
	ok      bool
	payload string
}

type target struct {
	role  domain.Role
	iface string
	t     Target
}

// Server answers control commands. It serves one client at a time.
type Server struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	radios  []target
	waiting map[string]chan reply
}

// NewServer builds a server listening on the unix socket at path.
func NewServer(path string, timeout time.Duration, logger *slog.Logger) *Server {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		path:    path,
		timeout: timeout,
		logger:  logger.With("component", "control"),
		waiting: make(map[string]chan reply),
	}
}

// Attach makes a radio addressable by its role and interface name.
func (s *Server) Attach(role domain.Role, iface string, t Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detachLocked(role)
	s.radios = append(s.radios, target{role: role, iface: iface, t: t})
}

// Detach removes the radio in role.
func (s *Server) Detach(role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detachLocked(role)
}

func (s *Server) detachLocked(role domain.Role) {
	out := s.radios[:0]
	for _, r := range s.radios {
		if r.role != role {
			out = append(out, r)
		}
	}
	s.radios = out
}

func (s *Server) lookup(name string) (Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.radios {
		if string(r.role) == name || r.iface == name {
			return r.t, true
		}
	}
	return nil, false
}

// Respond delivers a scanner answer to the command waiting for it. Answers
// nobody waits for are dropped.
func (s *Server) Respond(_ domain.Role, ev domain.ScanEvent) {
	s.mu.Lock()
	ch, ok := s.waiting[ev.CmdID]
	s.mu.Unlock()
	if !ok {
		return
	}

	r := reply{ok: ev.Kind == domain.EventCommandOK, payload: ev.Payload}
	if !r.ok {
		r.payload = reasonOf(ev.Err)
	}
	select {
	case ch <- r:
	default:
	}
}

// Run listens until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("control listen: %w", err)
	}
	s.logger.Info("Control socket listening", "path", s.path)
	return s.Serve(ctx, ln)
}

// Serve accepts clients from ln one at a time until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("control accept: %w", err)
		}
		s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.logger.Debug("Control client connected")
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, maxLine), maxLine)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintln(conn, s.Execute(ctx, line)); err != nil {
			s.logger.Debug("Control client write failed", "error", err)
			return
		}
	}
	s.logger.Debug("Control client disconnected")
}

// Execute runs one protocol line and returns the response line.
func (s *Server) Execute(ctx context.Context, line string) string {
	id, cmd, radio, params, ok := parseLine(line)
	if !ok {
		telemetry.Commands.WithLabelValues("?", "invalid").Inc()
		return errLine(id, hopping.ReasonInvalid)
	}

	t, found := s.lookup(radio)
	if !found {
		telemetry.Commands.WithLabelValues(cmd, "no-radio").Inc()
		return errLine(id, ReasonNoRadio)
	}

	ch := make(chan reply, 1)
	s.mu.Lock()
	s.waiting[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.waiting, id)
		s.mu.Unlock()
	}()

	if err := t.SubmitTokens(ctx, id, cmd, params); err != nil {
		telemetry.Commands.WithLabelValues(cmd, "err").Inc()
		if errors.Is(err, hopping.ErrStopped) {
			return errLine(id, ReasonNoRadio)
		}
		return errLine(id, reasonOf(err))
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if !r.ok {
			telemetry.Commands.WithLabelValues(cmd, "err").Inc()
			return errLine(id, r.payload)
		}
		telemetry.Commands.WithLabelValues(cmd, "ok").Inc()
		if r.payload == "" {
			return "OK " + id
		}
		return "OK " + id + " " + r.payload
	case <-timer.C:
		telemetry.Commands.WithLabelValues(cmd, "timeout").Inc()
		return errLine(id, ReasonTimeout)
	case <-ctx.Done():
		return errLine(id, ReasonTimeout)
	}
}

// parseLine splits "!<id> <cmd> <radio> [params]". The id is "?" when it
// could not be read.
func parseLine(line string) (id, cmd, radio string, params []string, ok bool) {
	fields := strings.Fields(line)
	id = hopping.UnknownID
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "!") || len(fields[0]) < 2 {
		return id, "", "", nil, false
	}
	id = fields[0][1:]
	if len(fields) < 3 {
		return id, "", "", nil, false
	}
	return id, strings.ToLower(fields[1]), fields[2], fields[3:], true
}

func reasonOf(err error) string {
	var cerr *hopping.CommandError
	if errors.As(err, &cerr) {
		return cerr.Reason
	}
	if err == nil {
		return hopping.ReasonInvalid
	}
	return err.Error()
}

func errLine(id, reason string) string {
	return "ERR " + id + " " + reason
}
