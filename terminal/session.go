// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// stopGrace is how long a session waits after SIGTERM before killing
// the shell outright.
const stopGrace = 3 * time.Second

// Session is one room's shared shell: a process attached to the slave
// side of a PTY, with the master side pumped into the scrollback
// buffer and out to the room.
type Session struct {
	roomID string
	master *os.File
	cmd    *exec.Cmd
	ring   *Scrollback

	// onData receives each output chunk; set before the pump starts
	// and never mutated afterwards.
	onData func(roomID string, chunk []byte)

	// writeMu serializes member input so interleaved writes cannot
	// split multi-byte sequences.
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	exited    chan error
}

// startSession allocates a PTY, starts the shell in workDir attached
// to its slave side, and begins pumping output. onData receives every
// output chunk; onExit runs exactly once after the shell ends and the
// pump drains, just before the session is marked closed.
func startSession(roomID, shell, workDir string, columns, rows uint16, scrollbackBytes int, onData func(string, []byte), onExit func(*Session)) (*Session, error) {
	master, slavePath, err := openPTY()
	if err != nil {
		return nil, fmt.Errorf("allocate PTY: %w", err)
	}
	if err := setWindowSize(int(master.Fd()), columns, rows); err != nil {
		master.Close()
		return nil, fmt.Errorf("set initial PTY size: %w", err)
	}

	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		master.Close()
		return nil, fmt.Errorf("open PTY slave %s: %w", slavePath, err)
	}

	cmd := exec.Command(shell)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0, // fd 0 in child = slave PTY
	}

	if err := cmd.Start(); err != nil {
		slave.Close()
		master.Close()
		return nil, fmt.Errorf("start shell %s: %w", shell, err)
	}
	// The child holds its own copy via fd 0/1/2.
	slave.Close()

	session := &Session{
		roomID: roomID,
		master: master,
		cmd:    cmd,
		ring:   NewScrollback(scrollbackBytes),
		onData: onData,
		closed: make(chan struct{}),
		exited: make(chan error, 1),
	}

	go func() {
		session.exited <- cmd.Wait()
	}()
	go session.pump(onExit)

	return session, nil
}

// pump copies PTY output into the scrollback and hands each chunk to
// onData. Ends when the PTY read fails, which is how shell exit
// surfaces (EIO once the slave side closes).
func (s *Session) pump(onExit func(*Session)) {
	buffer := make([]byte, 4096)
	for {
		n, err := s.master.Read(buffer)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			s.ring.Append(chunk)
			s.onData(s.roomID, chunk)
		}
		if err != nil {
			break
		}
	}
	onExit(s)
	s.closeOnce.Do(func() { close(s.closed) })
}

// Write sends member input to the shell. Fails with ErrSessionClosed
// once the shell has exited.
func (s *Session) Write(data []byte) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.master.Write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrSessionClosed, err)
	}
	return nil
}

// Resize sets the PTY dimensions, delivering SIGWINCH to the shell's
// foreground process group.
func (s *Session) Resize(columns, rows uint16) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	if err := setWindowSize(int(s.master.Fd()), columns, rows); err != nil {
		return fmt.Errorf("%w: %w", ErrSessionClosed, err)
	}
	return nil
}

// History returns the retained output since offset for replay.
func (s *Session) History(offset uint64) []byte {
	return s.ring.Since(offset)
}

// Offset returns the scrollback's current end offset.
func (s *Session) Offset() uint64 {
	return s.ring.Offset()
}

// Stop terminates the shell: SIGTERM, a grace period, then SIGKILL.
// Blocks until the process is reaped and the output pump has drained.
// Safe to call multiple times and after the shell exited on its own.
func (s *Session) Stop() {
	_ = s.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case err := <-s.exited:
		// Reaped; keep the result for anyone else waiting.
		s.exited <- err
	case <-time.After(stopGrace):
		_ = s.cmd.Process.Kill()
	}

	// Closing the master unblocks the pump's read if the shell exit
	// alone did not (some shells hold the slave open via children).
	s.master.Close()
	<-s.closed
}

// done reports whether the session has fully shut down.
func (s *Session) done() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// openPTY allocates a PTY master/slave pair through the Linux devpts
// interface and returns the master with the slave's filesystem path.
func openPTY() (master *os.File, slavePath string, err error) {
	master, err = os.OpenFile("/dev/ptmx", os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, "", fmt.Errorf("open /dev/ptmx: %w", err)
	}

	fd := int(master.Fd())

	ptyNumber, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		master.Close()
		return nil, "", fmt.Errorf("get PTY number (TIOCGPTN): %w", err)
	}

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		master.Close()
		return nil, "", fmt.Errorf("unlock PTY slave (TIOCSPTLCK): %w", err)
	}

	slavePath = fmt.Sprintf("/dev/pts/%d", ptyNumber)
	return master, slavePath, nil
}

// setWindowSize sets terminal dimensions on a PTY master fd with
// TIOCSWINSZ.
func setWindowSize(fd int, columns, rows uint16) error {
	winsize := &unix.Winsize{
		Col: columns,
		Row: rows,
	}
	return unix.IoctlSetWinsize(fd, unix.TIOCSWINSZ, winsize)
}

// isNormalShellExit reports whether the shell's exit is an expected
// end condition: clean exit, or killed by the signals Stop sends.
func isNormalShellExit(err error) bool {
	if err == nil {
		return true
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	if exitErr.ExitCode() == 0 {
		return true
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return false
	}
	return status.Signal() == syscall.SIGTERM || status.Signal() == syscall.SIGKILL ||
		status.Signal() == syscall.SIGHUP
}
