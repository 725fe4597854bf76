package main

import (
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// ptyWrap runs a command under a pseudo-terminal so the supervised CLI
// behaves exactly as it would interactively (spinners, colors, prompts).
type ptyWrap struct {
	cmd      *exec.Cmd
	ptmx     *os.File
	oldState *term.State
	winch    chan os.Signal
}

func newPTYWrap(name string, args ...string) *ptyWrap {
	return &ptyWrap{cmd: exec.Command(name, args...)}
}

// start launches the command and returns the PTY master for reading.
func (p *ptyWrap) start() (io.Reader, error) {
	ptmx, err := pty.Start(p.cmd)
	if err != nil {
		return nil, err
	}
	p.ptmx = ptmx

	// Track terminal resizes.
	p.winch = make(chan os.Signal, 1)
	signal.Notify(p.winch, syscall.SIGWINCH)
	go func() {
		for range p.winch {
			_ = pty.InheritSize(os.Stdin, ptmx)
		}
	}()
	p.winch <- syscall.SIGWINCH

	if term.IsTerminal(int(os.Stdin.Fd())) {
		if oldState, err := term.MakeRaw(int(os.Stdin.Fd())); err == nil {
			p.oldState = oldState
		}
	}

	go func() {
		_, _ = io.Copy(ptmx, os.Stdin)
	}()

	return ptmx, nil
}

// wait blocks until the command exits and returns its exit code.
func (p *ptyWrap) wait() int {
	err := p.cmd.Wait()
	p.close()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		return 1
	}
	return 0
}

func (p *ptyWrap) close() {
	if p.winch != nil {
		signal.Stop(p.winch)
		close(p.winch)
		p.winch = nil
	}
	if p.oldState != nil {
		_ = term.Restore(int(os.Stdin.Fd()), p.oldState)
		p.oldState = nil
	}
	if p.ptmx != nil {
		p.ptmx.Close()
		p.ptmx = nil
	}
}
