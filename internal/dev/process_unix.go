//go:build !windows

package dev

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// serverProcess is one spawned site server. The process gets its own
// group so children spawned by the server die with it.
type serverProcess struct {
	cmd *exec.Cmd
}

func startServerProcess(binary, dir string, env []string) (*serverProcess, error) {
	cmd := exec.Command(binary)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &serverProcess{cmd: cmd}, nil
}

// stop terminates the process group: SIGTERM first, SIGKILL after a
// grace period.
func (p *serverProcess) stop() {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return
	}

	pgid, err := syscall.Getpgid(p.cmd.Process.Pid)
	if err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
	} else {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
	}

	done := make(chan error, 1)
	go func() {
		done <- p.cmd.Wait()
	}()

	select {
	case <-done:
		return
	case <-time.After(5 * time.Second):
		if pgid > 0 {
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		} else {
			_ = p.cmd.Process.Kill()
		}
		<-done
	}
}
