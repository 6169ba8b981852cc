package session

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
)

const inputQueueSize = 64

// PtyBackend hosts the tool on a pseudo-terminal owned by the hub.
type PtyBackend struct {
	pty Pty
	cmd *exec.Cmd

	ctx    context.Context
	cancel context.CancelFunc
	input  chan []byte
	bcast  *Broadcaster

	ready     chan struct{}
	readyOnce sync.Once
	onAir     string
	scanMu    sync.Mutex
	scanTail  string

	exited    atomic.Bool
	done      chan struct{}
	waitErr   error
	closeOnce sync.Once
	closeErr  error
}

type PtyBackendOptions struct {
	// OnAir is the output marker that signals the tool accepts input.
	// Empty means the first output chunk counts.
	OnAir        string
	HistoryLines int
}

func NewPtyBackend(p Pty, cmd *exec.Cmd, opts PtyBackendOptions) *PtyBackend {
	ctx, cancel := context.WithCancel(context.Background())
	b := &PtyBackend{
		pty:    p,
		cmd:    cmd,
		ctx:    ctx,
		cancel: cancel,
		input:  make(chan []byte, inputQueueSize),
		bcast:  NewBroadcaster(opts.HistoryLines),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		onAir:  opts.OnAir,
	}
	go b.readLoop()
	go b.writeLoop()
	go b.waitLoop()
	return b
}

func (b *PtyBackend) Kind() string { return "pty" }

func (b *PtyBackend) Send(text string) error {
	return b.enqueue([]byte(text))
}

func (b *PtyBackend) Submit() error {
	return b.enqueue([]byte("\r"))
}

// Write queues raw input bytes, the path interactive attach clients
// use. Delivery order follows queue order.
func (b *PtyBackend) Write(p []byte) (int, error) {
	data := make([]byte, len(p))
	copy(data, p)
	if err := b.enqueue(data); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *PtyBackend) enqueue(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if b.exited.Load() || b.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case b.input <- data:
		return nil
	case <-b.ctx.Done():
		return ErrClosed
	}
}

func (b *PtyBackend) Alive() bool {
	return !b.exited.Load() && b.ctx.Err() == nil
}

func (b *PtyBackend) PID() int {
	if b.cmd == nil || b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

// Ready closes once the tool printed its on-air marker (or any output
// when no marker is configured). It also closes when the process dies
// so waiters never hang; callers re-check Alive.
func (b *PtyBackend) Ready() <-chan struct{} {
	return b.ready
}

// Done closes after the process exited and its status was collected.
func (b *PtyBackend) Done() <-chan struct{} {
	return b.done
}

// WaitErr is valid after Done is closed.
func (b *PtyBackend) WaitErr() error {
	return b.waitErr
}

func (b *PtyBackend) Resize(cols, rows uint16) error {
	return b.pty.Resize(cols, rows)
}

func (b *PtyBackend) Subscribe() (<-chan []byte, func()) {
	return b.bcast.Subscribe()
}

func (b *PtyBackend) SnapshotOutput(lines int) ([]string, error) {
	return b.bcast.History().Tail(lines), nil
}

// Close tears the terminal down. Closing the pty hangs up the tool's
// controlling terminal; actually reaping the process is the process
// registry's job.
func (b *PtyBackend) Close() error {
	b.closeOnce.Do(func() {
		b.cancel()
		b.signalReady()
		if b.pty != nil {
			b.closeErr = b.pty.Close()
		}
		b.bcast.Close()
	})
	return b.closeErr
}

func (b *PtyBackend) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := b.pty.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			b.observe(chunk)
			b.bcast.Broadcast(chunk)
		}
		if err != nil {
			return
		}
	}
}

func (b *PtyBackend) writeLoop() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case data := <-b.input:
			if _, err := b.pty.Write(data); err != nil {
				return
			}
		}
	}
}

func (b *PtyBackend) waitLoop() {
	if b.cmd == nil {
		close(b.done)
		return
	}
	b.waitErr = b.cmd.Wait()
	b.exited.Store(true)
	b.signalReady()
	close(b.done)
}

func (b *PtyBackend) observe(chunk []byte) {
	select {
	case <-b.ready:
		return
	default:
	}

	if b.onAir == "" {
		b.signalReady()
		return
	}

	b.scanMu.Lock()
	defer b.scanMu.Unlock()
	b.scanTail += string(chunk)
	if strings.Contains(b.scanTail, b.onAir) {
		b.signalReady()
		b.scanTail = ""
		return
	}
	// Keep only enough of the tail for a marker split across chunks.
	if keep := len(b.onAir) - 1; len(b.scanTail) > keep {
		b.scanTail = b.scanTail[len(b.scanTail)-keep:]
	}
}

func (b *PtyBackend) signalReady() {
	b.readyOnce.Do(func() { close(b.ready) })
}
