package serialmux

import (
	"bytes"
	"io"
	"sync"
)

// PipePort is an in-memory SerialPorter. Lines fed to it are read back by
// Monitor; commands written to it are captured. Used for tests and replay.
type PipePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
}

// NewPipePort creates an open PipePort.
func NewPipePort() *PipePort {
	r, w := io.Pipe()
	return &PipePort{r: r, w: w}
}

// Feed makes line available to the reader. It blocks until read.
func (p *PipePort) Feed(line string) error {
	_, err := io.WriteString(p.w, line+"\n")
	return err
}

// EOF ends the input stream.
func (p *PipePort) EOF() error {
	return p.w.Close()
}

// Written returns everything written to the port.
func (p *PipePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func (p *PipePort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *PipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *PipePort) Close() error {
	p.w.Close()
	return p.r.Close()
}
