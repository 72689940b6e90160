package cli

import (
	"io"
	gosync "sync"

	"github.com/cheggaaa/pb/v3"

	"gallery-sync/internal/protocol"
)

// progressBar shows one pb bar per file being transferred.
type progressBar struct {
	out  io.Writer
	mu   gosync.Mutex
	bar  *pb.ProgressBar
	file string
}

func newProgressBar(out io.Writer) *progressBar {
	return &progressBar{out: out}
}

// Update is the engine's progress callback.
func (p *progressBar) Update(tp protocol.TransferProgress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil || tp.FileName != p.file {
		p.finishLocked()
		p.file = tp.FileName
		p.bar = pb.New64(tp.TotalBytes)
		p.bar.SetTemplate(pb.Full)
		p.bar.SetWriter(p.out)
		p.bar.Set(pb.Bytes, true)
		p.bar.Set("prefix", tp.FileName+" ")
		p.bar.Start()
	}
	p.bar.SetCurrent(tp.TransferredBytes)
}

// Finish completes the current bar, if any.
func (p *progressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
}

func (p *progressBar) finishLocked() {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}
