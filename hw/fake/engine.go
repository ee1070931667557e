// Package fake provides an in-memory video engine and device for tests. The
// engine emulates the bit reader triggers over real bitstream bytes and
// completes every decode trigger.
package fake

import (
	"sync"

	"github.com/ugparu/twig/hw/regs"
	bitreader "github.com/ugparu/twig/utils/bits"
	"github.com/ugparu/twig/utils/nal"
)

// Memory resolves device addresses to CPU bytes.
type Memory interface {
	Bytes(addr uint32, n int) []byte
}

// Engine serves bit reader and decode triggers written to a Recorder.
type Engine struct {
	Regs *regs.Recorder

	mu        sync.Mutex
	mem       Memory
	br        *bitreader.Reader
	status    uint32
	decodes   int
	failNext  bool
	stuckBusy bool
	silent    bool
}

// NewEngine installs trigger and status hooks on rec.
func NewEngine(rec *regs.Recorder, mem Memory) *Engine {
	e := &Engine{Regs: rec, mem: mem}
	rec.OnWrite(regs.H264Trigger, e.onTrigger)
	rec.OnWrite(regs.H264Status, e.onStatus)
	return e
}

// Decodes returns the number of decode triggers served.
func (e *Engine) Decodes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decodes
}

// FailNextDecode makes the next decode trigger finish with the error status.
func (e *Engine) FailNextDecode() {
	e.mu.Lock()
	e.failNext = true
	e.mu.Unlock()
}

// StickBusy keeps the bit reader busy bit set after the next trigger.
func (e *Engine) StickBusy() {
	e.mu.Lock()
	e.stuckBusy = true
	e.mu.Unlock()
}

// Silence makes decode triggers raise no status at all.
func (e *Engine) Silence() {
	e.mu.Lock()
	e.silent = true
	e.mu.Unlock()
}

// Done reports whether the engine has raised the slice done or error status.
func (e *Engine) Done() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status&(regs.StatusSliceDone|regs.StatusError) != 0
}

// BitPos returns the RBSP bit position of the emulated bit reader.
func (e *Engine) BitPos() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.br == nil {
		return 0
	}
	return e.br.BitPos()
}

func (e *Engine) onStatus(rec *regs.Recorder, v uint32) {
	e.mu.Lock()
	e.status &^= v
	rec.Set(regs.H264Status, e.status)
	e.mu.Unlock()
}

func (e *Engine) onTrigger(rec *regs.Recorder, v uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	code, n := v&0xff, int(v>>8) //nolint:mnd
	var out uint32
	switch code {
	case regs.TriggerInitSWDec:
		e.load(rec)
	case regs.TriggerGetBits, regs.TriggerShowBits:
		if e.br != nil {
			pos := e.br.BitPos()
			out, _ = e.br.GetBits(n)
			if code == regs.TriggerShowBits {
				_ = e.br.SetBitPos(pos)
			}
		}
	case regs.TriggerFlushBits:
		if e.br != nil {
			_ = e.br.SkipBits(n)
		}
	case regs.TriggerGetUE:
		if e.br != nil {
			out, _ = e.br.GetUE()
		}
	case regs.TriggerGetSE:
		if e.br != nil {
			se, _ := e.br.GetSE()
			out = uint32(se) //nolint:gosec
		}
	case regs.TriggerDecodeSlice:
		e.decodes++
		switch {
		case e.silent:
		case e.failNext:
			e.failNext = false
			e.status |= regs.StatusError
		default:
			e.status |= regs.StatusSliceDone
		}
	}
	rec.Set(regs.H264BasicBits, out)

	if e.stuckBusy {
		e.status |= regs.StatusVLDBusy
	}
	rec.Set(regs.H264Status, e.status)
}

// load restarts the bit reader from the source registers.
func (e *Engine) load(rec *regs.Recorder) {
	word := rec.Read32(regs.H264VLDAddr)
	addr := word&0x0ffffff0 | (word&0xf)<<28 //nolint:mnd
	offset := int(rec.Read32(regs.H264VLDOffset))
	length := int(rec.Read32(regs.H264VLDLen))

	data := e.mem.Bytes(addr, (offset+length+7)/8) //nolint:mnd
	if data == nil {
		e.br = nil
		return
	}
	e.br = bitreader.NewReader(nal.RBSP(data[offset/8:])) //nolint:mnd
	_ = e.br.SkipBits(offset % 8)                         //nolint:mnd
}
