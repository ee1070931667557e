// Package vld drives the engine's variable length decoder as a bit reader.
package vld

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/ugparu/twig"
	"github.com/ugparu/twig/hw/regs"
	bitreader "github.com/ugparu/twig/utils/bits"
)

// maxChunk is the widest read or flush a single trigger accepts.
const maxChunk = 32

// Reader reads the bitstream loaded into the engine by Load. Every read is a
// trigger write followed by a bounded wait on the busy bit. The engine removes
// emulation prevention bytes itself, so BitPos counts RBSP bits.
type Reader struct {
	regs regs.File
	poll regs.PollConfig
	pos  int
}

var _ bitreader.Source = (*Reader)(nil)

// NewReader returns a reader over the register file f.
func NewReader(f regs.File, poll regs.PollConfig) *Reader {
	return &Reader{regs: f, poll: poll}
}

// Load points the engine at a bitstream of size bytes at device address addr,
// starting bitOffset bits in, and restarts the bit reader.
func (r *Reader) Load(addr uint32, size int, bitOffset int) error {
	r.regs.Write32(regs.H264VLDAddr, regs.VLDAddress(addr))
	r.regs.Write32(regs.H264VLDOffset, uint32(bitOffset))
	r.regs.Write32(regs.H264VLDLen, uint32(size*8-bitOffset))
	r.regs.Write32(regs.H264VLDEnd, addr+uint32(size))
	r.regs.Write32(regs.H264Trigger, regs.TriggerInitSWDec)
	r.pos = 0
	return r.wait()
}

// BitPos returns the number of bits consumed since Load.
func (r *Reader) BitPos() int {
	return r.pos
}

// GetBits returns the next n bits, 0 < n <= 32.
func (r *Reader) GetBits(n int) (uint32, error) {
	if n <= 0 || n > maxChunk {
		return 0, bitreader.ErrInsufficientData
	}
	v, err := r.trigger(regs.TriggerBits(regs.TriggerGetBits, uint32(n))) //nolint:gosec
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

// GetBit returns the next bit.
func (r *Reader) GetBit() (uint32, error) {
	return r.GetBits(1)
}

// SkipBits flushes n bits in chunks of at most 32.
func (r *Reader) SkipBits(n int) error {
	if n < 0 {
		return bitreader.ErrInsufficientData
	}
	for n > 0 {
		chunk := min(n, maxChunk)
		if _, err := r.trigger(regs.TriggerBits(regs.TriggerFlushBits, uint32(chunk))); err != nil { //nolint:gosec
			return err
		}
		r.pos += chunk
		n -= chunk
	}
	return nil
}

// GetUE decodes an unsigned Exp-Golomb code in hardware.
func (r *Reader) GetUE() (uint32, error) {
	v, err := r.trigger(regs.TriggerGetUE)
	if err != nil {
		return 0, err
	}
	r.pos += ueLen(v)
	return v, nil
}

// GetSE decodes a signed Exp-Golomb code in hardware.
func (r *Reader) GetSE() (int32, error) {
	raw, err := r.trigger(regs.TriggerGetSE)
	if err != nil {
		return 0, err
	}
	v := int32(raw) //nolint:gosec
	var k uint32
	if v > 0 {
		k = uint32(2*v - 1) //nolint:gosec
	} else {
		k = uint32(-2 * v) //nolint:gosec
	}
	r.pos += ueLen(k)
	return v, nil
}

// ueLen returns the coded length of ue(v) value k.
func ueLen(k uint32) int {
	return 2*(bits.Len64(uint64(k)+1)-1) + 1
}

func (r *Reader) trigger(word uint32) (uint32, error) {
	r.regs.Write32(regs.H264Trigger, word)
	if err := r.wait(); err != nil {
		return 0, err
	}
	return r.regs.Read32(regs.H264BasicBits), nil
}

func (r *Reader) wait() error {
	err := regs.WaitClear(r.regs, regs.H264Status, regs.StatusVLDBusy, r.poll)
	if errors.Is(err, regs.ErrPollTimeout) {
		return fmt.Errorf("%w: bit reader at %d: %w", twig.ErrHardwareTimeout, r.pos, err)
	}
	return err
}
