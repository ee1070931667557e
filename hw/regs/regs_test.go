package regs

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMMIO(t *testing.T) {
	t.Parallel()

	_, err := NewMMIO(make([]byte, 16))
	require.ErrorIs(t, err, ErrOutOfRange)

	mem := make([]byte, RegionSize)
	m, err := NewMMIO(mem)
	require.NoError(t, err)

	m.Write32(H264Ctrl, 0x400)
	require.Equal(t, uint32(0x400), m.Read32(H264Ctrl))
	require.Equal(t, uint32(0x400), binary.LittleEndian.Uint32(mem[H264Ctrl:]))

	Set(m, H264Ctrl, CtrlIntEnable)
	require.Equal(t, uint32(0x407), m.Read32(H264Ctrl))
	Clear(m, H264Ctrl, CtrlMCRICache)
	require.Equal(t, uint32(0x7), m.Read32(H264Ctrl))

	require.Panics(t, func() { m.Read32(RegionSize) })
	require.Panics(t, func() { m.Write32(H264Ctrl+1, 0) })
}

func TestVLDAddress(t *testing.T) {
	t.Parallel()

	require.Equal(t, uint32(0x7234_5671), VLDAddress(0x1234_5670))
	require.Equal(t, uint32(0x7000_1004), VLDAddress(0x4000_1000))
	require.Equal(t, uint32(0x0502), TriggerBits(TriggerGetBits, 5))
	require.Equal(t, uint32(0x2003), TriggerBits(TriggerFlushBits, 32))
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	var hooked []uint32
	r.OnWrite(H264Trigger, func(rec *Recorder, v uint32) {
		hooked = append(hooked, v)
		rec.Set(H264BasicBits, v+1)
	})

	r.Write32(H264Trigger, TriggerGetUE)
	require.Equal(t, []uint32{TriggerGetUE}, hooked)
	require.Equal(t, uint32(TriggerGetUE+1), r.Read32(H264BasicBits))
	require.Empty(t, r.WritesTo(H264BasicBits))

	WriteSRAM(r, SRAMRefList0, 0x0201, 0x0403)
	require.Equal(t, []uint32{0x0201, 0x0403}, r.SRAM(SRAMRefList0, 2))
	require.Equal(t, []uint32{SRAMRefList0}, r.WritesTo(H264RAMWritePtr))
	require.Len(t, r.Writes(), 4)

	r.ClearWrites()
	require.Empty(t, r.Writes())
	require.Equal(t, uint32(0x0403), r.SRAM(SRAMRefList0+4, 1)[0])
}

func TestWaitClear(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	require.NoError(t, WaitClear(r, H264Status, StatusVLDBusy, DefaultPollConfig))

	r.Set(H264Status, StatusVLDBusy)
	go func() {
		time.Sleep(5 * time.Millisecond)
		r.Set(H264Status, 0)
	}()
	require.NoError(t, WaitClear(r, H264Status, StatusVLDBusy, PollConfig{
		Timeout: time.Second, Interval: 100 * time.Microsecond, MaxInterval: time.Millisecond,
	}))

	r.Set(H264Status, StatusVLDBusy)
	err := WaitClear(r, H264Status, StatusVLDBusy, PollConfig{Timeout: 2 * time.Millisecond})
	require.ErrorIs(t, err, ErrPollTimeout)
}
