package vld_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ugparu/twig"
	"github.com/ugparu/twig/hw/fake"
	"github.com/ugparu/twig/hw/regs"
	"github.com/ugparu/twig/hw/vld"
	"github.com/ugparu/twig/utils/bits"
	"github.com/ugparu/twig/utils/nal"
)

func load(t *testing.T, rbsp []byte) (*fake.Device, *vld.Reader) {
	t.Helper()

	dev := fake.NewDevice()
	raw := nal.Escape(rbsp)
	buf, err := dev.Alloc(len(raw) + 1)
	require.NoError(t, err)
	buf.Data()[0] = 0x65
	copy(buf.Data()[1:], raw)

	r := vld.NewReader(dev.Registers(), regs.DefaultPollConfig)
	require.NoError(t, r.Load(twig.DeviceAddr(buf), buf.Size(), 8))
	return dev, r
}

func TestReaderExpGolomb(t *testing.T) {
	t.Parallel()

	var w bits.Writer
	w.PutUE(0)
	w.PutUE(7)
	w.PutSE(-3)
	w.PutSE(4)
	w.PutBits(0x5, 3)
	w.PutUE(300)
	w.PutTrailingBits()

	_, r := load(t, w.Bytes())

	ue, err := r.GetUE()
	require.NoError(t, err)
	require.Equal(t, uint32(0), ue)
	require.Equal(t, 1, r.BitPos())

	ue, err = r.GetUE()
	require.NoError(t, err)
	require.Equal(t, uint32(7), ue)
	require.Equal(t, 8, r.BitPos())

	se, err := r.GetSE()
	require.NoError(t, err)
	require.Equal(t, int32(-3), se)
	se, err = r.GetSE()
	require.NoError(t, err)
	require.Equal(t, int32(4), se)
	require.Equal(t, 8+5+7, r.BitPos())

	v, err := r.GetBits(3)
	require.NoError(t, err)
	require.Equal(t, uint32(5), v)

	ue, err = r.GetUE()
	require.NoError(t, err)
	require.Equal(t, uint32(300), ue)
	require.Equal(t, 8+5+7+3+17, r.BitPos())
}

func TestReaderSkipAcrossEmulation(t *testing.T) {
	t.Parallel()

	// Two zero bytes followed by 0x01 need an emulation prevention byte once framed.
	rbsp := []byte{0x00, 0x00, 0x01, 0xa5, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x3c, 0x80}
	dev, r := load(t, rbsp)

	require.NoError(t, r.SkipBits(24))
	v, err := r.GetBits(8)
	require.NoError(t, err)
	require.Equal(t, uint32(0xa5), v)

	require.NoError(t, r.SkipBits(48))
	v, err = r.GetBits(8)
	require.NoError(t, err)
	require.Equal(t, uint32(0x3c), v)
	require.Equal(t, 88, r.BitPos())
	require.Equal(t, 88, dev.BitPos())

	flushes := 0
	for _, w := range dev.Regs.WritesTo(regs.H264Trigger) {
		if w&0xff == regs.TriggerFlushBits {
			require.LessOrEqual(t, w>>8, uint32(32))
			flushes++
		}
	}
	require.Equal(t, 3, flushes)
}

func TestReaderLoadRegisters(t *testing.T) {
	t.Parallel()

	dev, _ := load(t, []byte{0x88, 0x80})

	addr := dev.Regs.WritesTo(regs.H264VLDAddr)
	require.Len(t, addr, 1)
	require.Equal(t, regs.VLDAddress(0x4000_0000), addr[0])
	require.Equal(t, []uint32{8}, dev.Regs.WritesTo(regs.H264VLDOffset))
	require.Equal(t, []uint32{3*8 - 8}, dev.Regs.WritesTo(regs.H264VLDLen))
	require.Equal(t, []uint32{0x4000_0003}, dev.Regs.WritesTo(regs.H264VLDEnd))
	require.Equal(t, []uint32{regs.TriggerInitSWDec}, dev.Regs.WritesTo(regs.H264Trigger))
}

func TestReaderWidthAndTimeout(t *testing.T) {
	t.Parallel()

	dev, r := load(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff})

	_, err := r.GetBits(0)
	require.ErrorIs(t, err, bits.ErrInsufficientData)
	_, err = r.GetBits(33)
	require.ErrorIs(t, err, bits.ErrInsufficientData)
	require.ErrorIs(t, r.SkipBits(-1), bits.ErrInsufficientData)

	slow := vld.NewReader(dev.Registers(), regs.PollConfig{Timeout: time.Millisecond, Interval: 100 * time.Microsecond})
	dev.StickBusy()
	_, err = slow.GetUE()
	require.ErrorIs(t, err, twig.ErrHardwareTimeout)
	require.ErrorIs(t, err, regs.ErrPollTimeout)
}
