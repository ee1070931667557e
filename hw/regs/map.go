package regs

// VE top level registers, byte offsets from the VE base.
const (
	VECtrl           = 0x000
	VEReset          = 0x004
	VEIPDDblkBufCtrl = 0x050
	VEIPDBuf         = 0x054
	VEDblkBuf        = 0x058
	VEVersion        = 0x0f0

	RegionSize = 0x800 // Size of the mapped register window.
)

// VECtrl fields.
const (
	VEModeMask      = 0xf
	VEModeH264      = 0x1
	VEModeIdle      = 0x7
	VEDDRMode       = 0x3 << 16
	VERecWrMode     = 1 << 20
	VEWidePicture   = 1 << 21 // Required for pictures 2048 pixels wide and more.
	VEIPDDblkInDRAM = 0x2<<2 | 0x2
)

// H.264 engine registers, byte offsets from the VE base.
const (
	H264Base             = 0x200
	H264SeqHdr           = H264Base + 0x00
	H264PicHdr           = H264Base + 0x04
	H264SliceHdr         = H264Base + 0x08
	H264SliceHdr2        = H264Base + 0x0c
	H264PredWeight       = H264Base + 0x10
	H264QP               = H264Base + 0x1c
	H264Ctrl             = H264Base + 0x20
	H264Trigger          = H264Base + 0x24
	H264Status           = H264Base + 0x28
	H264CurMBNum         = H264Base + 0x2c
	H264VLDAddr          = H264Base + 0x30
	H264VLDOffset        = H264Base + 0x34
	H264VLDLen           = H264Base + 0x38
	H264VLDEnd           = H264Base + 0x3c
	H264SDRotCtrl        = H264Base + 0x40
	H264OutputFrameIndex = H264Base + 0x4c
	H264FieldIntraBuf    = H264Base + 0x50
	H264NeighborInfoBuf  = H264Base + 0x54
	H264PicMBSize        = H264Base + 0x58
	H264Error            = H264Base + 0xb8
	H264BasicBits        = H264Base + 0xdc
	H264RAMWritePtr      = H264Base + 0xe0
	H264RAMWriteData     = H264Base + 0xe4
)

// H264Ctrl fields.
const (
	CtrlIntEnable       = 0x7 // Slice done, decode error and VLD data request interrupts.
	CtrlWriteRecDisable = 1 << 8
	CtrlMCRICache       = 1 << 10
	CtrlEPTBBypass      = 1 << 24
	CtrlStartcodeDetect = 1 << 25
)

// H264Status fields. Status bits are cleared by writing them back.
const (
	StatusSliceDone  = 1 << 0
	StatusError      = 1 << 1
	StatusVLDDataReq = 1 << 2
	StatusVLDBusy    = 1 << 8
)

// H264Trigger codes.
const (
	TriggerShowBits    = 1
	TriggerGetBits     = 2
	TriggerFlushBits   = 3
	TriggerGetSE       = 4
	TriggerGetUE       = 5
	TriggerSyncByte    = 6
	TriggerInitSWDec   = 7
	TriggerDecodeSlice = 8
)

// TriggerBits returns a get/show/flush trigger word for n bits.
func TriggerBits(code, n uint32) uint32 {
	return n<<8 | code
}

// VLD address word flags.
const (
	VLDSliceDataValid = 1 << 28
	VLDLastSliceData  = 1 << 29
	VLDFirstSliceData = 1 << 30
)

// VLDAddress packs a bitstream bus address: bits 31..28 of the address move to
// the low nibble and the valid, first and last flags take their place.
func VLDAddress(addr uint32) uint32 {
	return addr&0x0ffffff0 | addr>>28 | VLDFirstSliceData | VLDLastSliceData | VLDSliceDataValid
}

// On-chip SRAM table offsets, loaded through H264RAMWritePtr and H264RAMWriteData.
const (
	SRAMPredWeight      = 0x000
	SRAMFrameBufferList = 0x400
	SRAMRefList0        = 0x640
	SRAMRefList1        = 0x664
	SRAMScalingLists    = 0x800
)
