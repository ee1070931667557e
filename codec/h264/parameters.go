package h264

import (
	"errors"
	"fmt"

	"github.com/ugparu/twig/utils/nal"
)

var ErrDecconfInvalid = errors.New("h264parser: AVCDecoderConfRecord invalid")

// CodecParameters describes an H.264 stream from its decoder configuration record.
type CodecParameters struct {
	Record     []byte
	RecordInfo AVCDecoderConfRecord
	SPSInfo    *SPS
	PPSInfo    *PPS
}

// NewCodecDataFromSPSAndPPS builds the configuration record for one SPS and one PPS NAL unit.
func NewCodecDataFromSPSAndPPS(sps, pps []byte) (codecPar CodecParameters, err error) {
	if len(sps) < 4 { //nolint:mnd
		err = ErrDecconfInvalid
		return
	}
	recordinfo := AVCDecoderConfRecord{
		AVCProfileIndication: sps[1],
		ProfileCompatibility: sps[2],
		AVCLevelIndication:   sps[3],
		LengthSizeMinusOne:   nal.MinNaluSize - 1,
		SPS:                  [][]byte{sps},
		PPS:                  [][]byte{pps},
	}

	buf := make([]byte, recordinfo.Len())
	recordinfo.Marshal(buf)

	codecPar.RecordInfo = recordinfo
	codecPar.Record = buf
	err = codecPar.parseSets()
	return
}

// NewCodecDataFromAVCDecoderConfRecord parses an avcC record, typically container extradata.
func NewCodecDataFromAVCDecoderConfRecord(record []byte) (codecPar CodecParameters, err error) {
	codecPar.Record = record
	if _, err = (&codecPar.RecordInfo).Unmarshal(record); err != nil {
		return
	}
	if len(codecPar.RecordInfo.SPS) == 0 {
		err = errors.New("h264parser: no SPS found in AVCDecoderConfRecord")
		return
	}
	if len(codecPar.RecordInfo.PPS) == 0 {
		err = errors.New("h264parser: no PPS found in AVCDecoderConfRecord")
		return
	}
	err = codecPar.parseSets()
	return
}

func (par *CodecParameters) parseSets() (err error) {
	if par.SPSInfo, err = ParseSPS(par.SPS()); err != nil {
		return fmt.Errorf("h264parser: parse SPS failed(%w)", err)
	}
	lookup := func(uint32) *SPS { return par.SPSInfo }
	if par.PPSInfo, err = ParsePPS(par.PPS(), lookup); err != nil {
		return fmt.Errorf("h264parser: parse PPS failed(%w)", err)
	}
	return nil
}

func (par *CodecParameters) AVCDecoderConfRecordBytes() []byte {
	return par.Record
}

func (par *CodecParameters) SPS() []byte {
	return par.RecordInfo.SPS[0]
}

func (par *CodecParameters) PPS() []byte {
	return par.RecordInfo.PPS[0]
}

// AnnexB returns every SPS and PPS of the record as a start code prefixed stream.
func (par *CodecParameters) AnnexB() []byte {
	var out []byte
	for _, sps := range par.RecordInfo.SPS {
		out = nal.AppendAnnexB(out, sps)
	}
	for _, pps := range par.RecordInfo.PPS {
		out = nal.AppendAnnexB(out, pps)
	}
	return out
}

func (par *CodecParameters) Width() uint {
	return uint(par.SPSInfo.CroppedWidth())
}

func (par *CodecParameters) Height() uint {
	return uint(par.SPSInfo.CroppedHeight())
}

func (par *CodecParameters) FPS() uint {
	return uint(par.SPSInfo.FPS())
}

func (par *CodecParameters) Tag() string {
	return fmt.Sprintf("avc1.%02X%02X%02X",
		par.RecordInfo.AVCProfileIndication, par.RecordInfo.ProfileCompatibility, par.RecordInfo.AVCLevelIndication)
}
