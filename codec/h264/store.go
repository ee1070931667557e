package h264

// ParameterSets stores the active SPS and PPS tables by id.
type ParameterSets struct {
	sps [MaxSPSCount]*SPS
	pps [MaxPPSCount]*PPS
}

// SPS returns the SPS with the given id, or nil.
func (p *ParameterSets) SPS(id uint32) *SPS {
	if id >= MaxSPSCount {
		return nil
	}
	return p.sps[id]
}

// PPS returns the PPS with the given id, or nil.
func (p *ParameterSets) PPS(id uint32) *PPS {
	if id >= MaxPPSCount {
		return nil
	}
	return p.pps[id]
}

// PutSPS parses nalu and stores it. changed is false when an identical SPS was
// already stored under the same id; the stored value is kept in that case.
func (p *ParameterSets) PutSPS(nalu []byte) (sps *SPS, changed bool, err error) {
	if sps, err = ParseSPS(nalu); err != nil {
		return nil, false, err
	}
	if old := p.sps[sps.ID]; old.Equal(sps) {
		return old, false, nil
	}
	p.sps[sps.ID] = sps
	return sps, true, nil
}

// PutPPS parses nalu and stores it. changed is false when an identical PPS was
// already stored under the same id.
func (p *ParameterSets) PutPPS(nalu []byte) (pps *PPS, changed bool, err error) {
	if pps, err = ParsePPS(nalu, p.SPS); err != nil {
		return nil, false, err
	}
	if old := p.pps[pps.ID]; old.Equal(pps) {
		return old, false, nil
	}
	p.pps[pps.ID] = pps
	return pps, true, nil
}

// Reset drops every stored parameter set.
func (p *ParameterSets) Reset() {
	*p = ParameterSets{}
}
