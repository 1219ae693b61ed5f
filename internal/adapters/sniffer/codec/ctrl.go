package codec

// BlockAck holds the control and information fields of BlockAckReq and
// BlockAck frames.
type BlockAck struct {
	AckPolicy  bool
	MultiTID   bool
	Compressed bool
	TIDInfo    uint8
	Info       []BlockAckInfo
}

// BlockAckInfo is one (sequence control, bitmap) entry. Bitmap is empty for
// BlockAckReq frames.
type BlockAckInfo struct {
	TID     uint8
	SeqCtrl SeqCtrl
	Bitmap  []byte
}

const (
	basicBitmapLen      = 128
	compressedBitmapLen = 8
)

// readBlockAck reads the BAR/BA control field and its information field.
// Entries are appended until the body runs out; a reserved variant stops
// after the control field.
func readBlockAck(r *reader, isBA bool) *BlockAck {
	ctl, ok := r.u16()
	if !ok {
		return nil
	}
	ba := &BlockAck{
		AckPolicy:  ctl&0x0001 != 0,
		MultiTID:   ctl&0x0002 != 0,
		Compressed: ctl&0x0004 != 0,
		TIDInfo:    uint8(ctl >> 12),
	}

	bitmapLen := 0
	if isBA {
		switch {
		case !ba.MultiTID && !ba.Compressed:
			bitmapLen = basicBitmapLen
		case ba.Compressed:
			bitmapLen = compressedBitmapLen
		default:
			return ba
		}
	}

	if !ba.MultiTID {
		sc, ok := r.u16()
		if !ok {
			return ba
		}
		info := BlockAckInfo{TID: ba.TIDInfo, SeqCtrl: ParseSeqCtrl(sc)}
		if bitmapLen > 0 {
			if info.Bitmap = r.take(bitmapLen); info.Bitmap == nil {
				return ba
			}
		}
		ba.Info = append(ba.Info, info)
		return ba
	}

	// multi-TID: TIDInfo holds the number of TIDs minus one
	for i := 0; i <= int(ba.TIDInfo); i++ {
		perTID, _ := r.u16()
		sc, ok := r.u16()
		if !ok {
			return ba
		}
		info := BlockAckInfo{TID: uint8(perTID >> 12), SeqCtrl: ParseSeqCtrl(sc)}
		if bitmapLen > 0 {
			if info.Bitmap = r.take(bitmapLen); info.Bitmap == nil {
				return ba
			}
		}
		ba.Info = append(ba.Info, info)
	}
	return ba
}
