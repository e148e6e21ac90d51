package bmp

import "encoding/binary"

// rawTLV is one type-length-value entry as read off the wire.
type rawTLV struct {
	Type  uint16
	Value []byte
}

// walkTLVs extracts consecutive TLVs until the buffer is exhausted.
// Each entry is 2-byte type, 2-byte length, then length bytes of value.
// A buffer ending mid-entry yields a MalformedTLVError; the walker never
// reads past the supplied bytes.
func walkTLVs(data []byte) ([]rawTLV, error) {
	var tlvs []rawTLV
	offset := 0
	for offset < len(data) {
		if offset+4 > len(data) {
			return nil, &MalformedTLVError{Offset: offset, Need: 4, Have: len(data) - offset}
		}
		infoType := binary.BigEndian.Uint16(data[offset : offset+2])
		infoLen := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4

		if offset+infoLen > len(data) {
			return nil, &MalformedTLVError{Offset: offset, Need: infoLen, Have: len(data) - offset}
		}

		tlvs = append(tlvs, rawTLV{Type: infoType, Value: data[offset : offset+infoLen]})
		offset += infoLen
	}
	return tlvs, nil
}

// decodeInfoTLVs walks a TLV stream and names each entry via the given
// lookup table. Unrecognized types are retained with an empty name.
func decodeInfoTLVs(data []byte, names map[uint16]string) ([]InfoTLV, error) {
	tlvs, err := walkTLVs(data)
	if err != nil {
		return nil, err
	}

	info := make([]InfoTLV, 0, len(tlvs))
	for _, tlv := range tlvs {
		info = append(info, InfoTLV{
			Type:  tlv.Type,
			Name:  names[tlv.Type],
			Value: tlv.Value,
		})
	}
	return info, nil
}
