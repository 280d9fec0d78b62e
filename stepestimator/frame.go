package stepestimator

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sigurn/crc8"
)

const (
	frameVersion    = 1
	frameHeaderSize = 6
	frameRecordSize = 8
	frameCRCSize    = 1
)

var (
	frameMagic = [2]byte{'B', 'S'}

	crcTable = crc8.MakeTable(crc8.Params{
		Poly:   0x31,
		Init:   0xFF,
		RefIn:  false,
		RefOut: false,
		XorOut: 0x00,
	})
)

var (
	ErrBadFrame = errors.New("bad history frame")
	ErrBadCRC   = errors.New("bad crc")
)

// EncodeHistory packs the records into a frame:
//
//	'B' 'S' version direction count(uint16 BE) records(uint64 BE)... crc8
func EncodeHistory(d Direction, records []StepRecord) []byte {
	if len(records) > MaxLevelSteps {
		records = records[:MaxLevelSteps]
	}
	buf := make([]byte, 0, FrameSize(len(records)))
	buf = append(buf, frameMagic[0], frameMagic[1], frameVersion, byte(d))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(records)))
	for _, r := range records {
		buf = binary.BigEndian.AppendUint64(buf, r.Pack())
	}
	return append(buf, crc8.Checksum(buf, crcTable))
}

// FrameSize returns the encoded size of a frame holding n records.
func FrameSize(n int) int {
	return frameHeaderSize + n*frameRecordSize + frameCRCSize
}

// DecodeHistory reads one frame from the start of data. It returns the
// direction, the records and the number of bytes consumed.
func DecodeHistory(data []byte) (Direction, []StepRecord, int, error) {
	if len(data) < FrameSize(0) {
		return 0, nil, 0, fmt.Errorf("%w: %d bytes is too short", ErrBadFrame, len(data))
	}
	if data[0] != frameMagic[0] || data[1] != frameMagic[1] {
		return 0, nil, 0, fmt.Errorf("%w: bad magic 0x%02X%02X", ErrBadFrame, data[0], data[1])
	}
	if data[2] != frameVersion {
		return 0, nil, 0, fmt.Errorf("%w: unsupported version %d", ErrBadFrame, data[2])
	}
	d := Direction(data[3])
	if d != Discharge && d != Charge {
		return 0, nil, 0, fmt.Errorf("%w: unknown direction %d", ErrBadFrame, data[3])
	}
	count := int(binary.BigEndian.Uint16(data[4:6]))
	if count > MaxLevelSteps {
		return 0, nil, 0, fmt.Errorf("%w: %d records is more than %d", ErrBadFrame, count, MaxLevelSteps)
	}
	size := FrameSize(count)
	if len(data) < size {
		return 0, nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBadFrame, size, len(data))
	}
	crc := crc8.Checksum(data[:size-frameCRCSize], crcTable)
	if crc != data[size-1] {
		return 0, nil, 0, fmt.Errorf("%w: got 0x%02X, expected 0x%02X", ErrBadCRC, data[size-1], crc)
	}
	records := make([]StepRecord, count)
	for i := range records {
		offset := frameHeaderSize + i*frameRecordSize
		records[i] = UnpackStepRecord(binary.BigEndian.Uint64(data[offset:]))
	}
	return d, records, size, nil
}
