package sessionlog

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/golang/snappy"

	"github.com/rzbill/vizsync/internal/timeslice"
)

// Record encoding: uvarint headerLen | header | snappy(json) | crc32c(header|payload)
// Header: flags (4B BE) | update type.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// ErrCorrupt reports a record that failed framing or checksum validation.
var ErrCorrupt = errors.New("sessionlog: corrupt record")

func encodeHeader(ts *timeslice.Timeslice) []byte {
	h := make([]byte, 4, 4+len(ts.UpdateType))
	binary.BigEndian.PutUint32(h, uint32(ts.MissingContentFlags))
	return append(h, ts.UpdateType...)
}

// EncodeRecord serializes one timeslice.
func EncodeRecord(ts *timeslice.Timeslice) ([]byte, error) {
	raw, err := json.Marshal(ts)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: marshal timeslice %v: %w", ts.Timestamp, err)
	}
	header := encodeHeader(ts)
	payload := snappy.Encode(nil, raw)

	out := make([]byte, 0, binary.MaxVarintLen64+len(header)+len(payload)+4)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	return binary.BigEndian.AppendUint32(out, crc), nil
}

// DecodeRecord parses a record written by EncodeRecord. Header fields take
// precedence over the payload.
func DecodeRecord(b []byte) (*timeslice.Timeslice, error) {
	if len(b) < 1+4 {
		return nil, ErrCorrupt
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || hlen < 4 || uint64(n)+hlen+4 > uint64(len(b)) {
		return nil, ErrCorrupt
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return nil, ErrCorrupt
	}

	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	ts := &timeslice.Timeslice{}
	if err := json.Unmarshal(raw, ts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	ts.MissingContentFlags = timeslice.ContentFlags(binary.BigEndian.Uint32(header[:4]))
	ts.UpdateType = timeslice.UpdateType(header[4:])
	return ts, nil
}
