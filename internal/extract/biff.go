package extract

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"unicode/utf16"
)

// BIFF8 record types read by parseBIFF8.
const (
	recFormula    = 0x0006
	recEOF        = 0x000A
	recContinue   = 0x003C
	recBoundSheet = 0x0085
	recMulRK      = 0x00BD
	recSST        = 0x00FC
	recLabelSST   = 0x00FD
	recNumber     = 0x0203
	recLabel      = 0x0204
	recBoolErr    = 0x0205
	recString     = 0x0207
	recRK         = 0x027E
	recBOF        = 0x0809
)

type biffRecord struct {
	typ  uint16
	data []byte
}

// readRecords reads one substream starting at from, up to and including its EOF.
func readRecords(stream []byte, from int) ([]biffRecord, error) {
	var recs []biffRecord
	for off := from; off+4 <= len(stream); {
		typ := binary.LittleEndian.Uint16(stream[off:])
		size := int(binary.LittleEndian.Uint16(stream[off+2:]))
		off += 4
		if off+size > len(stream) {
			return recs, fmt.Errorf("record 0x%04X overruns stream", typ)
		}
		recs = append(recs, biffRecord{typ: typ, data: stream[off : off+size]})
		off += size
		if typ == recEOF {
			break
		}
	}
	return recs, nil
}

// parseBIFF8 returns the cells of the first worksheet as a row-major grid.
// Trailing empty cells of each row and trailing empty rows are dropped.
func parseBIFF8(stream []byte) ([][]string, error) {
	globals, err := readRecords(stream, 0)
	if err != nil && len(globals) == 0 {
		return nil, err
	}
	if len(globals) == 0 || globals[0].typ != recBOF {
		return nil, errors.New("missing BOF record")
	}

	var sst []string
	sheetOffset := -1
	for i := 0; i < len(globals); i++ {
		rec := globals[i]
		switch rec.typ {
		case recBoundSheet:
			if len(rec.data) >= 6 && rec.data[5] == 0 && sheetOffset < 0 {
				sheetOffset = int(binary.LittleEndian.Uint32(rec.data))
			}
		case recSST:
			segs := [][]byte{rec.data}
			for i+1 < len(globals) && globals[i+1].typ == recContinue {
				i++
				segs = append(segs, globals[i].data)
			}
			sst, err = parseSST(segs)
			if err != nil {
				return nil, err
			}
		}
	}
	if sheetOffset < 0 || sheetOffset >= len(stream) {
		return nil, errors.New("no worksheet found")
	}

	sheet, err := readRecords(stream, sheetOffset)
	if err != nil && len(sheet) == 0 {
		return nil, err
	}
	cells := map[int]map[int]string{}
	set := func(row, col int, v string) {
		if cells[row] == nil {
			cells[row] = map[int]string{}
		}
		cells[row][col] = v
	}
	var pendingRow, pendingCol = -1, -1 // formula waiting for its STRING record

	for _, rec := range sheet {
		d := rec.data
		if rec.typ != recBOF && rec.typ != recEOF && rec.typ != recString && len(d) < 6 {
			continue
		}
		switch rec.typ {
		case recLabelSST:
			if len(d) < 10 {
				continue
			}
			idx := int(binary.LittleEndian.Uint32(d[6:]))
			if idx < len(sst) {
				set(rowOf(d), colOf(d), sst[idx])
			}
		case recLabel:
			r := &contReader{segs: [][]byte{d[6:]}}
			if s, err := r.shortString(); err == nil {
				set(rowOf(d), colOf(d), s)
			}
		case recNumber:
			if len(d) < 14 {
				continue
			}
			set(rowOf(d), colOf(d), formatNumber(math.Float64frombits(binary.LittleEndian.Uint64(d[6:]))))
		case recRK:
			if len(d) < 10 {
				continue
			}
			set(rowOf(d), colOf(d), formatNumber(decodeRK(binary.LittleEndian.Uint32(d[6:]))))
		case recMulRK:
			row, first := rowOf(d), colOf(d)
			for k := 0; 4+k*6+6 <= len(d)-2; k++ {
				rk := binary.LittleEndian.Uint32(d[4+k*6+2:])
				set(row, first+k, formatNumber(decodeRK(rk)))
			}
		case recBoolErr:
			if len(d) < 8 {
				continue
			}
			set(rowOf(d), colOf(d), boolErr(d[6], d[7]))
		case recFormula:
			if len(d) < 14 {
				continue
			}
			val := d[6:14]
			if val[6] == 0xFF && val[7] == 0xFF {
				switch val[0] {
				case 0: // string result follows in a STRING record
					pendingRow, pendingCol = rowOf(d), colOf(d)
				case 1:
					set(rowOf(d), colOf(d), boolErr(val[2], 0))
				case 2:
					set(rowOf(d), colOf(d), boolErr(val[2], 1))
				}
				continue
			}
			set(rowOf(d), colOf(d), formatNumber(math.Float64frombits(binary.LittleEndian.Uint64(val))))
		case recString:
			if pendingRow < 0 {
				continue
			}
			r := &contReader{segs: [][]byte{d}}
			if s, err := r.shortString(); err == nil {
				set(pendingRow, pendingCol, s)
			}
			pendingRow, pendingCol = -1, -1
		}
	}
	return grid(cells), nil
}

func rowOf(d []byte) int { return int(binary.LittleEndian.Uint16(d)) }
func colOf(d []byte) int { return int(binary.LittleEndian.Uint16(d[2:])) }

func grid(cells map[int]map[int]string) [][]string {
	maxRow := -1
	for r := range cells {
		if r > maxRow {
			maxRow = r
		}
	}
	rows := make([][]string, maxRow+1)
	for r, cols := range cells {
		keys := make([]int, 0, len(cols))
		for c := range cols {
			keys = append(keys, c)
		}
		sort.Ints(keys)
		row := make([]string, keys[len(keys)-1]+1)
		for _, c := range keys {
			row[c] = cols[c]
		}
		for len(row) > 0 && row[len(row)-1] == "" {
			row = row[:len(row)-1]
		}
		rows[r] = row
	}
	for len(rows) > 0 && len(rows[len(rows)-1]) == 0 {
		rows = rows[:len(rows)-1]
	}
	return rows
}

func decodeRK(rk uint32) float64 {
	var v float64
	if rk&0x02 != 0 {
		v = float64(int32(rk) >> 2)
	} else {
		v = math.Float64frombits(uint64(rk&0xFFFFFFFC) << 32)
	}
	if rk&0x01 != 0 {
		v /= 100
	}
	return v
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func boolErr(v, isErr byte) string {
	if isErr == 0 {
		if v != 0 {
			return "TRUE"
		}
		return "FALSE"
	}
	switch v {
	case 0x00:
		return "#NULL!"
	case 0x07:
		return "#DIV/0!"
	case 0x0F:
		return "#VALUE!"
	case 0x17:
		return "#REF!"
	case 0x1D:
		return "#NAME?"
	case 0x24:
		return "#NUM!"
	default:
		return "#N/A"
	}
}

// parseSST reads the shared string table spread over SST + CONTINUE payloads.
func parseSST(segs [][]byte) ([]string, error) {
	r := &contReader{segs: segs}
	if _, err := r.u32(); err != nil { // cstTotal
		return nil, err
	}
	unique, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, min(unique, 1<<16))
	for i := uint32(0); i < unique; i++ {
		s, err := r.richString()
		if err != nil {
			return out, fmt.Errorf("sst entry %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// contReader reads across record boundaries. A character array split by a
// CONTINUE record resumes with a fresh option byte.
type contReader struct {
	segs [][]byte
	seg  int
	off  int
}

func (r *contReader) advance() bool {
	for r.seg < len(r.segs) && r.off >= len(r.segs[r.seg]) {
		r.seg++
		r.off = 0
	}
	return r.seg < len(r.segs)
}

func (r *contReader) readByte() (byte, error) {
	if !r.advance() {
		return 0, errors.New("unexpected end of string table")
	}
	b := r.segs[r.seg][r.off]
	r.off++
	return b, nil
}

func (r *contReader) u16() (uint16, error) {
	lo, err := r.readByte()
	if err != nil {
		return 0, err
	}
	hi, err := r.readByte()
	return uint16(lo) | uint16(hi)<<8, err
}

func (r *contReader) u32() (uint32, error) {
	lo, err := r.u16()
	if err != nil {
		return 0, err
	}
	hi, err := r.u16()
	return uint32(lo) | uint32(hi)<<16, err
}

func (r *contReader) skip(n int) error {
	for ; n > 0; n-- {
		if _, err := r.readByte(); err != nil {
			return err
		}
	}
	return nil
}

func (r *contReader) chars(n int, high bool) (string, error) {
	u := make([]uint16, 0, n)
	for len(u) < n {
		if r.seg < len(r.segs) && r.off >= len(r.segs[r.seg]) {
			if !r.advance() {
				return "", errors.New("unexpected end of string table")
			}
			flags, _ := r.readByte()
			high = flags&0x01 != 0
		}
		if high {
			c, err := r.u16()
			if err != nil {
				return "", err
			}
			u = append(u, c)
		} else {
			b, err := r.readByte()
			if err != nil {
				return "", err
			}
			u = append(u, uint16(b))
		}
	}
	return string(utf16.Decode(u)), nil
}

// shortString reads an XLUnicodeString (16-bit length, option byte, chars).
func (r *contReader) shortString() (string, error) {
	cch, err := r.u16()
	if err != nil {
		return "", err
	}
	flags, err := r.readByte()
	if err != nil {
		return "", err
	}
	return r.chars(int(cch), flags&0x01 != 0)
}

// richString reads an XLUnicodeRichExtendedString and discards formatting runs
// and phonetic data.
func (r *contReader) richString() (string, error) {
	cch, err := r.u16()
	if err != nil {
		return "", err
	}
	flags, err := r.readByte()
	if err != nil {
		return "", err
	}
	var runs uint16
	var ext uint32
	if flags&0x08 != 0 {
		if runs, err = r.u16(); err != nil {
			return "", err
		}
	}
	if flags&0x04 != 0 {
		if ext, err = r.u32(); err != nil {
			return "", err
		}
	}
	s, err := r.chars(int(cch), flags&0x01 != 0)
	if err != nil {
		return "", err
	}
	if err := r.skip(int(runs)*4 + int(ext)); err != nil {
		return "", err
	}
	return s, nil
}
