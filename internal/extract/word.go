package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/charmap"
)

var (
	zipMagic = []byte("PK\x03\x04")
	cfbMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// WordExtractor reads docx (OOXML) and legacy doc (Word 97-2003) files.
// The container is chosen from the magic bytes, not the declared type.
type WordExtractor struct {
	logger *slog.Logger
}

func NewWordExtractor(logger *slog.Logger) *WordExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &WordExtractor{logger: logger}
}

func (e *WordExtractor) Extract(_ context.Context, data []byte) (string, error) {
	start := time.Now()
	var (
		txt    string
		err    error
		method string
	)
	switch {
	case bytes.HasPrefix(data, zipMagic):
		method = "docx"
		txt, err = docxText(data)
	case bytes.HasPrefix(data, cfbMagic):
		method = "doc"
		txt, err = docText(data)
	default:
		err = errors.New("not a Word document")
	}
	if err != nil {
		return "", failure(FormatWord, err)
	}
	e.logger.Debug("extract.word.ok", "method", method, "chars", len(txt), "elapsed_ms", time.Since(start).Milliseconds())
	return txt, nil
}

// docxText walks word/document.xml: w:t runs are joined, w:p ends a line,
// w:tab and w:br are kept.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("word/document.xml not found")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var sb strings.Builder
	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// docText opens the compound file and decodes the piece table.
func docText(data []byte) (string, error) {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open compound file: %w", err)
	}
	streams := map[string][]byte{}
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		switch entry.Name {
		case "WordDocument", "0Table", "1Table":
			b, err := io.ReadAll(entry)
			if err != nil {
				return "", fmt.Errorf("read %s stream: %w", entry.Name, err)
			}
			streams[entry.Name] = b
		}
	}
	wd, ok := streams["WordDocument"]
	if !ok {
		return "", errors.New("WordDocument stream not found")
	}
	return pieceTableText(wd, streams)
}

const (
	fibIdent        = 0xA5EC
	fibFlagsOffset  = 0x000A
	fibEncrypted    = 0x0100
	fibWhichTblStm  = 0x0200
	fibBaseSize     = 32
	fibClxIndex     = 33 // fcClx/lcbClx pair in FibRgFcLcb97
	fibCcpTextIndex = 3  // ccpText in FibRgLw97
)

// pieceTableText locates the CLX through the FIB and decodes every piece of the
// main document. Compressed pieces are cp1252, the rest UTF-16LE.
func pieceTableText(wd []byte, streams map[string][]byte) (string, error) {
	if len(wd) < fibBaseSize+2 || binary.LittleEndian.Uint16(wd) != fibIdent {
		return "", errors.New("invalid FIB")
	}
	flags := binary.LittleEndian.Uint16(wd[fibFlagsOffset:])
	if flags&fibEncrypted != 0 {
		return "", errors.New("document is encrypted")
	}
	tableName := "0Table"
	if flags&fibWhichTblStm != 0 {
		tableName = "1Table"
	}
	table, ok := streams[tableName]
	if !ok {
		return "", fmt.Errorf("%s stream not found", tableName)
	}

	// FibBase | csw | fibRgW | cslw | fibRgLw | cbRgFcLcb | fibRgFcLcb
	off := fibBaseSize
	csw := int(binary.LittleEndian.Uint16(wd[off:]))
	off += 2 + csw*2
	if off+2 > len(wd) {
		return "", errors.New("truncated FIB")
	}
	cslw := int(binary.LittleEndian.Uint16(wd[off:]))
	lwStart := off + 2
	off = lwStart + cslw*4
	if off+2 > len(wd) || cslw <= fibCcpTextIndex {
		return "", errors.New("truncated FIB")
	}
	ccpText := int(binary.LittleEndian.Uint32(wd[lwStart+fibCcpTextIndex*4:]))
	cb := int(binary.LittleEndian.Uint16(wd[off:]))
	fcStart := off + 2
	if cb <= fibClxIndex || fcStart+(fibClxIndex+1)*8 > len(wd) {
		return "", errors.New("truncated FIB")
	}
	fcClx := int(binary.LittleEndian.Uint32(wd[fcStart+fibClxIndex*8:]))
	lcbClx := int(binary.LittleEndian.Uint32(wd[fcStart+fibClxIndex*8+4:]))
	if lcbClx == 0 || fcClx+lcbClx > len(table) {
		return "", errors.New("CLX out of range")
	}

	cps, pcds, err := parseClx(table[fcClx : fcClx+lcbClx])
	if err != nil {
		return "", err
	}

	var runes []rune
	for i, pcd := range pcds {
		n := int(cps[i+1]) - int(cps[i])
		if n <= 0 {
			continue
		}
		fc := binary.LittleEndian.Uint32(pcd[2:6])
		compressed := fc&0x40000000 != 0
		fc &= 0x3FFFFFFF
		if compressed {
			start := int(fc / 2)
			if start+n > len(wd) {
				return "", errors.New("piece out of range")
			}
			dec, err := charmap.Windows1252.NewDecoder().Bytes(wd[start : start+n])
			if err != nil {
				return "", fmt.Errorf("decode piece: %w", err)
			}
			runes = append(runes, []rune(string(dec))...)
			continue
		}
		start := int(fc)
		if start+2*n > len(wd) {
			return "", errors.New("piece out of range")
		}
		u := make([]uint16, n)
		for k := range u {
			u[k] = binary.LittleEndian.Uint16(wd[start+2*k:])
		}
		runes = append(runes, utf16.Decode(u)...)
	}
	if ccpText > 0 && ccpText < len(runes) {
		runes = runes[:ccpText]
	}
	return cleanWordText(runes), nil
}

// parseClx skips Prc entries and returns the PlcPcd: n+1 CPs and n 8-byte PCDs.
func parseClx(clx []byte) ([]uint32, [][]byte, error) {
	i := 0
	for i < len(clx) && clx[i] == 0x01 {
		if i+3 > len(clx) {
			return nil, nil, errors.New("truncated Prc")
		}
		cb := int(int16(binary.LittleEndian.Uint16(clx[i+1:])))
		if cb < 0 {
			return nil, nil, errors.New("invalid Prc size")
		}
		i += 3 + cb
	}
	if i+5 > len(clx) || clx[i] != 0x02 {
		return nil, nil, errors.New("piece table not found")
	}
	lcb := int(binary.LittleEndian.Uint32(clx[i+1:]))
	plc := clx[i+5:]
	if lcb > len(plc) || (lcb-4)%12 != 0 {
		return nil, nil, errors.New("invalid piece table size")
	}
	n := (lcb - 4) / 12
	cps := make([]uint32, n+1)
	for k := range cps {
		cps[k] = binary.LittleEndian.Uint32(plc[4*k:])
	}
	pcds := make([][]byte, n)
	base := 4 * (n + 1)
	for k := range pcds {
		pcds[k] = plc[base+8*k : base+8*k+8]
	}
	return cps, pcds, nil
}

// cleanWordText drops field instructions (between 0x13 and 0x14, results are
// kept) and turns the remaining control characters into newlines.
func cleanWordText(runes []rune) string {
	var sb strings.Builder
	var fields []bool // true while inside a field's instruction part
	hidden := func() bool {
		for _, instr := range fields {
			if instr {
				return true
			}
		}
		return false
	}
	for _, r := range runes {
		switch {
		case r == 0x13:
			fields = append(fields, true)
		case r == 0x14:
			if len(fields) > 0 {
				fields[len(fields)-1] = false
			}
		case r == 0x15:
			if len(fields) > 0 {
				fields = fields[:len(fields)-1]
			}
		case hidden():
		case r == '\t':
			sb.WriteRune(r)
		case r < 0x20:
			sb.WriteByte('\n')
		default:
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}
