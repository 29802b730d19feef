package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

// Below this share of printable runes the content-stream text is treated as
// undecodable (CID fonts, custom encodings) and the next strategy runs.
const minPrintableRatio = 0.85

var disablePdfcpuConfig sync.Once

// PDFTexter is the external pdftotext fallback; *ocr.Engine implements it.
type PDFTexter interface {
	PDFText(ctx context.Context, data []byte) (string, error)
}

// PDFExtractor tries pdfcpu content streams, then ledongthuc/pdf, then pdftotext.
type PDFExtractor struct {
	fallback PDFTexter
	logger   *slog.Logger
}

// NewPDFExtractor builds the extractor. fallback may be nil.
func NewPDFExtractor(fallback PDFTexter, logger *slog.Logger) *PDFExtractor {
	disablePdfcpuConfig.Do(api.DisableConfigDir)
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{fallback: fallback, logger: logger}
}

func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	start := time.Now()

	txt, cpuErr := pdfcpuText(data)
	if cpuErr == nil && usable(txt) {
		e.logger.Debug("extract.pdf.ok", "method", "pdfcpu", "chars", len(txt), "elapsed_ms", time.Since(start).Milliseconds())
		return txt, nil
	}

	txt, plainErr := plainText(data)
	if plainErr == nil && usable(txt) {
		e.logger.Debug("extract.pdf.ok", "method", "plain", "chars", len(txt), "elapsed_ms", time.Since(start).Milliseconds())
		return txt, nil
	}

	if e.fallback != nil {
		txt, err := e.fallback.PDFText(ctx, data)
		if err == nil {
			e.logger.Debug("extract.pdf.ok", "method", "pdftotext", "chars", len(txt), "elapsed_ms", time.Since(start).Milliseconds())
			return strings.TrimSpace(txt), nil
		}
		e.logger.Warn("extract.pdf.fallback_failed", "error", err)
	}

	// both parsers rejected the bytes: not a readable PDF
	if cpuErr != nil && plainErr != nil {
		e.logger.Debug("extract.pdf.failed", "pdfcpu_error", cpuErr, "plain_error", plainErr)
		return "", failure(FormatPDF, cpuErr)
	}
	return "", nil
}

func usable(s string) bool {
	return strings.TrimSpace(s) != "" && printableRatio(s) >= minPrintableRatio
}

func printableRatio(s string) float64 {
	var total, ok int
	for _, r := range s {
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			ok++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(ok) / float64(total)
}

// pdfcpuText reads, validates and walks each page's content stream.
func pdfcpuText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return "", fmt.Errorf("pdfcpu read: %w", err)
	}

	var pages []string
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(pctx, pageNr)
		if err != nil || r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil || len(content) == 0 {
			continue
		}
		if t := textFromContent(content); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// plainText is the ledongthuc/pdf reader. It panics on some malformed files.
func plainText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			continue // skip unreadable pages
		}
		if t = strings.TrimSpace(t); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// textFromContent tokenizes a content stream and collects the strings shown by
// Tj, TJ, ' and ". Td/TD/T*/ET produce line breaks, wide TJ gaps become spaces.
func textFromContent(data []byte) string {
	var sb strings.Builder
	var shown []string
	var nums []float64
	inArray := false

	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	flush := func() {
		for _, s := range shown {
			sb.WriteString(s)
		}
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case isPDFSpace(c):
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			raw, n := readLiteral(data[i:])
			shown = append(shown, decodePDFText(raw))
			i += n
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2
		case c == '<':
			raw, n := readHexString(data[i:])
			shown = append(shown, decodePDFText(raw))
			i += n
		case c == '>':
			i++
		case c == '[':
			inArray = true
			i++
		case c == ']':
			inArray = false
			i++
		case c == '/':
			i++
			for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelim(data[i]) {
				i++
			}
		case c == '{' || c == '}':
			i++
		default:
			start := i
			for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelim(data[i]) {
				i++
			}
			if i == start { // stray ')'
				i++
				continue
			}
			tok := string(data[start:i])
			if v, err := strconv.ParseFloat(tok, 64); err == nil {
				if inArray && v <= -200 {
					shown = append(shown, " ")
				}
				nums = append(nums, v)
				continue
			}
			switch tok {
			case "Tj", "TJ":
				flush()
			case "'", "\"":
				newline()
				flush()
			case "T*", "ET":
				newline()
			case "Td", "TD":
				if len(nums) >= 2 && nums[len(nums)-1] != 0 {
					newline()
				} else if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
			case "BI":
				// inline image: skip binary data up to EI
				if end := bytes.Index(data[i:], []byte("EI")); end >= 0 {
					i += end + 2
				} else {
					i = len(data)
				}
			}
			shown = shown[:0]
			nums = nums[:0]
		}
	}
	return cleanLines(sb.String())
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == 0
}

func isPDFDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// readLiteral decodes a (...) string starting at data[0]. It returns the raw
// bytes and how many input bytes were consumed.
func readLiteral(data []byte) ([]byte, int) {
	var out []byte
	depth := 0
	i := 0
	for ; i < len(data); i++ {
		c := data[i]
		switch c {
		case '(':
			depth++
			if depth == 1 {
				continue
			}
		case ')':
			depth--
			if depth == 0 {
				return out, i + 1
			}
		case '\\':
			if i+1 >= len(data) {
				continue
			}
			i++
			switch e := data[i]; e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if i+1 < len(data) && data[i+1] == '\n' {
					i++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for k := 0; k < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; k++ {
						i++
						val = val*8 + int(data[i]-'0')
					}
					out = append(out, byte(val))
				} else {
					out = append(out, e)
				}
			}
			continue
		}
		out = append(out, c)
	}
	return out, i
}

func readHexString(data []byte) ([]byte, int) {
	var digits []byte
	i := 1
	for ; i < len(data) && data[i] != '>'; i++ {
		if isHex(data[i]) {
			digits = append(digits, data[i])
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	for k := range out {
		out[k] = unhex(digits[2*k])<<4 | unhex(digits[2*k+1])
	}
	return out, i + 1
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// decodePDFText handles UTF-16BE strings with a BOM; everything else is read
// as WinAnsi (cp1252), the encoding of the standard Type1 fonts.
func decodePDFText(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		out, err := xunicode.UTF16(xunicode.BigEndian, xunicode.ExpectBOM).NewDecoder().Bytes(raw)
		if err == nil {
			return string(out)
		}
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func cleanLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, ln := range lines {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}
