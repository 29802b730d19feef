package constants

import "strings"

// Format families handled by the extractors.
const (
	PDF         = "PDF"
	WORD        = "WORD"
	SPREADSHEET = "SPREADSHEET"
	IMAGE       = "IMAGE"
	TEXT        = "TEXT"
	HTML        = "HTML"
)

// Declared media types accepted by the router.
const (
	MediaTypePDF      = "application/pdf"
	MediaTypeDoc      = "application/msword"
	MediaTypeDocx     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeXls      = "application/vnd.ms-excel"
	MediaTypeXlsx     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MediaTypeJPEG     = "image/jpeg"
	MediaTypeJPG      = "image/jpg"
	MediaTypePNG      = "image/png"
	MediaTypeTIFF     = "image/tiff"
	MediaTypeText     = "text/plain"
	MediaTypeMarkdown = "text/markdown"
	MediaTypeXMD      = "text/x-markdown"
	MediaTypeCSV      = "text/csv"
	MediaTypeJSON     = "application/json"
	MediaTypeRTF      = "application/rtf"
	MediaTypeTextRTF  = "text/rtf"
	MediaTypeHTML     = "text/html"
)

// ExtensionMediaTypes maps lowercase extensions (without '.') to the media type we declare for them.
var ExtensionMediaTypes = map[string]string{
	"pdf":      MediaTypePDF,
	"doc":      MediaTypeDoc,
	"docx":     MediaTypeDocx,
	"xls":      MediaTypeXls,
	"xlsx":     MediaTypeXlsx,
	"jpg":      MediaTypeJPEG,
	"jpeg":     MediaTypeJPEG,
	"png":      MediaTypePNG,
	"tif":      MediaTypeTIFF,
	"tiff":     MediaTypeTIFF,
	"txt":      MediaTypeText,
	"md":       MediaTypeMarkdown,
	"markdown": MediaTypeMarkdown,
	"csv":      MediaTypeCSV,
	"json":     MediaTypeJSON,
	"rtf":      MediaTypeRTF,
	"html":     MediaTypeHTML,
	"htm":      MediaTypeHTML,
}

// AllowedExtensions holds the default extensions picked up by directory batches.
var AllowedExtensions = func() map[string]struct{} {
	out := make(map[string]struct{}, len(ExtensionMediaTypes))
	for ext := range ExtensionMediaTypes {
		out[ext] = struct{}{}
	}
	return out
}()

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MediaTypeForExt returns the declared media type for an extension, or "".
func MediaTypeForExt(ext string) string {
	return ExtensionMediaTypes[NormalizeExt(ext)]
}
