// Package encoding normalises fetched documents to UTF-8 before parsing.
//
// Feeds published by third parties drift between encodings and frequently
// declare one charset while shipping another. Detection order for XML is:
// byte order mark, XML prolog, Content-Type header, statistical detection,
// and finally a Windows-1252 default. HTML uses the WHATWG sniffing rules of
// golang.org/x/net/html/charset, falling back to statistical detection when
// the result is uncertain.
package encoding

import (
	"bytes"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/net/html/charset"
	xenc "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// UTF8 is the canonical name returned for UTF-8 content.
const UTF8 = "utf-8"

// minConfidence is the chardet confidence (0-100) below which a guess is ignored.
const minConfidence = 40

var (
	prologRe   = regexp.MustCompile(`^\s*<\?xml[^>]*\?>`)
	encodingRe = regexp.MustCompile(`encoding\s*=\s*["']([A-Za-z0-9._:\-]+)["']`)
	versionRe  = regexp.MustCompile(`version\s*=\s*["'][^"']*["']`)

	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// NormalizeXML converts an XML document to UTF-8, strips any byte order
// mark and makes the prolog declare encoding="UTF-8", inserting a prolog
// when the document has none. It returns the converted bytes and the name
// of the detected source encoding.
func NormalizeXML(body []byte, contentType string) ([]byte, string) {
	enc, name := detectXML(body, contentType)

	out := decode(body, enc)
	out = bytes.TrimPrefix(out, bomUTF8)
	return rewriteProlog(out), name
}

// NormalizeHTML converts an HTML document to UTF-8 and strips any byte
// order mark. Meta charset declarations are left in place.
func NormalizeHTML(body []byte, contentType string) ([]byte, string) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	valid := utf8.Valid(body)

	// DetermineEncoding only inspects the first kilobyte; windows-1252 is
	// its fallback when nothing was declared.
	fallback := !certain && name == "windows-1252"
	switch {
	case fallback && valid:
		enc, name = xenc.Nop, UTF8
	case (fallback || isUTF8(name)) && !valid:
		if guessed, guessedName, ok := detectStatistical(body); ok {
			enc, name = guessed, guessedName
		}
	}

	out := decode(body, enc)
	return bytes.TrimPrefix(out, bomUTF8), canonical(name)
}

// DeclaredXMLEncoding returns the encoding label of the XML prolog, if any.
func DeclaredXMLEncoding(body []byte) string {
	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.TrimPrefix(head, bomUTF8)
	prolog := prologRe.Find(head)
	if prolog == nil {
		return ""
	}
	m := encodingRe.FindSubmatch(prolog)
	if m == nil {
		return ""
	}
	return string(m[1])
}

func detectXML(body []byte, contentType string) (xenc.Encoding, string) {
	switch {
	case bytes.HasPrefix(body, bomUTF8):
		return xenc.Nop, UTF8
	case bytes.HasPrefix(body, bomUTF16LE):
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), "utf-16le"
	case bytes.HasPrefix(body, bomUTF16BE):
		return unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), "utf-16be"
	}

	valid := utf8.Valid(body)

	// A UTF-8 declaration over non-UTF-8 bytes is the most common drift, so
	// it is not trusted blindly. A prolog readable as ASCII cannot belong to
	// a UTF-16 or UTF-32 document, so such labels are ignored.
	if label := DeclaredXMLEncoding(body); label != "" && !isWideUnicode(label) {
		if enc, name := charset.Lookup(label); enc != nil && !isWideUnicode(name) && (!isUTF8(name) || valid) {
			return enc, canonical(name)
		}
	}

	if label := contentTypeCharset(contentType); label != "" {
		if enc, name := charset.Lookup(label); enc != nil && (!isUTF8(name) || valid) {
			return enc, canonical(name)
		}
	}

	if valid {
		return xenc.Nop, UTF8
	}

	if enc, name, ok := detectStatistical(body); ok {
		return enc, name
	}

	enc, name := charset.Lookup("windows-1252")
	return enc, canonical(name)
}

// detectStatistical asks chardet for its best guess.
func detectStatistical(body []byte) (xenc.Encoding, string, bool) {
	res, err := chardet.NewTextDetector().DetectBest(body)
	if err != nil || res == nil || res.Confidence < minConfidence {
		return nil, "", false
	}
	enc, name := charset.Lookup(res.Charset)
	if enc == nil {
		return nil, "", false
	}
	return enc, canonical(name), true
}

func contentTypeCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

func decode(body []byte, enc xenc.Encoding) []byte {
	if enc == nil || enc == xenc.Nop {
		return body
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return body
	}
	return out
}

// rewriteProlog makes the XML declaration state UTF-8.
func rewriteProlog(body []byte) []byte {
	loc := prologRe.FindIndex(body)
	if loc == nil {
		trimmed := bytes.TrimLeft(body, " \t\r\n")
		out := make([]byte, 0, len(trimmed)+40)
		out = append(out, `<?xml version="1.0" encoding="UTF-8"?>`+"\n"...)
		return append(out, trimmed...)
	}

	prolog := strings.TrimSpace(string(body[loc[0]:loc[1]]))
	switch {
	case encodingRe.MatchString(prolog):
		prolog = encodingRe.ReplaceAllString(prolog, `encoding="UTF-8"`)
	case versionRe.MatchString(prolog):
		v := versionRe.FindString(prolog)
		prolog = strings.Replace(prolog, v, v+` encoding="UTF-8"`, 1)
	default:
		prolog = `<?xml version="1.0" encoding="UTF-8"?>`
	}

	out := make([]byte, 0, len(body)+16)
	out = append(out, prolog...)
	return append(out, body[loc[1]:]...)
}

func isUTF8(name string) bool {
	n := strings.ToLower(name)
	return n == "utf-8" || n == "utf8"
}

func isWideUnicode(name string) bool {
	n := strings.ToLower(strings.ReplaceAll(name, "_", "-"))
	return strings.HasPrefix(n, "utf-16") || strings.HasPrefix(n, "utf16") ||
		strings.HasPrefix(n, "utf-32") || strings.HasPrefix(n, "utf32") ||
		strings.HasPrefix(n, "ucs-2") || strings.HasPrefix(n, "ucs-4")
}

func canonical(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "utf8" {
		return UTF8
	}
	return n
}
