package extract

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
)

// decodeText decodes raw file bytes by trying each configured encoding in
// order. It returns the decoded text and whether any encoding succeeded;
// callers count a false result as an unreadable file rather than failing
// the scan.
func decodeText(data []byte, encodings []string) (string, bool) {
	for _, enc := range encodings {
		switch strings.ToLower(enc) {
		case "utf-8", "utf8":
			if utf8.Valid(data) {
				return string(data), true
			}
		case "cp949", "euc-kr", "euckr":
			// korean.EUCKR covers Code Page 949, the superset of EUC-KR.
			// The decoder substitutes U+FFFD for invalid bytes rather
			// than erroring, so a replacement rune in the output means
			// the input was not actually this encoding.
			decoded, err := korean.EUCKR.NewDecoder().Bytes(data)
			if err == nil && !strings.ContainsRune(string(decoded), utf8.RuneError) {
				return string(decoded), true
			}
		}
	}
	return "", false
}
