package delivery

import "strings"

// ContentDisposition returns an attachment header value carrying filename
// as an RFC 5987 extended parameter, so non-ASCII names survive intact.
func ContentDisposition(filename string) string {
	return "attachment; filename*=UTF-8''" + encodeRFC5987(filename)
}

func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"

	var sb strings.Builder

	sb.Grow(len(s) * 3)

	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			sb.WriteByte(c)
			continue
		}

		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0x0f])
	}

	return sb.String()
}

// attr-char from RFC 5987 section 3.2.1.
func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}

	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
