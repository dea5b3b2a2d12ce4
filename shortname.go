package gofat

import (
	"strings"

	"github.com/roundwheel/gofat/checkpoint"
)

// shortNameCharset lists the punctuation subset (beyond A-Z0-9) legal in an
// 8.3 name per spec §4.8.
const shortNameCharset = "!#$%&'()-@^_`{}~"

// shortName is the 11-byte 8.3 identifier stored in a directory entry's Name
// field, kept split as base(8)+ext(3) until the moment it is packed.
type shortName struct {
	base [8]byte
	ext  [3]byte
}

func isValidShortNameByte(b byte) bool {
	if b >= 'A' && b <= 'Z' {
		return true
	}
	if b >= '0' && b <= '9' {
		return true
	}
	return strings.IndexByte(shortNameCharset, b) >= 0
}

// parseShortName decodes the raw 11-byte on-disk field, undoing the 0x05
// kanji-escape substitution for a leading 0xE5.
func parseShortName(raw [11]byte) shortName {
	var sn shortName
	copy(sn.base[:], raw[0:8])
	copy(sn.ext[:], raw[8:11])
	if sn.base[0] == 0x05 {
		sn.base[0] = 0xE5
	}
	return sn
}

// bytes packs the short name back to its 11-byte on-disk form, applying the
// 0xE5 kanji escape.
func (s shortName) bytes() [11]byte {
	var out [11]byte
	copy(out[0:8], s.base[:])
	copy(out[8:11], s.ext[:])
	if out[0] == 0xE5 {
		out[0] = 0x05
	}
	return out
}

func (s shortName) String() string {
	base := strings.TrimRight(string(s.base[:]), " ")
	ext := strings.TrimRight(string(s.ext[:]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// checksum implements spec §3's rotate-and-add LFN checksum over the 11
// on-disk short-name bytes.
func (s shortName) checksum() byte {
	raw := s.bytes()
	var sum byte
	for _, b := range raw {
		sum = ((sum >> 1) | (sum << 7)) + b
	}
	return sum
}

// newShortNameFromLiteral builds a shortName directly from an already-legal
// "BASE.EXT"-shaped 8.3 string (used by the formatter and tests), rejecting
// anything containing characters outside the short-name charset.
func newShortNameFromLiteral(literal string) (shortName, error) {
	var sn shortName
	for i := range sn.base {
		sn.base[i] = ' '
	}
	for i := range sn.ext {
		sn.ext[i] = ' '
	}

	base, ext, _ := strings.Cut(strings.ToUpper(literal), ".")
	if len(base) > 8 || len(ext) > 3 {
		return shortName{}, checkpoint.From(ErrIllegalShortName)
	}
	for i := 0; i < len(base); i++ {
		if !isValidShortNameByte(base[i]) {
			return shortName{}, checkpoint.From(ErrIllegalShortName)
		}
		sn.base[i] = base[i]
	}
	for i := 0; i < len(ext); i++ {
		if !isValidShortNameByte(ext[i]) {
			return shortName{}, checkpoint.From(ErrIllegalShortName)
		}
		sn.ext[i] = ext[i]
	}
	return sn, nil
}

// generateShortName derives an 8.3 candidate from an arbitrary long name
// following spec §4.8: strip illegal characters, uppercase, truncate to 6
// and append "~N", growing N until unique reports no collision.
func generateShortName(longName string, unique func(candidate string) bool) (shortName, error) {
	base, ext, hasExt := strings.Cut(strings.ToUpper(longName), ".")
	if !hasExt {
		base, ext = strings.ToUpper(longName), ""
	}

	cleanBase := cleanShortNameChars(base)
	cleanExt := cleanShortNameChars(ext)
	if len(cleanExt) > 3 {
		cleanExt = cleanExt[:3]
	}

	for n := 1; n < 1_000_000; n++ {
		suffix := "~" + itoa(n)
		baseLen := 8 - len(suffix)
		if baseLen < 1 {
			baseLen = 1
		}
		truncated := cleanBase
		if len(truncated) > baseLen {
			truncated = truncated[:baseLen]
		}
		candidate := truncated + suffix

		var sn shortName
		for i := range sn.base {
			sn.base[i] = ' '
		}
		for i := range sn.ext {
			sn.ext[i] = ' '
		}
		copy(sn.base[:], candidate)
		copy(sn.ext[:], cleanExt)

		if unique(sn.String()) {
			return sn, nil
		}
	}

	return shortName{}, checkpoint.From(ErrDuplicateName)
}

func cleanShortNameChars(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '.' {
			continue
		}
		if isValidShortNameByte(c) {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
