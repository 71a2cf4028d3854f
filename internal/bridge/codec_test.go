package bridge

import "testing"

func TestHexRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0xff},
		{0x00, 0x7c, 0xa9, 0xff},
		{0x90, 0x90, 0x90, 0x90},
	}
	for _, b := range cases {
		enc := encodeHex(b)
		for _, c := range enc {
			if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
				t.Errorf("encodeHex(%v) = %q: not lowercase hex", b, enc)
			}
		}
		dec, err := decodeHex(enc, len(b))
		if err != nil {
			t.Fatalf("decodeHex(%q) error: %v", enc, err)
		}
		if !bytesEqual(dec, b) {
			t.Errorf("round trip %v -> %q -> %v", b, enc, dec)
		}
	}
}

func TestDecodeHexRejectsShortInput(t *testing.T) {
	if _, err := decodeHex("ab", 2); err == nil {
		t.Errorf("expected error for short input")
	}
}

func TestDecodeHexRejectsInvalidDigit(t *testing.T) {
	if _, err := decodeHex("zz", 1); err == nil {
		t.Errorf("expected error for invalid hex digit")
	}
}

func TestReadInt(t *testing.T) {
	cases := []struct {
		buf   string
		base  int
		value int
		rest  string
	}{
		{"1234,rest", 10, 1234, ",rest"},
		{"7c00,4", 16, 0x7c00, ",4"},
		{"", 10, 0, ""},
		{"xyz", 16, 0, "xyz"},
		{"0010000", 16, 0x10000, ""},
	}
	for _, c := range cases {
		v, rest := readInt(c.buf, c.base)
		if v != c.value || rest != c.rest {
			t.Errorf("readInt(%q, %d) = (%d, %q), want (%d, %q)", c.buf, c.base, v, rest, c.value, c.rest)
		}
	}
}

func TestExpectChar(t *testing.T) {
	rest, err := expectChar('$', "$abc")
	if err != nil || rest != "abc" {
		t.Errorf("expectChar('$', \"$abc\") = (%q, %v)", rest, err)
	}
	if _, err := expectChar('$', "xabc"); err == nil {
		t.Errorf("expected error on mismatch")
	}
	if _, err := expectChar('$', ""); err == nil {
		t.Errorf("expected error on empty buffer")
	}
}

func TestExpectCharRange(t *testing.T) {
	c, rest, err := expectCharRange('0', '9', "7rest")
	if err != nil || c != '7' || rest != "rest" {
		t.Errorf("expectCharRange = (%q, %q, %v)", c, rest, err)
	}
	if _, _, err := expectCharRange('0', '9', "zrest"); err == nil {
		t.Errorf("expected error out of range")
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
