package bridge

import "testing"

func TestToPhysicalBoundary(t *testing.T) {
	a := NewAddrXlate()
	a.SetRegister(RegCS, 0x0000)
	a.SetRegister(RegEIP, 0x7C00)

	cases := []struct {
		name string
		addr uint32
		want uint32
	}{
		{"at eip", 0x7C00, 0x7C00},
		{"far: distance >= 512", 0x7E01, 0x7E01},
		{"near: distance < 512", 0x7DFF, 0x7DFF},
	}
	for _, c := range cases {
		if got := a.ToPhysical(c.addr); got != c.want {
			t.Errorf("%s: ToPhysical(0x%x) = 0x%x, want 0x%x", c.name, c.addr, got, c.want)
		}
	}
}

func TestESPAdjustmentOnStopFrame(t *testing.T) {
	a := NewAddrXlate()
	f := &StopFrame{ESP: 0x1000}
	a.UpdateFromStopFrame(f)
	if got, want := a.Register(RegESP), uint32(0x1000+16); got != want {
		t.Errorf("cached ESP = 0x%x, want 0x%x", got, want)
	}
	if !a.Valid() {
		t.Errorf("cache should be valid after a stop frame")
	}
}

func TestInvalidate(t *testing.T) {
	a := NewAddrXlate()
	a.UpdateFromStopFrame(&StopFrame{})
	a.Invalidate()
	if a.Valid() {
		t.Errorf("Invalidate should clear the valid bit")
	}
}

func TestRegisterIs16Bit(t *testing.T) {
	for _, idx := range []int{RegCS, RegSS, RegDS, RegES, RegFS, RegGS} {
		if !registerIs16Bit(idx) {
			t.Errorf("register %d should be 16-bit", idx)
		}
	}
	for _, idx := range []int{RegEAX, RegESP, RegEIP, RegEFLAGS} {
		if registerIs16Bit(idx) {
			t.Errorf("register %d should not be 16-bit", idx)
		}
	}
}
