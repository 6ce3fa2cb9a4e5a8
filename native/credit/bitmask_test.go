package credit

import "testing"

func TestTokenMaskEnableIdempotent(t *testing.T) {
	var m TokenMask
	m = m.Enable(5)
	if !m.Enable(5).Eq(m) {
		t.Fatalf("enabling a set bit must be a no-op")
	}
	if !m.Contains(5) || m.Contains(4) {
		t.Fatalf("membership after enable is wrong")
	}
	if m.Disable(5).Contains(5) {
		t.Fatalf("disable must clear the bit")
	}
}

func TestTokenMaskHighBits(t *testing.T) {
	m := MaskOfBit(255)
	if !m.Contains(255) {
		t.Fatalf("bit 255 must be addressable")
	}
	if got, err := m.Index(); err != nil || got != 255 {
		t.Fatalf("index = %d, %v; want 255, nil", got, err)
	}
	if MaskOfBit(256).IsZero() == false {
		t.Fatalf("out-of-range bits must produce the zero mask")
	}
}

func TestTokenMaskIndexRejectsNonSingletons(t *testing.T) {
	var m TokenMask
	if _, err := m.Index(); err != ErrIncorrectBitMask {
		t.Fatalf("empty mask: got %v, want ErrIncorrectBitMask", err)
	}
	m = m.Enable(3).Enable(7)
	if _, err := m.Index(); err != ErrIncorrectBitMask {
		t.Fatalf("two bits: got %v, want ErrIncorrectBitMask", err)
	}
}

func TestTokenMaskForEachAscendingWithEarlyStop(t *testing.T) {
	var m TokenMask
	for _, bit := range []uint{200, 3, 64, 0} {
		m = m.Enable(bit)
	}

	var seen []uint
	m.ForEach(func(bit uint) bool {
		seen = append(seen, bit)
		return true
	})
	want := []uint{0, 3, 64, 200}
	if len(seen) != len(want) {
		t.Fatalf("visited %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("visited %v, want ascending %v", seen, want)
		}
	}

	count := 0
	m.ForEach(func(bit uint) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Fatalf("early stop visited %d bits, want 2", count)
	}
}

func TestTokenMaskSetAlgebra(t *testing.T) {
	a := MaskOfBit(1).Union(MaskOfBit(2)).Union(MaskOfBit(3))
	b := MaskOfBit(2).Union(MaskOfBit(4))

	if !a.Intersect(b).Eq(MaskOfBit(2)) {
		t.Fatalf("intersect is wrong")
	}
	if !a.Intersects(b) {
		t.Fatalf("intersects must see the shared bit")
	}
	if !a.Without(b).Eq(MaskOfBit(1).Union(MaskOfBit(3))) {
		t.Fatalf("without is wrong")
	}
	if a.Without(a).IsZero() == false {
		t.Fatalf("self-difference must be empty")
	}
}

func TestTokenMaskTextRoundTrip(t *testing.T) {
	m := MaskOfBit(0).Union(MaskOfBit(130))
	text, err := m.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded TokenMask
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Eq(m) {
		t.Fatalf("round trip lost bits")
	}
}
