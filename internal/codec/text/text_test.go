package text

import (
	"testing"
	"time"
)

func TestPrimitivesRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteU8(200)
	w.WriteI8(-100)
	w.WriteU16(50000)
	w.WriteI16(-12345)
	w.WriteU32(4000000000)
	w.WriteI32(-2000000000)
	w.WriteU64(18000000000000000000)
	w.WriteI64(-9000000000000000000)
	w.WriteF32(3.5)
	w.WriteF64(2.718281828)
	w.WriteChar('§')
	w.WriteString("hello world")
	w.WriteDuration(250 * time.Millisecond)

	r := NewReader(w.String())
	if v, err := r.ReadBool(); err != nil || v != true {
		t.Fatalf("ReadBool #1: %v, %v", v, err)
	}
	if v, err := r.ReadBool(); err != nil || v != false {
		t.Fatalf("ReadBool #2: %v, %v", v, err)
	}
	if v, err := r.ReadU8(); err != nil || v != 200 {
		t.Fatalf("ReadU8: %v, %v", v, err)
	}
	if v, err := r.ReadI8(); err != nil || v != -100 {
		t.Fatalf("ReadI8: %v, %v", v, err)
	}
	if v, err := r.ReadU16(); err != nil || v != 50000 {
		t.Fatalf("ReadU16: %v, %v", v, err)
	}
	if v, err := r.ReadI16(); err != nil || v != -12345 {
		t.Fatalf("ReadI16: %v, %v", v, err)
	}
	if v, err := r.ReadU32(); err != nil || v != 4000000000 {
		t.Fatalf("ReadU32: %v, %v", v, err)
	}
	if v, err := r.ReadI32(); err != nil || v != -2000000000 {
		t.Fatalf("ReadI32: %v, %v", v, err)
	}
	if v, err := r.ReadU64(); err != nil || v != 18000000000000000000 {
		t.Fatalf("ReadU64: %v, %v", v, err)
	}
	if v, err := r.ReadI64(); err != nil || v != -9000000000000000000 {
		t.Fatalf("ReadI64: %v, %v", v, err)
	}
	if v, err := r.ReadF32(); err != nil || v != 3.5 {
		t.Fatalf("ReadF32: %v, %v", v, err)
	}
	if v, err := r.ReadF64(); err != nil || v != 2.718281828 {
		t.Fatalf("ReadF64: %v, %v", v, err)
	}
	if v, err := r.ReadChar(); err != nil || v != '§' {
		t.Fatalf("ReadChar: %v, %v", v, err)
	}
	if v, err := r.ReadString(); err != nil || v != "hello world" {
		t.Fatalf("ReadString: %q, %v", v, err)
	}
	if v, err := r.ReadDuration(); err != nil || v != 250*time.Millisecond {
		t.Fatalf("ReadDuration: %v, %v", v, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected no tokens left, got %d", r.Remaining())
	}
}

func TestWriteStringEmbeddedSpaces(t *testing.T) {
	w := NewWriter()
	w.WriteString("a b  c")
	w.WriteU8(9)
	r := NewReader(w.String())
	if v, err := r.ReadString(); err != nil || v != "a b  c" {
		t.Fatalf("ReadString: %q, %v", v, err)
	}
	if v, err := r.ReadU8(); err != nil || v != 9 {
		t.Fatalf("ReadU8 after string: %v, %v", v, err)
	}
}

func TestWriteStringNoSpaces(t *testing.T) {
	w := NewWriter()
	w.WriteString("solo")
	r := NewReader(w.String())
	if v, err := r.ReadString(); err != nil || v != "solo" {
		t.Fatalf("ReadString: %q, %v", v, err)
	}
}

func TestReadExhaustedTokensFails(t *testing.T) {
	r := NewReader("1")
	if _, err := r.ReadU8(); err != nil {
		t.Fatalf("first token: %v", err)
	}
	if _, err := r.ReadU8(); err == nil {
		t.Fatalf("expected missing-token error past end of input")
	}
}

func TestReadCharRejectsMultiRuneToken(t *testing.T) {
	r := NewReader("ab")
	if _, err := r.ReadChar(); err == nil {
		t.Fatalf("expected error decoding multi-rune token as char")
	}
}

func TestFixedArrayRoundTrip(t *testing.T) {
	w := NewWriter()
	WriteFixedArray(w, []uint8{1, 2, 3}, func(w *Writer, v uint8) { w.WriteU8(v) })
	r := NewReader(w.String())
	got, err := ReadFixedArray(r, 3, func(r *Reader) (uint8, error) { return r.ReadU8() })
	if err != nil {
		t.Fatalf("ReadFixedArray: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected array: %v", got)
	}
}

func TestFixedArrayWrongLengthFails(t *testing.T) {
	w := NewWriter()
	WriteFixedArray(w, []uint8{1, 2}, func(w *Writer, v uint8) { w.WriteU8(v) })
	r := NewReader(w.String())
	if _, err := ReadFixedArray(r, 3, func(r *Reader) (uint8, error) { return r.ReadU8() }); err == nil {
		t.Fatalf("expected array-length mismatch error")
	}
}

func TestOptionRoundTrip(t *testing.T) {
	w := NewWriter()
	var absent *float64
	present := 1.25
	WriteOption(w, absent, func(w *Writer, v float64) { w.WriteF64(v) })
	WriteOption(w, &present, func(w *Writer, v float64) { w.WriteF64(v) })

	r := NewReader(w.String())
	got, err := ReadOption(r, func(r *Reader) (float64, error) { return r.ReadF64() })
	if err != nil || got != nil {
		t.Fatalf("expected nil option, got %v, %v", got, err)
	}
	got, err = ReadOption(r, func(r *Reader) (float64, error) { return r.ReadF64() })
	if err != nil || got == nil || *got != 1.25 {
		t.Fatalf("expected option 1.25, got %v, %v", got, err)
	}
}
