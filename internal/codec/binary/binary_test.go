package binary

import (
	"net"
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
	if err := w.WriteString("hello world"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	w.WriteDuration(250 * time.Millisecond)

	r := NewReaderBytes(w.Bytes())
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
}

func TestReadCharRejectsSurrogates(t *testing.T) {
	w := NewWriter()
	w.WriteU32(0xD800)
	if _, err := NewReaderBytes(w.Bytes()).ReadChar(); err == nil {
		t.Fatalf("expected error decoding surrogate half as char")
	}
}

func TestSocketAddrRoundTrip(t *testing.T) {
	w := NewWriter()
	if err := w.WriteSocketAddr(net.ParseIP("192.168.1.7"), 8765); err != nil {
		t.Fatalf("WriteSocketAddr: %v", err)
	}
	if err := w.WriteSocketAddr(net.ParseIP("::1"), 443); err != nil {
		t.Fatalf("WriteSocketAddr v6: %v", err)
	}

	r := NewReaderBytes(w.Bytes())
	ip, port, err := r.ReadSocketAddr()
	if err != nil {
		t.Fatalf("ReadSocketAddr: %v", err)
	}
	if !ip.Equal(net.ParseIP("192.168.1.7")) || port != 8765 {
		t.Fatalf("unexpected v4 socket addr: %v:%d", ip, port)
	}
	ip, port, err = r.ReadSocketAddr()
	if err != nil {
		t.Fatalf("ReadSocketAddr v6: %v", err)
	}
	if !ip.Equal(net.ParseIP("::1")) || port != 443 {
		t.Fatalf("unexpected v6 socket addr: %v:%d", ip, port)
	}
}

func TestOptionRoundTrip(t *testing.T) {
	w := NewWriter()
	var absent *float64
	present := 1.25
	if err := WriteOption(w, absent, func(w *Writer, v float64) error { w.WriteF64(v); return nil }); err != nil {
		t.Fatalf("WriteOption absent: %v", err)
	}
	if err := WriteOption(w, &present, func(w *Writer, v float64) error { w.WriteF64(v); return nil }); err != nil {
		t.Fatalf("WriteOption present: %v", err)
	}

	r := NewReaderBytes(w.Bytes())
	got, err := ReadOption(r, func(r *Reader) (float64, error) { return r.ReadF64() })
	if err != nil || got != nil {
		t.Fatalf("expected nil option, got %v, %v", got, err)
	}
	got, err = ReadOption(r, func(r *Reader) (float64, error) { return r.ReadF64() })
	if err != nil || got == nil || *got != 1.25 {
		t.Fatalf("expected option 1.25, got %v, %v", got, err)
	}
}
