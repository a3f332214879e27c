package i8259

import "testing"

func programPair(t *testing.T, d *DualPIC) {
	t.Helper()
	writes := []struct {
		port uint16
		data byte
	}{
		{PrimaryCommandPort, 0x11},
		{PrimaryDataPort, 0x20},
		{PrimaryDataPort, 0x04},
		{PrimaryDataPort, 0x05},
		{SecondaryCommandPort, 0x11},
		{SecondaryDataPort, 0x28},
		{SecondaryDataPort, 0x02},
		{SecondaryDataPort, 0x01},
	}
	for _, w := range writes {
		if err := d.WriteIOPort(w.port, []byte{w.data}); err != nil {
			t.Fatalf("write to 0x%x failed: %v", w.port, err)
		}
	}
}

func unmaskAll(t *testing.T, d *DualPIC) {
	t.Helper()
	for _, port := range []uint16{PrimaryDataPort, SecondaryDataPort} {
		if err := d.WriteIOPort(port, []byte{0x00}); err != nil {
			t.Fatalf("unmask write to 0x%x failed: %v", port, err)
		}
	}
}

func TestInitSequence(t *testing.T) {
	d := New()
	programPair(t, d)

	if d.units[0].stage != stageReady {
		t.Fatalf("primary not programmed, stage=%v", d.units[0].stage)
	}
	if d.units[1].stage != stageReady {
		t.Fatalf("secondary not programmed, stage=%v", d.units[1].stage)
	}
	if base := d.units[0].vectorBase; base != 0x20 {
		t.Fatalf("primary vector base 0x%02x, want 0x20", base)
	}
	if base := d.units[1].vectorBase; base != 0x28 {
		t.Fatalf("secondary vector base 0x%02x, want 0x28", base)
	}
}

func TestMaskRegisterReadback(t *testing.T) {
	d := New()
	programPair(t, d)

	if err := d.WriteIOPort(PrimaryDataPort, []byte{0xfb}); err != nil {
		t.Fatalf("mask write failed: %v", err)
	}
	var data [1]byte
	if err := d.ReadIOPort(PrimaryDataPort, data[:]); err != nil {
		t.Fatalf("mask read failed: %v", err)
	}
	if data[0] != 0xfb {
		t.Fatalf("mask read back 0x%02x, want 0xfb", data[0])
	}
}

func TestAcknowledgePrimaryLine(t *testing.T) {
	var level bool
	d := New()
	d.SetIntOutput(func(high bool) { level = high })
	programPair(t, d)
	unmaskAll(t, d)

	d.SetIRQ(1, true)
	if !level {
		t.Fatalf("INT output not asserted for primary line")
	}

	vec, ok := d.Acknowledge()
	if !ok {
		t.Fatalf("expected a pending request")
	}
	if vec != 0x21 {
		t.Fatalf("unexpected vector 0x%02x", vec)
	}
	d.SetIRQ(1, false)

	// Non-specific EOI retires the in-service line.
	if err := d.WriteIOPort(PrimaryCommandPort, []byte{0x20}); err != nil {
		t.Fatalf("EOI write failed: %v", err)
	}
	if d.units[0].isr != 0 {
		t.Fatalf("primary ISR 0x%02x after EOI, want 0", d.units[0].isr)
	}
}

func TestAcknowledgeSecondaryLine(t *testing.T) {
	d := New()
	programPair(t, d)
	unmaskAll(t, d)

	d.SetIRQ(10, true)
	vec, ok := d.Acknowledge()
	if !ok {
		t.Fatalf("expected a pending request")
	}
	if vec != 0x2a {
		t.Fatalf("unexpected vector 0x%02x, want 0x2a", vec)
	}
	if d.units[0].isr != 1<<cascadeLine {
		t.Fatalf("cascade line not in service on primary: isr=0x%02x", d.units[0].isr)
	}
}

func TestSpuriousAcknowledge(t *testing.T) {
	d := New()
	programPair(t, d)
	unmaskAll(t, d)

	vec, ok := d.Acknowledge()
	if ok {
		t.Fatalf("acknowledge with no request reported a real interrupt")
	}
	if vec != 0x20|spuriousLine {
		t.Fatalf("spurious vector 0x%02x, want 0x27", vec)
	}
}

func TestMaskedLineDoesNotAssert(t *testing.T) {
	var level bool
	d := New()
	d.SetIntOutput(func(high bool) { level = high })
	programPair(t, d)
	// All lines left masked from init.
	if err := d.WriteIOPort(PrimaryDataPort, []byte{0xff}); err != nil {
		t.Fatalf("mask write failed: %v", err)
	}

	d.SetIRQ(3, true)
	if level {
		t.Fatalf("INT output asserted for a masked line")
	}

	// Unmasking line 3 releases the latched request.
	if err := d.WriteIOPort(PrimaryDataPort, []byte{0xf7}); err != nil {
		t.Fatalf("unmask write failed: %v", err)
	}
	if !level {
		t.Fatalf("INT output not asserted after unmask")
	}
}

func TestEdgeLatching(t *testing.T) {
	d := New()
	programPair(t, d)
	unmaskAll(t, d)

	// A pulse latches a request even after the line drops.
	d.SetIRQ(4, true)
	d.SetIRQ(4, false)
	vec, ok := d.Acknowledge()
	if !ok || vec != 0x24 {
		t.Fatalf("pulse not latched: vec=0x%02x ok=%v", vec, ok)
	}

	// The latch is consumed by the acknowledge; without a new rising
	// edge no further request appears.
	if err := d.WriteIOPort(PrimaryCommandPort, []byte{0x20}); err != nil {
		t.Fatalf("EOI write failed: %v", err)
	}
	if _, ok := d.Acknowledge(); ok {
		t.Fatalf("request latched without a rising edge")
	}
}
