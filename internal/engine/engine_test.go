package engine

import (
	"math"
	"testing"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/openvitals/vitalscribe/internal/mel"
)

func TestValidateShapes(t *testing.T) {
	features := make([]float32, mel.ModelFrames*mel.NumMelBins)
	mask := make([]float32, mel.ModelFrames)

	if err := ValidateShapes(features, mask); err != nil {
		t.Errorf("ValidateShapes on contract-sized inputs: %v", err)
	}
	if err := ValidateShapes(features[:100], mask); err == nil {
		t.Error("expected error for short features")
	}
	if err := ValidateShapes(features, mask[:10]); err == nil {
		t.Error("expected error for short mask")
	}
	if err := ValidateShapes(nil, nil); err == nil {
		t.Error("expected error for nil inputs")
	}
}

func TestFloat16ToFloat32(t *testing.T) {
	tests := []struct {
		name string
		in   uint16
		want float32
	}{
		{"zero", 0x0000, 0},
		{"one", 0x3C00, 1},
		{"negative_two", 0xC000, -2},
		{"half", 0x3800, 0.5},
		{"smallest_subnormal", 0x0001, 5.960464477539063e-8},
		{"max_half", 0x7BFF, 65504},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := float16ToFloat32(tt.in)
			if math.Abs(float64(got-tt.want)) > 1e-12 {
				t.Errorf("float16ToFloat32(%#04x) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFloat16ToFloat32Special(t *testing.T) {
	if got := float16ToFloat32(0x7C00); !math.IsInf(float64(got), 1) {
		t.Errorf("0x7C00 = %v, want +Inf", got)
	}
	if got := float16ToFloat32(0xFC00); !math.IsInf(float64(got), -1) {
		t.Errorf("0xFC00 = %v, want -Inf", got)
	}
	if got := float16ToFloat32(0x7E00); !math.IsNaN(float64(got)) {
		t.Errorf("0x7E00 = %v, want NaN", got)
	}
	if got := float16ToFloat32(0x8000); got != 0 || !math.Signbit(float64(got)) {
		t.Errorf("0x8000 = %v, want -0", got)
	}
}

func TestWidenFloat16(t *testing.T) {
	// [1.0, -2.0] as little-endian half-precision
	data := []byte{0x00, 0x3C, 0x00, 0xC0}
	got := widenFloat16(data)

	if len(got) != 2 {
		t.Fatalf("got %d values, want 2", len(got))
	}
	if got[0] != 1 || got[1] != -2 {
		t.Errorf("widenFloat16 = %v, want [1 -2]", got)
	}
}

func TestWidenCustomLogits(t *testing.T) {
	// [1.0, -2.0] as little-endian half-precision
	data := []byte{0x00, 0x3C, 0x00, 0xC0}

	got, err := widenCustomLogits(ort.TensorElementDataTypeFloat16, data)
	if err != nil {
		t.Fatalf("widenCustomLogits(float16) error = %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != -2 {
		t.Errorf("widenCustomLogits = %v, want [1 -2]", got)
	}
}

func TestWidenCustomLogitsRejectsOtherTypes(t *testing.T) {
	// bfloat16 is the same width as float16; reinterpreting it would
	// produce quiet garbage, so only an explicit float16 payload passes.
	for _, dt := range []ort.TensorElementDataType{
		ort.TensorElementDataTypeBFloat16,
		ort.TensorElementDataTypeDouble,
		ort.TensorElementDataTypeUint8,
	} {
		if _, err := widenCustomLogits(dt, []byte{0x00, 0x3C}); err == nil {
			t.Errorf("widenCustomLogits(%d) should reject non-float16 payloads", int(dt))
		}
	}
}

func TestNewONNXEngineBadPath(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping onnxruntime init in short mode")
	}
	eng, err := NewONNXEngine("/nonexistent/model.onnx")
	if err == nil {
		eng.Close()
		t.Error("NewONNXEngine with bad path should return error")
	}
}
