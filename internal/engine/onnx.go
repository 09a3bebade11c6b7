package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/openvitals/vitalscribe/internal/mel"
)

// Input/output tensor names fixed by the exported model.
const (
	inputFeaturesName = "input_features"
	attentionMaskName = "attention_mask"
	logitsName        = "logits"
)

// sharedLibraryEnv optionally points at the onnxruntime shared library when
// it is not on the default loader path.
const sharedLibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY"

// ONNXEngine is the production Engine backed by ONNX Runtime.
type ONNXEngine struct {
	session *ort.DynamicAdvancedSession
}

// NewONNXEngine loads the model at modelPath. Environment initialization
// happens once per process; a load failure is fatal to session start.
func NewONNXEngine(modelPath string) (*ONNXEngine, error) {
	if !ort.IsInitialized() {
		if lib := os.Getenv(sharedLibraryEnv); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("engine: initializing onnxruntime: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inputFeaturesName, attentionMaskName},
		[]string{logitsName},
		nil)
	if err != nil {
		return nil, fmt.Errorf("engine: loading model %q: %w", modelPath, err)
	}

	return &ONNXEngine{session: session}, nil
}

// Close releases the session.
func (e *ONNXEngine) Close() error {
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return fmt.Errorf("engine: destroying session: %w", err)
		}
		e.session = nil
	}
	return nil
}

// Infer runs the model on one feature window and returns widened float32
// logits. The input shape is validated before the session is invoked.
func (e *ONNXEngine) Infer(ctx context.Context, features, mask []float32) (Logits, error) {
	if err := ValidateShapes(features, mask); err != nil {
		return Logits{}, err
	}
	if err := ctx.Err(); err != nil {
		return Logits{}, err
	}

	featTensor, err := ort.NewTensor(ort.NewShape(1, mel.ModelFrames, mel.NumMelBins), features)
	if err != nil {
		return Logits{}, fmt.Errorf("engine: creating features tensor: %w", err)
	}
	defer featTensor.Destroy()

	maskTensor, err := ort.NewTensor(ort.NewShape(1, mel.ModelFrames), mask)
	if err != nil {
		return Logits{}, fmt.Errorf("engine: creating mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{featTensor, maskTensor}, outputs); err != nil {
		return Logits{}, fmt.Errorf("engine: inference: %w", err)
	}
	out := outputs[0]
	if out == nil {
		return Logits{}, fmt.Errorf("engine: no %q output tensor in result", logitsName)
	}
	defer out.Destroy()

	shape := out.GetShape()
	if len(shape) != 3 || shape[0] != 1 {
		return Logits{}, fmt.Errorf("engine: logits shape %v, expected [1, T, V]", shape)
	}
	timeSteps := int(shape[1])
	vocabSize := int(shape[2])

	// Element type is resolved once, here. Anything but float32 or float16
	// is a contract violation.
	var data []float32
	switch t := out.(type) {
	case *ort.Tensor[float32]:
		data = make([]float32, len(t.GetData()))
		copy(data, t.GetData())
	case *ort.CustomDataTensor:
		data, err = widenCustomLogits(ort.TensorElementDataType(t.DataType()), t.GetData())
		if err != nil {
			return Logits{}, err
		}
	default:
		return Logits{}, fmt.Errorf("engine: unsupported logits element type %T", out)
	}

	if len(data) != timeSteps*vocabSize {
		return Logits{}, fmt.Errorf("engine: logits length %d does not match shape %dx%d",
			len(data), timeSteps, vocabSize)
	}

	slog.Debug("inference complete", "timeSteps", timeSteps, "vocabSize", vocabSize)
	return Logits{Data: data, TimeSteps: timeSteps, VocabSize: vocabSize}, nil
}

// widenCustomLogits converts a custom-typed logits payload to float32.
// Half precision is the only custom element type the model contract allows;
// anything else (bfloat16 included) would reinterpret the bytes silently,
// so it is rejected here.
func widenCustomLogits(dataType ort.TensorElementDataType, raw []byte) ([]float32, error) {
	if dataType != ort.TensorElementDataTypeFloat16 {
		return nil, fmt.Errorf("engine: unsupported logits element type %d, expected float16", int(dataType))
	}
	return widenFloat16(raw), nil
}
