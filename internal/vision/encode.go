package vision

import (
	"fmt"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

// SignatureEncoder turns a face crop into a fixed-length signature vector
// using the ArcFace ONNX model. Signatures are L2-normalized, so Euclidean
// distance between them is a symmetric similarity metric.
type SignatureEncoder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	signatureDim int
}

// NewSignatureEncoder loads the ArcFace ONNX model.
func NewSignatureEncoder(modelPath string) (*SignatureEncoder, error) {
	// ArcFace w600k_r50 expects 112x112 input
	inputW, inputH := 112, 112
	signatureDim := 512

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(signatureDim))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create encoder session: %w", err)
	}

	return &SignatureEncoder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
		signatureDim: signatureDim,
	}, nil
}

// Encode runs signature extraction on a face crop.
// faceData should be CHW format [3, 112, 112], normalized.
// Returns an L2-normalized signature vector.
func (e *SignatureEncoder) Encode(faceData []float32) ([]float32, error) {
	inputSlice := e.inputTensor.GetData()
	copy(inputSlice, faceData)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run signature extraction: %w", err)
	}

	outputData := e.outputTensor.GetData()

	signature := make([]float32, e.signatureDim)
	copy(signature, outputData)

	normalize(signature)

	return signature, nil
}

// InputSize returns the expected face crop dimensions.
func (e *SignatureEncoder) InputSize() (int, int) {
	return e.inputW, e.inputH
}

func (e *SignatureEncoder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// normalize performs L2 normalization in-place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
