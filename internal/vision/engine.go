// Package vision detects faces in still images and computes a fixed-length
// signature per face using ONNX Runtime models (RetinaFace detection,
// ArcFace signatures).
package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"path/filepath"
	"time"

	_ "image/gif"
	_ "image/png"

	"github.com/your-org/moments/internal/config"
	"github.com/your-org/moments/internal/observability"
)

// FaceObservation is one detected face with its computed signature.
type FaceObservation struct {
	BBox       [4]float32 // x1, y1, x2, y2 in original image pixels
	Confidence float32
	Signature  []float32
}

// DetectionError reports a detection or encoding failure (malformed image,
// inference error). Callers degrade to "no faces detected" on it.
type DetectionError struct {
	Stage string
	Err   error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("face detection failed at %s: %v", e.Stage, e.Err)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

// Engine runs the detect → encode pipeline on one image at a time.
type Engine struct {
	detector *Detector
	encoder  *SignatureEncoder
	timeout  time.Duration
}

// NewEngine loads the ONNX models from cfg.ModelsDir.
func NewEngine(cfg config.VisionConfig) (*Engine, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	encPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading signature model", "path", encPath)
	enc, err := NewSignatureEncoder(encPath)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load signature encoder: %w", err)
	}

	return &Engine{detector: det, encoder: enc, timeout: cfg.DetectTimeout}, nil
}

// DetectFaces returns one observation per detected face. Zero faces is an
// empty slice, not an error; undecodable input or inference failure returns
// a *DetectionError.
func (e *Engine) DetectFaces(ctx context.Context, imageData []byte) ([]FaceObservation, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	img, err := decodeImage(imageData)
	if err != nil {
		return nil, &DetectionError{Stage: "decode", Err: err}
	}

	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	start := time.Now()
	detInput := preprocessForDetection(img, e.detector.inputW, e.detector.inputH)
	detections, err := e.detector.Detect(detInput, origW, origH)
	observability.IntakeStageDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &DetectionError{Stage: "detect", Err: err}
	}
	if len(detections) == 0 {
		return nil, nil
	}
	observability.FacesDetected.Add(float64(len(detections)))

	observations := make([]FaceObservation, 0, len(detections))
	for _, det := range detections {
		if err := ctx.Err(); err != nil {
			return nil, &DetectionError{Stage: "encode", Err: err}
		}

		crop := cropFace(img, det.BBox)
		if crop == nil {
			continue
		}

		start = time.Now()
		encInput := preprocessForSignature(crop, e.encoder.inputW, e.encoder.inputH)
		signature, err := e.encoder.Encode(encInput)
		observability.IntakeStageDuration.WithLabelValues("encode").Observe(time.Since(start).Seconds())
		if err != nil {
			slog.Warn("signature encode failed, skipping face", "error", err)
			continue
		}

		observations = append(observations, FaceObservation{
			BBox:       det.BBox,
			Confidence: det.Confidence,
			Signature:  signature,
		})
	}

	return observations, nil
}

// EncodeReference extracts the signature of the most confident face in a
// reference image. Used by the enrollment workflow; exactly one clear face
// is expected.
func (e *Engine) EncodeReference(ctx context.Context, imageData []byte) ([]float32, float32, error) {
	observations, err := e.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, 0, err
	}
	if len(observations) == 0 {
		return nil, 0, fmt.Errorf("no face detected in reference image")
	}

	best := observations[0]
	for _, obs := range observations[1:] {
		if obs.Confidence > best.Confidence {
			best = obs
		}
	}
	return best.Signature, best.Confidence, nil
}

// SignatureDim returns the dimensionality of produced signatures.
func (e *Engine) SignatureDim() int {
	return e.encoder.signatureDim
}

// Close releases the ONNX sessions.
func (e *Engine) Close() {
	if e.detector != nil {
		e.detector.Close()
	}
	if e.encoder != nil {
		e.encoder.Close()
	}
}

func decodeImage(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	img, _, err = image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
