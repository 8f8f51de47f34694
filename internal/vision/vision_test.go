package vision

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestNMSSuppressesOverlaps(t *testing.T) {
	detections := []Detection{
		{BBox: [4]float32{0, 0, 100, 100}, Confidence: 0.9},
		{BBox: [4]float32{5, 5, 105, 105}, Confidence: 0.8}, // heavy overlap with first
		{BBox: [4]float32{200, 200, 300, 300}, Confidence: 0.7},
	}

	kept := nms(detections, 0.4)
	if len(kept) != 2 {
		t.Fatalf("nms kept %d detections; want 2", len(kept))
	}
	if kept[0].Confidence != 0.9 {
		t.Errorf("nms should keep the highest-confidence box first, got %v", kept[0].Confidence)
	}
}

func TestNMSKeepsDisjointBoxes(t *testing.T) {
	detections := []Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.6},
		{BBox: [4]float32{50, 50, 60, 60}, Confidence: 0.5},
		{BBox: [4]float32{100, 100, 110, 110}, Confidence: 0.4},
	}
	if kept := nms(detections, 0.4); len(kept) != 3 {
		t.Errorf("nms dropped disjoint boxes: kept %d of 3", len(kept))
	}
}

func TestIoU(t *testing.T) {
	tests := []struct {
		name     string
		a, b     [4]float32
		expected float32
	}{
		{"identical", [4]float32{0, 0, 10, 10}, [4]float32{0, 0, 10, 10}, 1.0},
		{"disjoint", [4]float32{0, 0, 10, 10}, [4]float32{20, 20, 30, 30}, 0.0},
		{"half overlap", [4]float32{0, 0, 10, 10}, [4]float32{5, 0, 15, 10}, 1.0 / 3.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := iou(tc.a, tc.b)
			if math.Abs(float64(got-tc.expected)) > 1e-5 {
				t.Errorf("iou = %v; want %v", got, tc.expected)
			}
		})
	}
}

func TestCropFace(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))

	crop := cropFace(img, [4]float32{50, 50, 100, 100})
	if crop == nil {
		t.Fatal("cropFace returned nil for a valid box")
	}
	b := crop.Bounds()
	// 50x50 box plus 10% padding on each side.
	if b.Dx() != 60 || b.Dy() != 60 {
		t.Errorf("crop size = %dx%d; want 60x60", b.Dx(), b.Dy())
	}
}

func TestCropFaceDegenerateBox(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	if crop := cropFace(img, [4]float32{80, 80, 80, 80}); crop != nil {
		t.Error("cropFace should return nil for a zero-area box")
	}
	if crop := cropFace(img, [4]float32{90, 90, 300, 300}); crop == nil {
		t.Error("cropFace should clamp an out-of-bounds box, not reject it")
	}
}

func TestImageToFloat32CHWLayout(t *testing.T) {
	// 2x2 solid red image: R channel block first, then G, then B.
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	data := imageToFloat32CHW(img, 2, 2, [3]float32{0, 0, 0}, [3]float32{1, 1, 1})
	if len(data) != 12 {
		t.Fatalf("len = %d; want 12", len(data))
	}
	for i := 0; i < 4; i++ {
		if data[i] != 255 {
			t.Errorf("R plane[%d] = %v; want 255", i, data[i])
		}
	}
	for i := 4; i < 12; i++ {
		if data[i] != 0 {
			t.Errorf("G/B plane[%d] = %v; want 0", i, data[i])
		}
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("normalize([3 4]) = %v; want [0.6 0.8]", v)
	}

	zero := []float32{0, 0}
	normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Error("normalize must leave the zero vector unchanged")
	}
}
