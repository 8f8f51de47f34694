package match

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/your-org/moments/internal/config"
	"github.com/your-org/moments/internal/models"
	"github.com/your-org/moments/internal/vision"
)

// fakeSource serves a fixed enrollment set and counts loads.
type fakeSource struct {
	sigs  map[uuid.UUID][]models.PersonSignature
	loads int
	err   error
}

func (f *fakeSource) ListSignatures(_ context.Context, tenantID uuid.UUID) ([]models.PersonSignature, error) {
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return f.sigs[tenantID], nil
}

// sig builds a unit-length vector pointing mostly along one axis, nudged by
// delta. Distances between these are easy to reason about.
func sig(axis int, delta float32) []float32 {
	v := make([]float32, 8)
	v[axis] = 1
	v[(axis+1)%8] = delta
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

func newTestMatcher(source SignatureSource) *Matcher {
	return NewMatcher(NewCache(source), config.MatchConfig{
		Tolerance:        0.6,
		AmbiguityEpsilon: 0.05,
	})
}

func TestMatchSingleEnrolledPerson(t *testing.T) {
	tenant := uuid.New()
	emma := uuid.New()
	source := &fakeSource{sigs: map[uuid.UUID][]models.PersonSignature{
		tenant: {{PersonID: emma, Name: "Emma", Signature: sig(0, 0)}},
	}}
	m := newTestMatcher(source)

	matches, err := m.MatchFaces(context.Background(), tenant, []vision.FaceObservation{
		{BBox: [4]float32{1, 2, 3, 4}, Confidence: 0.97, Signature: sig(0, 0.1)},
	})
	if err != nil {
		t.Fatalf("MatchFaces: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches; want 1", len(matches))
	}
	if matches[0].PersonID == nil || *matches[0].PersonID != emma {
		t.Fatalf("matched person = %v; want %s", matches[0].PersonID, emma)
	}
	if matches[0].Distance > 0.6 {
		t.Errorf("distance %v exceeds tolerance", matches[0].Distance)
	}
}

func TestMatchBeyondToleranceIsUnmatched(t *testing.T) {
	tenant := uuid.New()
	source := &fakeSource{sigs: map[uuid.UUID][]models.PersonSignature{
		tenant: {{PersonID: uuid.New(), Signature: sig(0, 0)}},
	}}
	m := newTestMatcher(source)

	// Orthogonal unit vectors are sqrt(2) apart, far beyond 0.6.
	matches, err := m.MatchFaces(context.Background(), tenant, []vision.FaceObservation{
		{Signature: sig(4, 0)},
	})
	if err != nil {
		t.Fatalf("MatchFaces: %v", err)
	}
	if matches[0].PersonID != nil {
		t.Error("face beyond tolerance must not be forced onto the nearest person")
	}
	if matches[0].Ambiguous {
		t.Error("a plain non-match must not be flagged ambiguous")
	}
}

func TestMatchAmbiguousTieIsRejected(t *testing.T) {
	tenant := uuid.New()
	a, b := uuid.New(), uuid.New()
	probe := sig(0, 0)
	source := &fakeSource{sigs: map[uuid.UUID][]models.PersonSignature{
		tenant: {
			// Two distinct persons at indistinguishable distances.
			{PersonID: a, Signature: sig(0, 0.02)},
			{PersonID: b, Signature: sig(0, -0.02)},
		},
	}}
	m := newTestMatcher(source)

	matches, err := m.MatchFaces(context.Background(), tenant, []vision.FaceObservation{{Signature: probe}})
	if err != nil {
		t.Fatalf("MatchFaces: %v", err)
	}
	if matches[0].PersonID != nil {
		t.Error("indistinguishable candidates must be rejected, not arbitrarily picked")
	}
	if !matches[0].Ambiguous {
		t.Error("tie rejection should be reported as ambiguous")
	}
}

func TestMatchMultipleSignaturesSamePersonNotAmbiguous(t *testing.T) {
	tenant := uuid.New()
	emma := uuid.New()
	source := &fakeSource{sigs: map[uuid.UUID][]models.PersonSignature{
		tenant: {
			// Same person enrolled twice: close scores must not read as a tie.
			{PersonID: emma, Signature: sig(0, 0.02)},
			{PersonID: emma, Signature: sig(0, -0.02)},
		},
	}}
	m := newTestMatcher(source)

	matches, err := m.MatchFaces(context.Background(), tenant, []vision.FaceObservation{{Signature: sig(0, 0)}})
	if err != nil {
		t.Fatalf("MatchFaces: %v", err)
	}
	if matches[0].PersonID == nil || *matches[0].PersonID != emma {
		t.Error("two signatures of one person must still match that person")
	}
}

func TestMatchEmptyEnrollment(t *testing.T) {
	tenant := uuid.New()
	m := newTestMatcher(&fakeSource{sigs: map[uuid.UUID][]models.PersonSignature{}})

	matches, err := m.MatchFaces(context.Background(), tenant, []vision.FaceObservation{{Signature: sig(0, 0)}})
	if err != nil {
		t.Fatalf("MatchFaces: %v", err)
	}
	if matches[0].PersonID != nil {
		t.Error("no enrollment means no match")
	}
}

func TestMatchNoObservations(t *testing.T) {
	source := &fakeSource{}
	m := newTestMatcher(source)

	matches, err := m.MatchFaces(context.Background(), uuid.New(), nil)
	if err != nil {
		t.Fatalf("MatchFaces: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches for zero observations", len(matches))
	}
	if source.loads != 0 {
		t.Error("zero observations should not touch the enrollment store")
	}
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 0},
		{"unit apart", []float32{0, 0}, []float32{1, 0}, 1},
		{"pythagorean", []float32{0, 0}, []float32{3, 4}, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := float64(EuclideanDistance(tc.a, tc.b))
			if math.Abs(got-tc.expected) > 1e-6 {
				t.Errorf("distance = %v; want %v", got, tc.expected)
			}
		})
	}
}

func TestEuclideanDistanceInvalidInput(t *testing.T) {
	if d := EuclideanDistance([]float32{1, 2}, []float32{1}); d != math.MaxFloat32 {
		t.Error("mismatched lengths must report maximum distance")
	}
	if d := EuclideanDistance(nil, nil); d != math.MaxFloat32 {
		t.Error("empty vectors must report maximum distance")
	}
}
