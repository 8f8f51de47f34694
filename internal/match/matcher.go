package match

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/your-org/moments/internal/config"
	"github.com/your-org/moments/internal/models"
	"github.com/your-org/moments/internal/observability"
	"github.com/your-org/moments/internal/vision"
)

// FaceMatch is the matching outcome for one detected face.
type FaceMatch struct {
	BBox       [4]float32
	Confidence float32
	// PersonID is nil when the face is unmatched. Ambiguous tells an
	// unmatched-because-ambiguous face apart from a simple non-match.
	PersonID  *uuid.UUID
	Distance  float32
	Ambiguous bool
}

// Matcher compares face observations against a tenant's enrolled signatures.
// A candidate is accepted only within Tolerance; when the two best candidates
// belong to distinct persons and score within AmbiguityEpsilon of each other,
// the face is rejected as ambiguous. Misattribution is the worst failure
// mode, so false negatives win.
type Matcher struct {
	cache     *Cache
	tolerance float32
	epsilon   float32
}

func NewMatcher(cache *Cache, cfg config.MatchConfig) *Matcher {
	return &Matcher{
		cache:     cache,
		tolerance: float32(cfg.Tolerance),
		epsilon:   float32(cfg.AmbiguityEpsilon),
	}
}

// MatchFaces resolves every observation against the tenant's enrollment set.
// An empty observation list yields an empty result; an empty enrollment set
// yields all-unmatched.
func (m *Matcher) MatchFaces(ctx context.Context, tenantID uuid.UUID, observations []vision.FaceObservation) ([]FaceMatch, error) {
	if len(observations) == 0 {
		return nil, nil
	}

	enrolled, err := m.cache.Signatures(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("match faces: %w", err)
	}

	matches := make([]FaceMatch, 0, len(observations))
	for _, obs := range observations {
		fm := FaceMatch{BBox: obs.BBox, Confidence: obs.Confidence}
		m.resolve(&fm, obs.Signature, enrolled)
		if fm.PersonID != nil {
			observability.FacesMatched.Inc()
		}
		if fm.Ambiguous {
			observability.AmbiguousMatches.Inc()
		}
		matches = append(matches, fm)
	}
	return matches, nil
}

// resolve picks the best per-person distance and applies tolerance and the
// ambiguity epsilon.
func (m *Matcher) resolve(fm *FaceMatch, signature []float32, enrolled []models.PersonSignature) {
	best := struct {
		person   uuid.UUID
		distance float32
		found    bool
	}{distance: math.MaxFloat32}
	runnerUp := best

	// A person may have several reference signatures; only their closest
	// one counts, so the runner-up is always a different person.
	perPerson := make(map[uuid.UUID]float32)
	for _, ref := range enrolled {
		d := EuclideanDistance(signature, ref.Signature)
		if prev, ok := perPerson[ref.PersonID]; !ok || d < prev {
			perPerson[ref.PersonID] = d
		}
	}

	for person, d := range perPerson {
		switch {
		case !best.found || d < best.distance:
			if best.found {
				runnerUp = best
			}
			best.person, best.distance, best.found = person, d, true
		case !runnerUp.found || d < runnerUp.distance:
			runnerUp.person, runnerUp.distance, runnerUp.found = person, d, true
		}
	}

	if !best.found || best.distance > m.tolerance {
		return
	}
	if runnerUp.found && runnerUp.distance-best.distance < m.epsilon {
		fm.Ambiguous = true
		fm.Distance = best.distance
		return
	}

	person := best.person
	fm.PersonID = &person
	fm.Distance = best.distance
}

// EuclideanDistance is the symmetric distance metric used for signatures.
// Mismatched or empty vectors report the maximum distance.
func EuclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return math.MaxFloat32
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
