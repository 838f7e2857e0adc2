package checkin

import (
	"context"
	"sync"

	"classtrack/internal/classroom"
	"classtrack/internal/geo"
	"classtrack/internal/geoloc"
)

// SlackMeters is added to the session radius to absorb device GPS error.
const SlackMeters = 30.0

// Outcome is the verifier's state for one (session, student) pair.
type Outcome string

const (
	OutcomePending       Outcome = "pending"
	OutcomeChecking      Outcome = "checking"
	OutcomeValid         Outcome = "valid"
	OutcomeOut           Outcome = "out"
	OutcomeLocationError Outcome = "location-error"
)

// Result is the outcome of one check, with the measured distance when a
// position was obtained.
type Result struct {
	Outcome  Outcome `json:"outcome"`
	Distance float64 `json:"distance_m"`
	Allowed  float64 `json:"allowed_m"`
}

// Verifier gates attendance submission on distance to a session geofence.
// Each check is single-shot: a failed check stays failed until the student
// explicitly re-triggers it.
type Verifier struct {
	mu       sync.Mutex
	outcomes map[outcomeKey]Outcome
}

type outcomeKey struct {
	sessionID string
	studentID string
}

// NewVerifier creates a verifier with every pair in the pending state.
func NewVerifier() *Verifier {
	return &Verifier{outcomes: make(map[outcomeKey]Outcome)}
}

// Check samples the student's position from p and compares the distance to
// the geofence center against radius + SlackMeters. The outcome is stored
// as the pair's last result.
func (v *Verifier) Check(ctx context.Context, sessionID, studentID string, gf classroom.Geofence, p geoloc.Provider) Result {
	key := outcomeKey{sessionID, studentID}
	v.set(key, OutcomeChecking)

	pos, err := p.Current(ctx)
	if err != nil {
		v.set(key, OutcomeLocationError)
		return Result{Outcome: OutcomeLocationError}
	}

	dist := geo.DistanceMeters(pos.Lat, pos.Lng, gf.Lat, gf.Lng)
	allowed := gf.Radius + SlackMeters
	out := OutcomeOut
	if dist <= allowed {
		out = OutcomeValid
	}
	v.set(key, out)
	return Result{Outcome: out, Distance: dist, Allowed: allowed}
}

// Outcome returns the pair's last outcome, OutcomePending if never checked.
func (v *Verifier) Outcome(sessionID, studentID string) Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()
	if out, ok := v.outcomes[outcomeKey{sessionID, studentID}]; ok {
		return out
	}
	return OutcomePending
}

// Reset clears the stored outcome for a pair back to pending.
func (v *Verifier) Reset(sessionID, studentID string) {
	v.mu.Lock()
	delete(v.outcomes, outcomeKey{sessionID, studentID})
	v.mu.Unlock()
}

func (v *Verifier) set(key outcomeKey, out Outcome) {
	v.mu.Lock()
	v.outcomes[key] = out
	v.mu.Unlock()
}
