package retrieval

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
)

const (
	// DefaultDecayHalfLife halves a candidate's recency weight every 180
	// days. Support tickets go stale; KB articles age slower but still age.
	DefaultDecayHalfLife = 180 * 24 * time.Hour

	// DefaultDecayFloor is the minimum decay multiplier. Very old but
	// highly relevant documents are dampened, never zeroed.
	DefaultDecayFloor = 0.1

	// DefaultErrorBoost is the multiplier applied when the candidate's
	// error code appears verbatim in the query. Exact technical
	// identifiers outrank semantic similarity.
	DefaultErrorBoost = 1.5
)

// Boost factor names recorded in the audit trail.
const (
	boostTimeDecay  = "time_decay"
	boostErrorMatch = "error_code_match"
)

// BoostingStage adjusts fused scores in a fixed order: time decay first,
// then exact error-code boosting expressed as a multiplier on the
// post-decay score. Every tunable is a constructor parameter.
type BoostingStage struct {
	halfLife   time.Duration
	floor      float64
	errorBoost float64
	now        func() time.Time
}

// BoostingOption configures a BoostingStage.
type BoostingOption func(*BoostingStage)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) BoostingOption {
	return func(b *BoostingStage) {
		b.now = now
	}
}

// NewBoostingStage creates a boosting stage. Non-positive parameters fall
// back to the package defaults.
func NewBoostingStage(halfLife time.Duration, floor, errorBoost float64, opts ...BoostingOption) *BoostingStage {
	b := &BoostingStage{
		halfLife:   halfLife,
		floor:      floor,
		errorBoost: errorBoost,
		now:        time.Now,
	}
	if b.halfLife <= 0 {
		b.halfLife = DefaultDecayHalfLife
	}
	if b.floor <= 0 || b.floor >= 1 {
		b.floor = DefaultDecayFloor
	}
	if b.errorBoost <= 0 {
		b.errorBoost = DefaultErrorBoost
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Apply boosts the fused candidates and returns them re-sorted by boosted
// score descending, document id ascending. A boost whose condition does
// not hold leaves the score unchanged and appends no audit entry.
func (b *BoostingStage) Apply(query string, fused []FusedCandidate) []BoostedCandidate {
	queryTokens := tokenSet(query)
	now := b.now()

	boosted := make([]BoostedCandidate, len(fused))
	for i, f := range fused {
		bc := BoostedCandidate{
			FusedCandidate: f,
			BoostedScore:   f.FusedScore,
		}

		if decay, ok := b.decayFactor(now, f.Metadata.CreatedAt); ok {
			bc.BoostedScore *= decay
			bc.BoostFactors = append(bc.BoostFactors, BoostFactor{
				Name:       boostTimeDecay,
				Multiplier: decay,
			})
		}

		if f.Metadata.ErrorCode != "" && queryTokens[strings.ToLower(f.Metadata.ErrorCode)] {
			bc.BoostedScore *= b.errorBoost
			bc.BoostFactors = append(bc.BoostFactors, BoostFactor{
				Name:       boostErrorMatch,
				Multiplier: b.errorBoost,
			})
		}

		boosted[i] = bc
	}

	sort.Slice(boosted, func(i, j int) bool {
		if boosted[i].BoostedScore != boosted[j].BoostedScore {
			return boosted[i].BoostedScore > boosted[j].BoostedScore
		}
		return boosted[i].DocumentID < boosted[j].DocumentID
	})

	return boosted
}

// decayFactor returns the recency multiplier for a document created at the
// given time, and whether decay applies at all. The multiplier is
//
//	floor + (1 - floor) * 2^(-age/halfLife)
//
// which is 1.0 at age zero and approaches floor asymptotically without
// ever reaching it. Unknown or future timestamps are left undecayed.
func (b *BoostingStage) decayFactor(now, createdAt time.Time) (float64, bool) {
	if createdAt.IsZero() {
		return 1.0, false
	}
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1.0, false
	}
	halfLives := float64(age) / float64(b.halfLife)
	return b.floor + (1.0-b.floor)*math.Exp2(-halfLives), true
}

// tokenSet splits text into lowercase tokens, keeping letters, digits and
// the -_. joiners so identifiers like AUTH-401 or ERR_CONN_RESET survive
// as single tokens.
func tokenSet(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' && r != '.'
	})

	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-_.")
		if f != "" {
			set[f] = true
		}
	}
	return set
}
