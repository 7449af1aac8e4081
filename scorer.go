package adaptcache

import (
	"sort"
	"time"
)

// ScoreWeights weigh the four eviction signals. Each signal is normalized to
// [0,1] against the current population before weighting.
type ScoreWeights struct {
	Age       float64 // time since creation
	Idle      float64 // time since last access
	Frequency float64 // inverted recent access rate
	Size      float64 // bytes charged
}

// DefaultScoreWeights favors idle time, then low frequency, then age.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Age: 0.2, Idle: 0.4, Frequency: 0.3, Size: 0.1}
}

func (w ScoreWeights) valid() bool {
	return w.Age >= 0 && w.Idle >= 0 && w.Frequency >= 0 && w.Size >= 0
}

// Candidate is the scorer's view of one entry.
type Candidate struct {
	Key            string
	Size           int64
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    uint64
	Frequency      float64 // accesses per second over the tracker window
}

// Scorer ranks eviction candidates. It keeps no state between calls, so the
// same population and instant always produce the same ranking.
type Scorer struct {
	Weights ScoreWeights
}

type population struct {
	maxAge, maxIdle time.Duration
	maxFreq         float64
	maxSize         int64
}

func measurePopulation(cands []Candidate, now time.Time) population {
	var p population
	for _, c := range cands {
		p.maxAge = max(p.maxAge, nonNeg(now.Sub(c.CreatedAt)))
		p.maxIdle = max(p.maxIdle, nonNeg(now.Sub(c.LastAccessedAt)))
		p.maxFreq = max(p.maxFreq, c.Frequency)
		p.maxSize = max(p.maxSize, c.Size)
	}
	return p
}

// Scores returns one score per candidate, in input order. Higher means more evictable.
func (s Scorer) Scores(cands []Candidate, now time.Time) []float64 {
	p := measurePopulation(cands, now)
	out := make([]float64, len(cands))
	for i, c := range cands {
		out[i] = s.score(c, p, now)
	}
	return out
}

func (s Scorer) score(c Candidate, p population, now time.Time) float64 {
	w := s.Weights
	age := ratio(float64(nonNeg(now.Sub(c.CreatedAt))), float64(p.maxAge))
	idle := ratio(float64(nonNeg(now.Sub(c.LastAccessedAt))), float64(p.maxIdle))
	// nobody accessed anything recently: everyone is equally cold
	freq := 1.0
	if p.maxFreq > 0 {
		freq = 1 - c.Frequency/p.maxFreq
	}
	size := ratio(float64(c.Size), float64(p.maxSize))
	return w.Age*age + w.Idle*idle + w.Frequency*freq + w.Size*size
}

// Rank orders candidates most evictable first. Equal scores put the oldest
// CreatedAt first, then the smaller key.
func (s Scorer) Rank(cands []Candidate, now time.Time) []Candidate {
	scores := s.Scores(cands, now)
	idx := make([]int, len(cands))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if scores[ia] != scores[ib] {
			return scores[ia] > scores[ib]
		}
		ca, cb := cands[ia], cands[ib]
		if !ca.CreatedAt.Equal(cb.CreatedAt) {
			return ca.CreatedAt.Before(cb.CreatedAt)
		}
		return ca.Key < cb.Key
	})
	out := make([]Candidate, len(cands))
	for i, j := range idx {
		out[i] = cands[j]
	}
	return out
}

func ratio(v, maxV float64) float64 {
	if maxV <= 0 {
		return 0
	}
	return v / maxV
}

func nonNeg(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
