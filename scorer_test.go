package adaptcache

import (
	"reflect"
	"testing"
	"time"
)

func keys(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Key
	}
	return out
}

func TestScorerSignals(t *testing.T) {
	now := epoch.Add(time.Minute)
	cases := []struct {
		name    string
		weights ScoreWeights
		cands   []Candidate
		want    []string // most evictable first
	}{
		{
			name:    "idle",
			weights: ScoreWeights{Idle: 1},
			cands: []Candidate{
				{Key: "recent", CreatedAt: epoch, LastAccessedAt: now.Add(-time.Second)},
				{Key: "stale", CreatedAt: epoch, LastAccessedAt: now.Add(-50 * time.Second)},
			},
			want: []string{"stale", "recent"},
		},
		{
			name:    "frequency inverted",
			weights: ScoreWeights{Frequency: 1},
			cands: []Candidate{
				{Key: "hot", CreatedAt: epoch, Frequency: 2},
				{Key: "cold", CreatedAt: epoch.Add(time.Second), Frequency: 0.1},
			},
			want: []string{"cold", "hot"},
		},
		{
			name:    "age",
			weights: ScoreWeights{Age: 1},
			cands: []Candidate{
				{Key: "young", CreatedAt: now.Add(-time.Second)},
				{Key: "old", CreatedAt: epoch},
			},
			want: []string{"old", "young"},
		},
		{
			name:    "size",
			weights: ScoreWeights{Size: 1},
			cands: []Candidate{
				{Key: "small", CreatedAt: epoch, Size: 10},
				{Key: "large", CreatedAt: epoch, Size: 1000},
			},
			want: []string{"large", "small"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := keys(Scorer{Weights: tc.weights}.Rank(tc.cands, now))
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("rank: got %v want %v", got, tc.want)
			}
		})
	}
}

func TestScoresNormalizedToWeightSum(t *testing.T) {
	now := epoch.Add(time.Hour)
	w := DefaultScoreWeights()
	cands := []Candidate{
		{Key: "a", Size: 1, CreatedAt: epoch, LastAccessedAt: epoch, Frequency: 0},
		{Key: "b", Size: 500, CreatedAt: epoch.Add(time.Minute), LastAccessedAt: now, Frequency: 3},
		{Key: "c", Size: 50, CreatedAt: now, LastAccessedAt: now, Frequency: 1},
	}
	scores := Scorer{Weights: w}.Scores(cands, now)
	sum := w.Age + w.Idle + w.Frequency + w.Size
	for i, s := range scores {
		if s < 0 || s > sum+1e-9 {
			t.Fatalf("score[%d]=%v outside [0,%v]", i, s, sum)
		}
	}
	// a is oldest, most idle and never accessed: only its size is minimal
	want := w.Age + w.Idle + w.Frequency + w.Size*(1.0/500)
	if diff := scores[0] - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("score[a]=%v want %v", scores[0], want)
	}
}

func TestRankTieBreaksOnCreatedAtThenKey(t *testing.T) {
	now := epoch.Add(time.Minute)
	cands := []Candidate{
		{Key: "z", CreatedAt: epoch.Add(2 * time.Second), LastAccessedAt: now},
		{Key: "b", CreatedAt: epoch, LastAccessedAt: now},
		{Key: "a", CreatedAt: epoch, LastAccessedAt: now},
	}
	// only idle is weighted and everyone was just accessed: all scores are 0
	got := keys(Scorer{Weights: ScoreWeights{Idle: 1}}.Rank(cands, now))
	if want := []string{"a", "b", "z"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("tie-break: got %v want %v", got, want)
	}
}

func TestScorerIsStateless(t *testing.T) {
	now := epoch.Add(time.Minute)
	cands := []Candidate{
		{Key: "a", Size: 3, CreatedAt: epoch, LastAccessedAt: epoch.Add(time.Second), Frequency: 0.2},
		{Key: "b", Size: 9, CreatedAt: epoch.Add(time.Second), LastAccessedAt: epoch.Add(30 * time.Second)},
		{Key: "c", Size: 1, CreatedAt: epoch.Add(5 * time.Second), LastAccessedAt: now, Frequency: 1},
	}
	s := Scorer{Weights: DefaultScoreWeights()}
	first := s.Rank(cands, now)
	for i := 0; i < 5; i++ {
		if again := s.Rank(cands, now); !reflect.DeepEqual(again, first) {
			t.Fatalf("ranking changed between calls: %v vs %v", keys(again), keys(first))
		}
	}
	// input order untouched
	if got := keys(cands); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("Rank mutated input: %v", got)
	}
}

func TestScorerEmptyPopulation(t *testing.T) {
	if got := (Scorer{Weights: DefaultScoreWeights()}).Rank(nil, epoch); len(got) != 0 {
		t.Fatalf("empty rank: %v", got)
	}
}
