package hotness

import (
	"math"
	"testing"

	"NewsRadar/internal/domain"
)

func TestScoreFormula(t *testing.T) {
	t.Parallel()

	got := Score(0.8, 0.9, 1.0, 0.4, 0.9, 0.33)
	if got != 0.763 {
		t.Fatalf("Score = %v, want 0.763", got)
	}
	if !Confirmed(1.0) {
		t.Fatal("confirmation 1.0 should mark event confirmed")
	}
}

func TestScoreGuardrailCapsLowTrust(t *testing.T) {
	t.Parallel()

	// Both thresholds violated: capped regardless of other inputs.
	for _, novelty := range []float64{0.0, 0.5, 1.0} {
		got := Score(novelty, 0.65, 0.3, 1.0, 1.0, 1.0)
		if got > 0.49 {
			t.Fatalf("capped score exceeded 0.49: %v (novelty=%v)", got, novelty)
		}
	}
}

func TestScoreGuardrailSingleConditionDoesNotCap(t *testing.T) {
	t.Parallel()

	// credibility >= 0.7 disables the cap even when unconfirmed.
	got := Score(1.0, 0.8, 0.3, 1.0, 1.0, 1.0)
	want := Score(1.0, 0.8, 0.3, 1.0, 1.0, 1.0)
	if got != want || got <= 0.49 {
		t.Fatalf("cap applied with credibility 0.8: %v", got)
	}

	// confirmation >= 0.5 disables the cap even with a weak source.
	got = Score(1.0, 0.55, 1.0, 1.0, 1.0, 1.0)
	if got <= 0.49 {
		t.Fatalf("cap applied with confirmation 1.0: %v", got)
	}
}

func TestScoreStaysInRange(t *testing.T) {
	t.Parallel()

	grid := []float64{0, 0.25, 0.5, 0.75, 1}
	for _, n := range grid {
		for _, c := range grid {
			for _, m := range grid {
				got := Score(n, c, 1.0, c, m, n)
				if got < 0 || got > 1 {
					t.Fatalf("Score out of range: %v", got)
				}
			}
		}
	}
}

func TestCredibility(t *testing.T) {
	t.Parallel()

	srcs := []domain.Source{
		{Type: domain.SourceNews, URL: "https://news.example/a"},
		{Type: domain.SourceRegulator, URL: "https://reg.example/1"},
	}
	if got := Credibility(srcs); got != 1.0 {
		t.Fatalf("Credibility = %v, want 1.0", got)
	}
	if got := Credibility(nil); got != 0.7 {
		t.Fatalf("empty credibility = %v, want default 0.7", got)
	}
	if got := Credibility([]domain.Source{{Type: "unknown"}}); got != 0.7 {
		t.Fatalf("unknown type credibility = %v, want 0.7", got)
	}
}

func TestConfirmationAndDomains(t *testing.T) {
	t.Parallel()

	srcs := []domain.Source{
		{Type: domain.SourceNews, URL: "https://a.example/1"},
		{Type: domain.SourceNews, URL: "https://b.example/2"},
		{Type: domain.SourceNews, URL: "https://a.example/3"},
	}
	n := DistinctDomains(srcs)
	if n != 2 {
		t.Fatalf("DistinctDomains = %d, want 2", n)
	}
	if got := Confirmation(srcs, n); got != 1.0 {
		t.Fatalf("two domains should confirm, got %v", got)
	}

	single := srcs[:1]
	if got := Confirmation(single, DistinctDomains(single)); got != 0.3 {
		t.Fatalf("single news domain confirmation = %v, want 0.3", got)
	}
	reg := []domain.Source{{Type: domain.SourceRegulator, URL: "https://reg.example/1"}}
	if got := Confirmation(reg, 1); got != 1.0 {
		t.Fatalf("regulator source should confirm, got %v", got)
	}
}

func TestVelocityScopeSaturation(t *testing.T) {
	t.Parallel()

	if got := Velocity(5); got != 1.0 {
		t.Fatalf("Velocity(5) = %v", got)
	}
	if got := Velocity(2); math.Abs(got-0.4) > 1e-9 {
		t.Fatalf("Velocity(2) = %v, want 0.4", got)
	}
	if got := Scope(3); got != 1.0 {
		t.Fatalf("Scope(3) = %v", got)
	}
	if got := Scope(1); math.Abs(got-1.0/3.0) > 1e-9 {
		t.Fatalf("Scope(1) = %v", got)
	}
}

func TestKeywordMateriality(t *testing.T) {
	t.Parallel()

	if got := KeywordMateriality("company announces merger with rival"); got != 0.9 {
		t.Fatalf("merger materiality = %v, want 0.9", got)
	}
	if got := KeywordMateriality("quarterly weather report"); got != 0.3 {
		t.Fatalf("no-match materiality = %v, want 0.3", got)
	}
	if got := KeywordMateriality(""); got != 0.3 {
		t.Fatalf("empty text materiality = %v, want 0.3", got)
	}
}

func TestPhraseSignal(t *testing.T) {
	t.Parallel()

	if got := PhraseSignal(nil); got != 0 {
		t.Fatalf("no phrases should score 0, got %v", got)
	}

	phrases := []domain.Entity{
		{Name: "Federal Reserve", Type: "ORG", Score: 0.95},
		{Name: "John Doe", Type: "PER", Score: 0.8},
	}
	got := PhraseSignal(phrases)
	if got <= 0 || got > 1 {
		t.Fatalf("phrase signal out of range: %v", got)
	}
	// 0.6*top + 0.25*avg + 0.15*diversity with ORG=1.0, PER=0.6 weights.
	top := 0.95
	avg := (0.95 + 0.48) / 2
	want := math.Round((0.6*top+0.25*avg+0.15*0.4)*1000) / 1000
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("phrase signal = %v, want %v", got, want)
	}
}

func TestMaterialityTakesStrongestSignal(t *testing.T) {
	t.Parallel()

	if got := Materiality("routine update", 0.85, nil); got != 0.85 {
		t.Fatalf("classifier signal should win: %v", got)
	}
	if got := Materiality("bankruptcy filing", 0.2, nil); got != 1.0 {
		t.Fatalf("keyword signal should win: %v", got)
	}
}
