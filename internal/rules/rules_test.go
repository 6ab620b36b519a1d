package rules

import "testing"

func TestNormalizeAnswer(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"trim and collapse", " Hello   World ", "hello world"},
		{"tabs and newlines", "good\t\nmorning", "good morning"},
		{"unicode fold", "ÉCOLE", "école"},
		{"already normal", "how are you", "how are you"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeAnswer(tt.in); got != tt.want {
				t.Errorf("NormalizeAnswer(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeAnswer_Idempotent(t *testing.T) {
	inputs := []string{" Hello   World ", "ÉCOLE  Été", "a b", "", "I'm   FINE"}
	for _, in := range inputs {
		once := NormalizeAnswer(in)
		if twice := NormalizeAnswer(once); twice != once {
			t.Errorf("NormalizeAnswer not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestAnswersEqual(t *testing.T) {
	if !AnswersEqual("  The Cat", "the   cat ") {
		t.Error("AnswersEqual should ignore case and spacing")
	}
	if AnswersEqual("the cat", "the cats") {
		t.Error("AnswersEqual should not match different words")
	}
}

func TestMatchesAny_IgnoresBlankAccepted(t *testing.T) {
	if MatchesAny("", "", "  ") {
		t.Error("blank answers should never match blank accepted answers")
	}
	if !MatchesAny("Hi", "hello", "HI") {
		t.Error("MatchesAny should match the second accepted answer")
	}
}

func TestNormalizePercent(t *testing.T) {
	tests := []struct{ in, want int }{{-5, 0}, {0, 0}, {55, 55}, {100, 100}, {140, 100}}
	for _, tt := range tests {
		if got := NormalizePercent(tt.in); got != tt.want {
			t.Errorf("NormalizePercent(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIsPassed(t *testing.T) {
	tests := []struct {
		name              string
		score, total, pct int
		want              bool
	}{
		{"zero total", 5, 0, 80, false},
		{"negative total", 1, -1, 0, false},
		{"zero percent always passes", 0, 10, 0, true},
		{"negative percent clamps to zero", 0, 10, -20, true},
		{"exact threshold", 8, 10, 80, true},
		{"just below", 7, 10, 80, false},
		{"full marks at 100", 10, 10, 100, true},
		{"one short of 100", 9, 10, 100, false},
		{"over 100 clamps", 10, 10, 250, true},
		{"thirds", 2, 3, 66, true},
		{"thirds strict", 2, 3, 67, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPassed(tt.score, tt.total, tt.pct); got != tt.want {
				t.Errorf("IsPassed(%d, %d, %d) = %v, want %v", tt.score, tt.total, tt.pct, got, tt.want)
			}
		})
	}
}

func TestIsPassed_Monotonic(t *testing.T) {
	for total := 1; total <= 12; total++ {
		for pct := 0; pct <= 100; pct += 5 {
			if !IsPassed(total, total, 100) {
				t.Fatalf("IsPassed(%d, %d, 100) = false", total, total)
			}
			if pct > 0 && IsPassed(0, total, pct) {
				t.Fatalf("IsPassed(0, %d, %d) = true", total, pct)
			}
			for score := 0; score < total; score++ {
				if IsPassed(score, total, pct) && !IsPassed(score+1, total, pct) {
					t.Fatalf("not monotonic in score: %d/%d at %d%%", score, total, pct)
				}
				if pct >= 5 && IsPassed(score, total, pct) && !IsPassed(score, total, pct-5) {
					t.Fatalf("not monotonic in pct: %d/%d at %d%%", score, total, pct)
				}
			}
		}
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(1, 3); got != 33 {
		t.Errorf("Percent(1, 3) = %d, want 33", got)
	}
	if got := Percent(4, 0); got != 0 {
		t.Errorf("Percent(4, 0) = %d, want 0", got)
	}
}

func TestRequiredPassedLessons(t *testing.T) {
	tests := []struct {
		ordinal, every, want int
	}{
		{-3, 2, 0},
		{0, 2, 0},
		{1, 5, 0},
		{2, 1, 1},
		{3, 1, 2},
		{3, 4, 8},
		{4, 0, 3},
		{4, -2, 3},
	}
	for _, tt := range tests {
		if got := RequiredPassedLessons(tt.ordinal, tt.every); got != tt.want {
			t.Errorf("RequiredPassedLessons(%d, %d) = %d, want %d", tt.ordinal, tt.every, got, tt.want)
		}
	}
}

func TestIsUnlocked(t *testing.T) {
	if !IsUnlocked(1, 0, 3) {
		t.Error("first scene should always be unlocked")
	}
	if IsUnlocked(3, 3, 2) {
		t.Error("scene 3 with unlockEvery 2 needs 4 passed lessons")
	}
	if !IsUnlocked(3, 4, 2) {
		t.Error("scene 3 should unlock at 4 passed lessons")
	}
}
