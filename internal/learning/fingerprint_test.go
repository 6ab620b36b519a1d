package learning

import (
	"bytes"
	"testing"
	"time"

	"github.com/p-n-ai/pai-lingo/internal/store"
)

func TestFingerprint(t *testing.T) {
	a := fingerprint([]Answer{{ID: 1, Text: "Hola"}, {ID: 2, Text: "buenos  días"}})
	b := fingerprint([]Answer{{ID: 2, Text: " BUENOS DÍAS"}, {ID: 1, Text: "hola"}})
	if !bytes.Equal(a, b) {
		t.Error("fingerprint should ignore order, case and spacing")
	}
	if len(a) != 32 {
		t.Errorf("len = %d, want 32", len(a))
	}

	tests := []struct {
		name    string
		answers []Answer
	}{
		{"different text", []Answer{{ID: 1, Text: "hola"}, {ID: 2, Text: "buenas noches"}}},
		{"different id", []Answer{{ID: 1, Text: "hola"}, {ID: 3, Text: "buenos días"}}},
		{"subset", []Answer{{ID: 1, Text: "hola"}}},
		// Length prefixes keep concatenations apart.
		{"shifted boundary", []Answer{{ID: 1, Text: "hola buenos"}, {ID: 2, Text: "días"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if bytes.Equal(a, fingerprint(tt.answers)) {
				t.Error("fingerprints should differ")
			}
		})
	}
}

func TestGradeAnswers(t *testing.T) {
	items := []gradeItem{
		{id: 1, accepted: []string{"hola"}},
		{id: 2, accepted: []string{"sí", "si"}},
		{id: 3, accepted: []string{"gracias"}},
	}
	g := gradeAnswers(items, []Answer{{ID: 2, Text: "Si"}, {ID: 1, Text: "adiós"}})

	if g.score() != 1 || g.total() != 3 {
		t.Errorf("score = %d/%d, want 1/3", g.score(), g.total())
	}
	if len(g.wrong) != 2 || g.wrong[0] != 1 || g.wrong[1] != 3 {
		t.Errorf("wrong = %v, want [1 3]", g.wrong)
	}
	if len(g.correct) != 1 || g.correct[0] != 2 {
		t.Errorf("correct = %v, want [2]", g.correct)
	}
}

func TestFoldProgress(t *testing.T) {
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	lessons := []store.LessonProgress{
		{LessonID: 1, IsCompleted: true},
		{LessonID: 2, IsUnlocked: true},
		{LessonID: 3, IsCompleted: true},
	}
	results := []store.LessonResult{
		{LessonID: 1, Score: 4, Total: 5, Passed: true},
		{LessonID: 1, Score: 2, Total: 5},
		{LessonID: 3, Score: 5, Total: 5, Passed: true},
		{LessonID: 3, Score: 5, Total: 5, Passed: true},
	}
	scenes := []store.SceneAttempt{{SceneID: 1, IsCompleted: true}, {SceneID: 2}}

	p := FoldProgress(9, lessons, results, scenes, now)
	if p.LearnerID != 9 || p.CompletedLessons != 2 || p.CompletedScenes != 1 || p.TotalScore != 14 {
		t.Errorf("FoldProgress() = %+v", p)
	}
	if !p.LastUpdatedAt.Equal(now) {
		t.Errorf("LastUpdatedAt = %v, want %v", p.LastUpdatedAt, now)
	}
	if again := FoldProgress(9, lessons, results, scenes, now); again != p {
		t.Error("FoldProgress should be deterministic")
	}
}
