package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-lingo/internal/content"
	"github.com/p-n-ai/pai-lingo/internal/learning"
	"github.com/p-n-ai/pai-lingo/internal/store"
)

func newSeedCmd(a *app) *cobra.Command {
	var contentDir, vocabFile string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load courses, scenes, achievements and the vocabulary catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := contentDir
			if dir == "" {
				dir = a.cfg.ContentPath
			}
			bundle, err := content.LoadDir(dir)
			if err != nil {
				return err
			}
			var items []content.VocabularyItem
			if vocabFile != "" {
				if items, err = content.LoadVocabularyWorkbook(vocabFile); err != nil {
					return err
				}
			}

			return a.withStore(cmd.Context(), func(st store.Store) error {
				n, err := seed(cmd.Context(), st, bundle, items)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"seeded %d courses, %d lessons, %d exercises, %d scenes, %d steps, %d achievements, %d vocabulary items\n",
					n.courses, n.lessons, n.exercises, n.scenes, n.steps, n.achievements, n.vocabulary)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&contentDir, "content", "", "Directory of YAML content (default LEARN_CONTENT_PATH)")
	cmd.Flags().StringVar(&vocabFile, "vocab", "", "Vocabulary workbook (.xlsx) with columns word, translation, example")
	return cmd
}

type seedCounts struct {
	courses, lessons, exercises, scenes, steps, achievements, vocabulary int
}

// seed upserts everything in one transaction so a bad row leaves the
// catalog untouched.
func seed(ctx context.Context, st store.Store, b content.Bundle, items []content.VocabularyItem) (seedCounts, error) {
	var n seedCounts
	err := st.WithinTx(ctx, func(repo store.Repository) error {
		n = seedCounts{}
		for _, c := range b.Courses {
			if err := repo.SaveCourse(ctx, c); err != nil {
				return fmt.Errorf("course %d: %w", c.ID, err)
			}
			n.courses++
		}
		for _, t := range b.Topics {
			if err := repo.SaveTopic(ctx, t); err != nil {
				return fmt.Errorf("topic %d: %w", t.ID, err)
			}
		}
		for _, l := range b.Lessons {
			if err := repo.SaveLesson(ctx, l); err != nil {
				return fmt.Errorf("lesson %d: %w", l.ID, err)
			}
			n.lessons++
		}
		for _, e := range b.Exercises {
			if err := repo.SaveExercise(ctx, e); err != nil {
				return fmt.Errorf("exercise %d: %w", e.ID, err)
			}
			n.exercises++
		}
		for _, s := range b.Scenes {
			if err := repo.SaveScene(ctx, s); err != nil {
				return fmt.Errorf("scene %d: %w", s.ID, err)
			}
			n.scenes++
		}
		for _, s := range b.Steps {
			if err := repo.SaveSceneStep(ctx, s); err != nil {
				return fmt.Errorf("scene step %d: %w", s.ID, err)
			}
			n.steps++
		}
		for _, ach := range learning.DefaultAchievements() {
			if err := repo.SaveAchievement(ctx, ach); err != nil {
				return fmt.Errorf("achievement %s: %w", ach.Code, err)
			}
			n.achievements++
		}
		for _, v := range items {
			if _, err := repo.SaveVocabularyItem(ctx, v); err != nil {
				return fmt.Errorf("vocabulary %q: %w", v.Word, err)
			}
			n.vocabulary++
		}
		return nil
	})
	if err != nil {
		return seedCounts{}, fmt.Errorf("seeding catalog: %w", err)
	}
	slog.Info("catalog seeded", "courses", n.courses, "lessons", n.lessons, "scenes", n.scenes, "vocabulary", n.vocabulary)
	return n, nil
}
