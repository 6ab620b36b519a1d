package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-lingo/internal/content"
	"github.com/p-n-ai/pai-lingo/internal/store"
	"github.com/p-n-ai/pai-lingo/internal/vocab"
)

func newExtractCmd(a *app) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "List vocabulary candidates from lesson theory and scene steps that the catalog lacks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(st store.Store) error {
				missing, err := missingCandidates(cmd.Context(), st)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, w := range missing {
					fmt.Fprintln(out, w)
				}
				if !save {
					fmt.Fprintf(out, "%d candidates missing from the catalog\n", len(missing))
					return nil
				}
				if err := saveCandidates(cmd.Context(), st, missing); err != nil {
					return err
				}
				fmt.Fprintf(out, "added %d vocabulary items\n", len(missing))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Insert the missing candidates into the catalog")
	return cmd
}

// missingCandidates extracts candidates from all content and drops those
// already in the catalog.
func missingCandidates(ctx context.Context, st store.ContentReader) ([]string, error) {
	lessons, err := st.ListAllLessons(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading lessons: %w", err)
	}
	scenes, err := st.ListScenes(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading scenes: %w", err)
	}
	var steps []content.SceneStep
	for _, s := range scenes {
		ss, err := st.ListSceneSteps(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("loading steps of scene %d: %w", s.ID, err)
		}
		steps = append(steps, ss...)
	}

	var missing []string
	for _, w := range vocab.Extract(lessons, steps) {
		_, err := st.FindVocabularyItemByWord(ctx, w)
		switch {
		case errors.Is(err, store.ErrNotFound):
			missing = append(missing, w)
		case err != nil:
			return nil, fmt.Errorf("looking up %q: %w", w, err)
		}
	}
	return missing, nil
}

func saveCandidates(ctx context.Context, st store.Store, words []string) error {
	return st.WithinTx(ctx, func(repo store.Repository) error {
		for _, w := range words {
			if _, err := repo.SaveVocabularyItem(ctx, content.VocabularyItem{Word: w}); err != nil {
				return fmt.Errorf("saving %q: %w", w, err)
			}
		}
		return nil
	})
}
