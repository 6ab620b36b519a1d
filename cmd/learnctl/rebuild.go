package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-lingo/internal/httpapi"
	"github.com/p-n-ai/pai-lingo/internal/learning"
	"github.com/p-n-ai/pai-lingo/internal/store"
)

func newRebuildCmd(a *app) *cobra.Command {
	var learnerID int64
	cmd := &cobra.Command{
		Use:   "rebuild-progress",
		Short: "Recompute a learner's progress rollup from history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if learnerID <= 0 {
				return errors.New("--learner must be a positive id")
			}
			return a.withStore(cmd.Context(), func(st store.Store) error {
				engine := learning.NewEngine(learning.EngineConfig{Store: st, Settings: &a.cfg.Learning})
				p, err := engine.RebuildProgress(cmd.Context(), learnerID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			})
		},
	}
	cmd.Flags().Int64Var(&learnerID, "learner", 0, "Learner id")
	_ = cmd.MarkFlagRequired("learner")
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	var (
		learnerID int64
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a learner (development use)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if learnerID <= 0 {
				return errors.New("--learner must be a positive id")
			}
			if a.cfg.Auth.JWTSecret == "" {
				return errors.New("LEARN_AUTH_JWT_SECRET is not set")
			}
			auth := httpapi.NewAuthenticator(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer)
			tok, err := auth.Issue(learnerID, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&learnerID, "learner", 0, "Learner id")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("learner")
	return cmd
}
