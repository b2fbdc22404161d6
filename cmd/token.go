package main

import (
	"errors"
	"fmt"
	"time"

	"tenant-service/internal/model"
	"tenant-service/internal/session"
	"tenant-service/pkg/database"
	"tenant-service/pkg/jwtutil"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// issueTokenCmd opens a session for a user and prints a bearer token for it.
// Credentials are verified elsewhere; this is for operators and local testing.
func issueTokenCmd() *cobra.Command {
	var (
		userID    string
		email     string
		userAgent string
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Open a session for a user and print its bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(userID)
			if err != nil {
				return errors.New("--user-id must be a UUID")
			}

			cfg, log, err := setup()
			if err != nil {
				return err
			}
			db, err := database.InitDB(&cfg.DB, log)
			if err != nil {
				return err
			}
			if err := database.MigrateModels(db, model.All()...); err != nil {
				return err
			}

			jwtUtil := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
				SigningKey:      cfg.JWT.SigningKey,
				ExpirationHours: cfg.JWT.ExpirationHours,
			})
			sess, err := session.NewStore(db).Create(cmd.Context(), id, jwtUtil.TTL(), userAgent, "")
			if err != nil {
				return err
			}
			token, err := jwtUtil.GenerateToken(email, id, sess.ID, time.Now())
			if err != nil {
				return err
			}

			log.Info("Session opened",
				zap.String("user_id", id.String()),
				zap.String("session_id", sess.ID.String()),
				zap.Time("expires_at", sess.ExpiresAt))
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user to open the session for")
	cmd.Flags().StringVar(&email, "email", "", "email carried in the token")
	cmd.Flags().StringVar(&userAgent, "user-agent", "issue-token", "user agent recorded on the session")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
