package setup

import (
	"context"
	"fmt"
	"strings"

	"go.temporal.io/sdk/log"

	"dev/bravebird/messenger-e2e/pkg/app"
	"dev/bravebird/messenger-e2e/pkg/models"
)

const closeButtonSelector = "session-icon-button small"

// NewUser runs the onboarding flow in w and returns the created account
func NewUser(ctx context.Context, w *app.Window, userName string, logger log.Logger) (models.User, error) {
	user := models.User{UserName: userName}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"create session id", func() error { return w.ClickOnMatchingText(ctx, "Create Session ID", false) }},
		{"continue", func() error { return w.ClickOnMatchingText(ctx, "Continue", false) }},
		{"type display name", func() error { return w.TypeIntoInput(ctx, "display-name-input", userName) }},
		{"get started", func() error { return w.ClickOnMatchingText(ctx, "Get started", false) }},
		{"reveal recovery phrase", func() error { return w.ClickOnTestIDWithText(ctx, "reveal-recovery-phrase", "", false) }},
		{"read recovery phrase", func() error {
			phrase, err := w.InnerText(ctx, "recovery-phrase-seed-modal")
			user.RecoveryPhrase = phrase
			return err
		}},
		{"close recovery phrase", func() error { return w.ClickOnElement(ctx, app.StrategyClass, closeButtonSelector) }},
		{"open profile", func() error { return w.ClickOnTestIDWithText(ctx, "leftpane-primary-avatar", "", false) }},
		{"read session id", func() error {
			id, err := w.InnerText(ctx, "your-session-id")
			// rendered with a forced line break
			user.SessionID = stripNewlines(id)
			return err
		}},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			return models.User{}, fmt.Errorf("failed to create user %s: %s: %w", userName, step.name, err)
		}
	}

	logger.Info("User created", "user", userName, "sessionID", user.SessionID, "recoveryPhrase", user.RecoveryPhrase)

	if err := w.ClickOnElement(ctx, app.StrategyClass, closeButtonSelector); err != nil {
		return models.User{}, fmt.Errorf("failed to create user %s: close profile: %w", userName, err)
	}
	if err := w.CheckPathLight(ctx); err != nil {
		return models.User{}, fmt.Errorf("failed to create user %s: %w", userName, err)
	}
	return user, nil
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\r\n", "", "\n", "", "\r", "").Replace(s)
}
