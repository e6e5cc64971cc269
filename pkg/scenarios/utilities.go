package scenarios

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"dev/bravebird/messenger-e2e/pkg/app"
	"dev/bravebird/messenger-e2e/pkg/locale"
	"dev/bravebird/messenger-e2e/pkg/models"
)

const (
	testMessage = "Sending test message"
	testReply   = "Sending reply message"
)

// CreateContact makes userA and userB contacts: A messages B, B accepts the
// request and replies.
func CreateContact(ctx context.Context, windowA, windowB *app.Window, userA, userB models.User) error {
	if err := windowA.ClickOnTestIDWithText(ctx, "new-conversation-button", "", false); err != nil {
		return err
	}
	if err := windowA.ClickOnTestIDWithText(ctx, "chooser-new-conversation-button", "", false); err != nil {
		return err
	}
	if err := windowA.TypeIntoInput(ctx, "new-session-conversation", userB.SessionID); err != nil {
		return err
	}
	if err := windowA.ClickOnTestIDWithText(ctx, "next-new-conversation-button", "", false); err != nil {
		return err
	}
	if err := SendMessage(ctx, windowA, fmt.Sprintf("%s to %s", testMessage, userB.UserName)); err != nil {
		return err
	}

	if err := windowB.ClickOnTestIDWithText(ctx, "message-request-banner", "", false); err != nil {
		return err
	}
	if err := windowB.ClickOnTestIDWithText(ctx, "module-conversation__user__profile-name", userA.UserName, false); err != nil {
		return err
	}
	if err := windowB.ClickOnTestIDWithText(ctx, "accept-message-request", "", false); err != nil {
		return err
	}
	accepted := locale.EnglishStrippedStr("messageRequestYouHaveAccepted").
		WithArgs(map[string]string{"name": userA.UserName}).
		String()
	if _, err := windowB.WaitForTestIDWithText(ctx, "message-request-response-message", accepted); err != nil {
		return err
	}
	return SendMessage(ctx, windowB, fmt.Sprintf("%s to %s", testReply, userA.UserName))
}

// SendMessage types text into the composition box, sends it and waits for it
// to show up in the conversation
func SendMessage(ctx context.Context, w *app.Window, text string) error {
	if err := w.TypeIntoInput(ctx, "message-input-text-area", text); err != nil {
		return err
	}
	if err := w.ClickOnTestIDWithText(ctx, "send-message-button", "", false); err != nil {
		return err
	}
	if _, err := w.WaitForTestIDWithText(ctx, "message-content", text); err != nil {
		return fmt.Errorf("message %q never showed up: %w", text, err)
	}
	return nil
}

// onBoth runs fn for both windows at once
func onBoth(ctx context.Context, a, b *app.Window, fn func(ctx context.Context, w *app.Window) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return fn(gctx, a) })
	g.Go(func() error { return fn(gctx, b) })
	return g.Wait()
}

func expectText(got, want, what string) error {
	if got != want {
		return fmt.Errorf("unexpected %s: got %q, want %q", what, got, want)
	}
	return nil
}
