package scenarios

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/sync/errgroup"

	"dev/bravebird/messenger-e2e/pkg/app"
	"dev/bravebird/messenger-e2e/pkg/locale"
	"dev/bravebird/messenger-e2e/pkg/models"
	"dev/bravebird/messenger-e2e/pkg/setup"
	"dev/bravebird/messenger-e2e/pkg/snapshot"
	"dev/bravebird/messenger-e2e/pkg/verify"
)

const (
	// AvatarBaseline is the expected left pane avatar after the upload
	AvatarBaseline = "avatar-updated-blue.jpeg"

	avatarVerification = "Check profile picture syncs"
	profileNameTestID  = "module-conversation__user__profile-name"
)

// Send message in one to one conversation with new contact
func createContact(ctx context.Context, env *Env) error {
	windowA, windowB := env.WindowA, env.WindowB

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		env.Alice, err = setup.NewUser(gctx, windowA, "Alice", env.Logger)
		return err
	})
	g.Go(func() (err error) {
		env.Bob, err = setup.NewUser(gctx, windowB, "Bob", env.Logger)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := CreateContact(ctx, windowA, windowB, env.Alice, env.Bob); err != nil {
		return err
	}
	accepted := locale.EnglishStrippedStr("messageRequestYouHaveAccepted").
		WithArgs(map[string]string{"name": env.Alice.UserName}).
		String()
	if _, err := windowB.WaitForTestIDWithText(ctx, "message-request-response-message", accepted); err != nil {
		return err
	}

	err := onBoth(ctx, windowA, windowB, func(ctx context.Context, w *app.Window) error {
		return w.ClickOnElement(ctx, app.StrategyTestID, "new-conversation-button")
	})
	if err != nil {
		return err
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := windowA.WaitForTestIDWithText(gctx, profileNameTestID, env.Bob.UserName)
		return err
	})
	g.Go(func() error {
		_, err := windowB.WaitForTestIDWithText(gctx, profileNameTestID, env.Alice.UserName)
		return err
	})
	return g.Wait()
}

func blockUserInConversationList(ctx context.Context, env *Env) error {
	alice, bob := env.WindowA, env.WindowB
	block := locale.EnglishStrippedStr("block").String()

	if err := CreateContact(ctx, alice, bob, env.Alice, env.Bob); err != nil {
		return err
	}

	steps := []func() error{
		// Bob must be listed as a contact
		func() error { return alice.ClickOnTestIDWithText(ctx, "new-conversation-button", "", false) },
		func() error {
			_, err := alice.WaitForTestIDWithText(ctx, profileNameTestID, env.Bob.UserName)
			return err
		},
		// the contact list has no context menu, close it again
		func() error { return alice.ClickOnTestIDWithText(ctx, "new-conversation-button", "", false) },
		func() error { return alice.ClickOnTestIDWithText(ctx, profileNameTestID, env.Bob.UserName, true) },
		func() error { return alice.ClickOnTestIDWithText(ctx, "context-menu-item", block, false) },
		func() error { return alice.ClickOnTestIDWithText(ctx, "session-confirm-ok-button", block, false) },
		// Bob must now show up in the blocked list
		func() error { return alice.ClickOnTestIDWithText(ctx, "settings-section", "", false) },
		func() error { return alice.ClickOnTestIDWithText(ctx, "conversations-settings-menu-item", "", false) },
		func() error { return alice.ClickOnTestIDWithText(ctx, "reveal-blocked-user-settings", "", false) },
		func() error { return alice.ClickOnMatchingText(ctx, env.Bob.UserName, false) },
		func() error { return alice.ClickOnTestIDWithText(ctx, "unblock-button-settings-screen", "", false) },
		func() error {
			description := locale.EnglishStrippedStr("blockUnblockName").
				WithArgs(map[string]string{"name": env.Bob.UserName}).
				String()
			return alice.ClickOnTestIDWithText(ctx, "block-unblock-modal-description", description, false)
		},
		func() error {
			unblock := locale.EnglishStrippedStr("blockUnblock").String()
			return alice.ClickOnTestIDWithText(ctx, "session-confirm-ok-button", unblock, false)
		},
		func() error {
			return alice.WaitForMatchingText(ctx, locale.EnglishStrippedStr("blockBlockedNone").String())
		},
	}
	return runSteps(steps)
}

func changeUsername(ctx context.Context, env *Env) error {
	const newUsername = "Tiny bubble"
	alice := env.WindowA

	steps := []func() error{
		func() error { return alice.ClickOnTestIDWithText(ctx, "leftpane-primary-avatar", "", false) },
		func() error { return alice.ClickOnTestIDWithText(ctx, "edit-profile-icon", "", false) },
		func() error { return alice.TypeIntoInput(ctx, "profile-name-input", newUsername) },
		func() error { return alice.PressKey(ctx, "Enter") },
		func() error {
			// the copy button comes back once the name is saved
			_, err := alice.IsVisible(ctx, locale.EnglishStrippedStr("copy").String())
			return err
		},
		func() error {
			name, err := alice.InnerText(ctx, "your-profile-name")
			if err != nil {
				return err
			}
			return expectText(name, newUsername, "profile name")
		},
		func() error { return alice.ClickOnTestIDWithText(ctx, "modal-close-button", "", false) },
	}
	return runSteps(steps)
}

func changeAvatar(ctx context.Context, env *Env) error {
	alice := env.WindowA

	steps := []func() error{
		func() error { return alice.ClickOnTestIDWithText(ctx, "leftpane-primary-avatar", "", false) },
		func() error {
			_, err := alice.WaitForTestIDWithText(ctx, "copy-button-profile-update", locale.EnglishStrippedStr("copy").String())
			return err
		},
		func() error { return alice.ClickOnTestIDWithText(ctx, "image-upload-section", "", false) },
		func() error { return alice.ClickOnTestIDWithText(ctx, "image-upload-click", "", false) },
		func() error { return alice.ClickOnTestIDWithText(ctx, "save-button-profile-update", "", false) },
		func() error {
			_, err := alice.WaitForTestIDWithText(ctx, "loading-spinner", "")
			return err
		},
		func() error { return sleepFor(ctx, 500*time.Millisecond) },
	}
	if err := runSteps(steps); err != nil {
		return err
	}

	avatar, err := alice.WaitForTestIDWithText(ctx, "leftpane-primary-avatar", "")
	if err != nil {
		return err
	}

	cfg := env.Verify
	// regenerating baselines: give the change time to arrive before capturing
	cfg.UseExtendedSettleMode = env.Snapshots.Mode == snapshot.UpdateAll

	probe := func(ctx context.Context) ([]byte, error) {
		return alice.ScreenshotElement(avatar.Context(ctx), proto.PageCaptureScreenshotFormatJpeg)
	}
	_, err = verify.Verify(ctx, cfg, avatarVerification, probe, env.Snapshots.Compare(AvatarBaseline), env.VerifyOptions(avatarVerification)...)
	if err != nil {
		return fmt.Errorf("waiting %s and still the screenshot is not right: %w", cfg.TotalBudget, err)
	}
	return nil
}

func setNickname(ctx context.Context, env *Env) error {
	const nickname = "new nickname for Bob"
	alice := env.WindowA

	if err := CreateContact(ctx, alice, env.WindowB, env.Alice, env.Bob); err != nil {
		return err
	}

	steps := []func() error{
		func() error { return alice.ClickOnElement(ctx, app.StrategyTestID, "message-section") },
		func() error { return alice.ClickOnTestIDWithText(ctx, profileNameTestID, env.Bob.UserName, true) },
		func() error {
			return alice.ClickOnMatchingText(ctx, locale.EnglishStrippedStr("nicknameSet").String(), false)
		},
		func() error { return sleepFor(ctx, time.Second) },
		func() error { return alice.TypeIntoInput(ctx, "nickname-input", nickname) },
		func() error { return sleepFor(ctx, 100*time.Millisecond) },
		func() error {
			return alice.ClickOnTestIDWithText(ctx, "confirm-nickname", locale.EnglishStrippedStr("save").String(), false)
		},
		func() error { return sleepFor(ctx, time.Second) },
		func() error {
			header, err := alice.WaitForTestIDWithText(ctx, "header-conversation-name", "")
			if err != nil {
				return err
			}
			text, err := header.Text()
			if err != nil {
				return err
			}
			env.Logger.Info("Conversation header", "text", text)
			return expectText(text, nickname, "conversation header name")
		},
		func() error {
			item, err := alice.WaitForTestIDWithText(ctx, profileNameTestID, "")
			if err != nil {
				return err
			}
			text, err := item.Text()
			if err != nil {
				return err
			}
			return expectText(text, nickname, "conversation list name")
		},
	}
	return runSteps(steps)
}

func readStatus(ctx context.Context, env *Env) error {
	alice, bob := env.WindowA, env.WindowB

	if err := CreateContact(ctx, alice, bob, env.Alice, env.Bob); err != nil {
		return err
	}

	enableAndOpen := func(w *app.Window, peer models.User) error {
		for _, testID := range []string{"settings-section", "enable-read-receipts", "message-section"} {
			if err := w.ClickOnElement(ctx, app.StrategyTestID, testID); err != nil {
				return err
			}
		}
		return w.ClickOnTestIDWithText(ctx, profileNameTestID, peer.UserName, false)
	}
	if err := enableAndOpen(alice, env.Bob); err != nil {
		return err
	}
	if err := enableAndOpen(bob, env.Alice); err != nil {
		return err
	}
	return SendMessage(ctx, alice, "Testing read receipts")
}

func runSteps(steps []func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
