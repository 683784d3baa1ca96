package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// SendCodeRequest asks the server to deliver a login code to the phone and
// keeps the returned hash for the follow-up SignIn.
func (c *Client) SendCodeRequest(ctx context.Context, phone string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	sentCode, err := c.client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return fmt.Errorf("sending code request: %w", err)
	}

	switch sent := sentCode.(type) {
	case *tg.AuthSentCode:
		c.pendMu.Lock()
		c.pendingPhone = phone
		c.pendingHash = sent.PhoneCodeHash
		c.pendMu.Unlock()
		return nil
	case *tg.AuthSentCodeSuccess:
		return nil
	default:
		return fmt.Errorf("unexpected send code result type: %T", sentCode)
	}
}

// SignIn completes the login with the delivered code, and the account
// password when two-factor auth is enabled. Returns ErrPasswordNeeded when a
// password is required but was not given.
func (c *Client) SignIn(ctx context.Context, phone, code, password string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.pendMu.Lock()
	pendingPhone, pendingHash := c.pendingPhone, c.pendingHash
	c.pendMu.Unlock()

	if pendingHash == "" {
		return ErrCodeNotPending
	}
	if phone == "" {
		phone = pendingPhone
	}

	_, err := c.client.Auth().SignIn(ctx, phone, code, pendingHash)
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		if password == "" {
			return ErrPasswordNeeded
		}
		if _, err := c.client.Auth().Password(ctx, password); err != nil {
			return fmt.Errorf("checking password: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}

	c.pendMu.Lock()
	c.pendingPhone, c.pendingHash = "", ""
	c.pendMu.Unlock()
	return nil
}
