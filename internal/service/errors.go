package service

import (
	"errors"
	"fmt"
)

// ErrCredentialRefresh matches every *CredentialRefreshError via errors.Is
var ErrCredentialRefresh = errors.New("credential refresh failed")

// CredentialRefreshError means the account cannot be scanned until its owner reconnects it
type CredentialRefreshError struct {
	AccountID      string
	MailboxAddress string
	Err            error
}

func (e *CredentialRefreshError) Error() string {
	return fmt.Sprintf("credential refresh failed for account %s (%s): %v", e.AccountID, e.MailboxAddress, e.Err)
}

func (e *CredentialRefreshError) Unwrap() error {
	return e.Err
}

func (e *CredentialRefreshError) Is(target error) bool {
	return target == ErrCredentialRefresh
}
