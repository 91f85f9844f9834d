package app

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed request data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials indicates a failed admin login.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrProductNotFound covers unknown or unavailable products.
	ErrProductNotFound = errors.New("product not found")
	// ErrPurchaseNotFound covers unknown purchase identifiers.
	ErrPurchaseNotFound = errors.New("purchase not found")
	// ErrMessageNotFound covers unknown contact messages.
	ErrMessageNotFound = errors.New("message not found")
	// ErrSubscriberNotFound indicates no active subscription for an email.
	ErrSubscriberNotFound = errors.New("subscriber not found")
	// ErrAlreadySubscribed indicates the email already has an active subscription.
	ErrAlreadySubscribed = errors.New("email already subscribed")
	// ErrInvalidProof indicates rejected payment confirmation evidence.
	ErrInvalidProof = errors.New("payment confirmation rejected")
	// ErrDownloadNotFound covers unknown tokens and pending purchases alike.
	ErrDownloadNotFound = errors.New("download link not found or expired")
	// ErrDownloadExpired indicates a valid token past its expiry.
	ErrDownloadExpired = errors.New("download link expired")
	// ErrNotPDF indicates an upload that is not a readable PDF.
	ErrNotPDF = errors.New("uploaded file is not a valid pdf")
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
