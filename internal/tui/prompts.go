package tui

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/coffeeclub/internal/account"
	"github.com/felixgeelhaar/coffeeclub/internal/auth"
)

// BirthDateLayout is the accepted birth date format.
const BirthDateLayout = "2006-01-02"

// ErrAborted is returned when the user leaves a prompt with ctrl+c. It
// matches context.Canceled so callers exit as interrupted.
var ErrAborted = fmt.Errorf("prompt aborted: %w", context.Canceled)

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// ShouldPrompt reports whether prompts may be shown. They are disabled in
// CI and when stdin is not a terminal.
func ShouldPrompt() bool {
	for _, envVar := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE"} {
		if os.Getenv(envVar) != "" {
			return false
		}
	}
	return IsInteractive()
}

func validatePhone(s string) error {
	_, err := auth.NormalizePhone(s)
	return err
}

func validateCode(s string) error {
	_, err := auth.ValidateCode(s)
	return err
}

// ValidateBirthDate accepts blank or YYYY-MM-DD.
func ValidateBirthDate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := time.Parse(BirthDateLayout, s); err != nil {
		return fmt.Errorf("use the format YYYY-MM-DD")
	}
	return nil
}

// ValidateEmail accepts blank or a single address.
func ValidateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return fmt.Errorf("enter a valid email address")
	}
	return nil
}

func run(ctx context.Context, form *huh.Form) error {
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// PhoneForm asks for a phone number and stores it in value.
func PhoneForm(value *string) *huh.Form {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Phone number").
			Description("We will text you a 6-digit code.").
			Placeholder("5551234567").
			Validate(validatePhone).
			Value(value),
	))
}

// CodeForm asks for the 6-digit verification code.
func CodeForm(value *string) *huh.Form {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Verification code").
			CharLimit(6).
			Validate(validateCode).
			Value(value),
	))
}

// PromptPhone runs PhoneForm and returns the digits.
func PromptPhone(ctx context.Context) (string, error) {
	var phone string
	if err := run(ctx, PhoneForm(&phone)); err != nil {
		return "", err
	}
	return auth.NormalizePhone(phone)
}

// PromptCode runs CodeForm.
func PromptCode(ctx context.Context) (string, error) {
	var code string
	if err := run(ctx, CodeForm(&code)); err != nil {
		return "", err
	}
	return auth.ValidateCode(code)
}

// ProfileFields backs the profile form. Blank fields clear the value on
// the server.
type ProfileFields struct {
	FirstName string
	LastName  string
	BirthDate string
	Email     string
}

// ProfileFieldsFrom seeds the form with the current profile.
func ProfileFieldsFrom(p *account.Profile) ProfileFields {
	if p == nil {
		return ProfileFields{}
	}
	str := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return ProfileFields{
		FirstName: str(p.FirstName),
		LastName:  str(p.LastName),
		BirthDate: str(p.BirthDate),
		Email:     str(p.Email),
	}
}

// Update converts the fields to the PUT body.
func (f ProfileFields) Update() account.CustomerUpdate {
	return account.CustomerUpdate{
		FirstName: account.Optional(f.FirstName),
		LastName:  account.Optional(f.LastName),
		BirthDate: account.Optional(f.BirthDate),
		Email:     account.Optional(f.Email),
	}
}

// ProfileForm edits fields in place.
func ProfileForm(fields *ProfileFields) *huh.Form {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("First name").Value(&fields.FirstName),
		huh.NewInput().Title("Last name").Value(&fields.LastName),
		huh.NewInput().
			Title("Birth date").
			Placeholder(BirthDateLayout).
			Validate(ValidateBirthDate).
			Value(&fields.BirthDate),
		huh.NewInput().
			Title("Email").
			Validate(ValidateEmail).
			Value(&fields.Email),
	))
}

// PromptProfile runs ProfileForm seeded from current.
func PromptProfile(ctx context.Context, current *account.Profile) (account.CustomerUpdate, error) {
	fields := ProfileFieldsFrom(current)
	if err := run(ctx, ProfileForm(&fields)); err != nil {
		return account.CustomerUpdate{}, err
	}
	return fields.Update(), nil
}

func notBlank(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", strings.ToLower(name))
		}
		return nil
	}
}

// PromptText asks for one required line.
func PromptText(ctx context.Context, title, placeholder string) (string, error) {
	var value string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(title).
			Placeholder(placeholder).
			Validate(notBlank(title)).
			Value(&value),
	))
	if err := run(ctx, form); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// PromptLongText asks for required multi-line text.
func PromptLongText(ctx context.Context, title, placeholder string) (string, error) {
	var value string
	form := huh.NewForm(huh.NewGroup(
		huh.NewText().
			Title(title).
			Placeholder(placeholder).
			Lines(5).
			Validate(notBlank(title)).
			Value(&value),
	))
	if err := run(ctx, form); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// Confirm asks a yes/no question.
func Confirm(ctx context.Context, message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(message).Value(&confirmed),
	))
	if err := run(ctx, form); err != nil {
		return false, err
	}
	return confirmed, nil
}
