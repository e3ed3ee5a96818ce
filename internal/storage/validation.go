package storage

import (
	"net/mail"
	"strings"
)

const minLoginNameLength = 5

func isAlphanumeric(value string) bool {
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func validLoginName(value string) string {
	if len(value) < minLoginNameLength {
		return "must be at least 5 characters"
	}
	if !isAlphanumeric(value) {
		return "must contain only letters and digits"
	}
	return ""
}

func validEmail(value string) string {
	if strings.TrimSpace(value) == "" {
		return "is required"
	}
	if _, err := mail.ParseAddress(value); err != nil {
		return "must be a valid email address"
	}
	return ""
}

func validateCreateAccount(params CreateAccountParams) error {
	validation := newValidationError()
	if msg := validLoginName(params.LoginName); msg != "" {
		validation.add("loginName", msg)
	}
	if msg := validEmail(params.Email); msg != "" {
		validation.add("email", msg)
	}
	if params.Password == "" {
		validation.add("password", "is required")
	}
	if validation.hasErrors() {
		return validation
	}
	return nil
}

func validateAccountUpdate(update AccountUpdate) error {
	validation := newValidationError()
	if update.Email != nil {
		if msg := validEmail(*update.Email); msg != "" {
			validation.add("email", msg)
		}
	}
	if update.Password != nil && *update.Password == "" {
		validation.add("password", "must not be empty")
	}
	if validation.hasErrors() {
		return validation
	}
	return nil
}

func validateCreateMovie(params CreateMovieParams) error {
	validation := newValidationError()
	if strings.TrimSpace(params.Title) == "" {
		validation.add("title", "is required")
	}
	if strings.TrimSpace(params.Genre.Name) == "" {
		validation.add("genre.name", "is required")
	}
	if strings.TrimSpace(params.Director.Name) == "" {
		validation.add("director.name", "is required")
	}
	if validation.hasErrors() {
		return validation
	}
	return nil
}
