package types

import (
	"regexp"
	"strings"
)

// Regex compiled once at package initialization; validation runs on every
// join and every ingestion call.
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Closed set of language codes a session may be configured with. Keeping
// this enumerated (rather than accepting arbitrary strings) keeps the
// translation cache bounded and predictable.
var supportedLanguages = map[string]bool{
	"ar": true,
	"bn": true,
	"de": true,
	"en": true,
	"es": true,
	"fr": true,
	"gu": true,
	"hi": true,
	"ja": true,
	"kn": true,
	"ko": true,
	"ml": true,
	"mr": true,
	"pa": true,
	"pt": true,
	"ru": true,
	"ta": true,
	"te": true,
	"ur": true,
	"zh": true,
}

// IsValidID checks if an opaque identifier meets format requirements.
// The 1-50 character limit matches what the persistence layer indexes.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 50 {
		return false
	}
	return idRegex.MatchString(id)
}

// IsValidRole checks the participant role.
func IsValidRole(role string) bool {
	return role == RoleTeacher || role == RoleStudent
}

// IsSupportedLanguage checks a language code against the closed set of
// supported ISO 639-1 codes.
func IsSupportedLanguage(code string) bool {
	return supportedLanguages[code]
}

// IsValidStatus checks a session status value.
func IsValidStatus(status string) bool {
	switch status {
	case SessionStatusActive, SessionStatusPaused, SessionStatusEnded:
		return true
	default:
		return false
	}
}

// Validate ensures the session configuration meets all requirements.
// Validation at type level keeps the rules consistent across the HTTP
// control plane and direct programmatic session creation.
func (s *Session) Validate() error {
	if !IsValidID(s.ID) || !IsValidID(s.ClassID) || !IsValidID(s.SubjectID) {
		return ErrInvalidID
	}
	if !IsSupportedLanguage(s.SourceLanguage) {
		return ErrInvalidLanguage
	}
	if len(s.TargetLanguages) == 0 {
		return ErrEmptyTargetSet
	}
	// The source language may appear in the target set; clients commonly
	// list every viewable language. It is viewable without translation
	// either way.
	for _, code := range s.TargetLanguages {
		if !IsSupportedLanguage(code) {
			return ErrInvalidLanguage
		}
	}
	if !IsValidStatus(s.Status) {
		return ErrInvalidStatus
	}
	return nil
}

// ValidateUtterance checks an ingested utterance before it is appended to
// the transcript log. The 8KB cap bounds both broadcast payloads and the
// per-entry translation work.
func ValidateUtterance(text string, confidence float64) error {
	if len(strings.TrimSpace(text)) == 0 {
		return ErrEmptyUtterance
	}
	if len(text) > 8192 {
		return ErrUtteranceTooLarge
	}
	if confidence < 0.0 || confidence > 1.0 {
		return ErrInvalidConfidence
	}
	return nil
}

// Validate checks a client command read from a streaming connection.
func (c *Command) Validate() error {
	switch c.Type {
	case CommandSetLanguage:
		if !IsSupportedLanguage(c.Language) {
			return ErrInvalidLanguage
		}
	case CommandReplaySince:
		// SinceSequence of 0 means "from the beginning"; negative values
		// are client bugs.
		if c.SinceSequence < 0 {
			return ErrInvalidCommandType
		}
	default:
		return ErrInvalidCommandType
	}
	return nil
}
