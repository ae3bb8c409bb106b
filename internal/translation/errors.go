package translation

import "errors"

var (
	ErrTranslationUnavailable = errors.New("translation unavailable")
	ErrEmptyText              = errors.New("text cannot be empty")
	ErrSameLanguage           = errors.New("source and target languages are identical")
)
