package session

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/matheus3301/wpplus/internal/config"
)

const DefaultSessionName = "main"

// ErrInvalidName is wrapped by every profile name rejection.
var ErrInvalidName = errors.New("invalid profile name")

var nameRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateName checks that a profile name is safe to use as a directory
// name. Names start with a letter or digit so they never look like flags.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%w %q: use 1-64 of a-z, 0-9, '_' and '-', starting with a letter or digit", ErrInvalidName, name)
	}
	return nil
}

// ResolveName picks the active profile, first non-empty of flagOverride,
// cfg.DefaultSession (config.toml or WPP_SESSION) and "main", and
// validates it.
func ResolveName(flagOverride string, cfg *config.Config) (string, error) {
	name := DefaultSessionName
	switch {
	case flagOverride != "":
		name = flagOverride
	case cfg != nil && cfg.DefaultSession != "":
		name = cfg.DefaultSession
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}
