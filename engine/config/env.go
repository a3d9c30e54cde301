package config

import (
	"errors"
	"os"
	"regexp"
	"strings"
)

// envRefRegex matches ${EXPR} and its escaped form $${EXPR}
var envRefRegex = regexp.MustCompile(`\$?\$\{([^}]*)\}`)

// SubstituteEnvVars expands environment variable references in config content:
//   - ${VAR} is replaced with the value of VAR (empty when unset)
//   - ${VAR:-default} uses default when VAR is empty or unset
//   - ${VAR:?message} fails with message when VAR is empty or unset
//   - $${VAR} is left as the literal ${VAR}
//
// Every reference is expanded even when one fails; the returned error joins
// all failures.
func SubstituteEnvVars(content string) (string, error) {
	var errs []error

	out := envRefRegex.ReplaceAllStringFunc(content, func(ref string) string {
		if strings.HasPrefix(ref, "$$") {
			return ref[1:]
		}
		value, err := expand(ref[2 : len(ref)-1])
		if err != nil {
			errs = append(errs, err)
		}
		return value
	})

	return out, errors.Join(errs...)
}

func expand(expr string) (string, error) {
	if name, message, ok := strings.Cut(expr, ":?"); ok {
		name = strings.TrimSpace(name)
		if value := os.Getenv(name); value != "" {
			return value, nil
		}
		message = strings.TrimSpace(message)
		if message == "" {
			message = "required environment variable " + name + " is not set"
		}
		return "", errors.New(message)
	}

	if name, fallback, ok := strings.Cut(expr, ":-"); ok {
		if value := os.Getenv(strings.TrimSpace(name)); value != "" {
			return value, nil
		}
		return strings.TrimSpace(fallback), nil
	}

	return os.Getenv(expr), nil
}
