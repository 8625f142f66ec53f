package workflow

import (
	"strconv"
	"strings"

	xerrors "RewardPilot/internal/errors"
)

// ParseRunCount parses the number of identities to process: a trimmed,
// base-10, strictly positive integer.
func ParseRunCount(input string) (int, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, xerrors.New(xerrors.CodeValidation, "run count is required")
	}
	count, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeValidation, err, "run count must be a whole number",
			xerrors.WithMetadata("input", trimmed))
	}
	if count <= 0 {
		return 0, xerrors.New(xerrors.CodeValidation, "run count must be greater than zero",
			xerrors.WithMetadata("input", trimmed))
	}
	return count, nil
}
