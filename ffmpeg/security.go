package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// reservedFlags are owned by the composed job and cannot appear in operator
// supplied encoder arguments.
var reservedFlags = map[string]bool{
	"-i":              true,
	"-y":              true,
	"-n":              true,
	"-map":            true,
	"-filter_complex": true,
	"-lavfi":          true,
	"-vf":             true,
	"-af":             true,
	"-filter":         true,
	"-filter:v":       true,
	"-filter:a":       true,
	"-an":             true,
	"-vn":             true,
	"-shortest":       true,
	"-f":              true,
}

// SplitCommand securely splits a command string into a slice of arguments.
// It prevents shell injection by not using a shell.
func SplitCommand(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid command syntax: %w", err)
	}
	return args, nil
}

// SanitizeAndValidateArgs checks encoder arguments for shell metacharacters and
// for flags that would change the job's inputs, graph or output mapping.
func SanitizeAndValidateArgs(args []string) error {
	for _, arg := range args {
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return fmt.Errorf("disallowed character found in argument: %s", arg)
		}
		if reservedFlags[strings.ToLower(arg)] {
			return fmt.Errorf("reserved argument not allowed: %s", arg)
		}
	}
	return nil
}

// ParseVideoArgs splits and validates the configured video encoder arguments.
func ParseVideoArgs(command string) ([]string, error) {
	args, err := SplitCommand(command)
	if err != nil {
		return nil, err
	}
	if err := SanitizeAndValidateArgs(args); err != nil {
		return nil, fmt.Errorf("invalid video args: %w", err)
	}
	return args, nil
}
