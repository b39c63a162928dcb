package app

import "strings"

// IsArgumentAccepted reports whether arg, lower-cased, is one of accepted.
func IsArgumentAccepted(accepted []string, arg string) bool {
	lowerArg := strings.ToLower(arg)
	for _, acceptedArg := range accepted {
		if lowerArg == acceptedArg {
			return true
		}
	}
	return false
}
