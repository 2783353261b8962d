/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stretchr/testify/require"
)

// RequireNoErrorInChannel asserts that a buffered channel holds no error, without blocking.
// It is used to check the fatal error channel of service units.
func RequireNoErrorInChannel(t require.TestingT, c <-chan error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var err error
	select {
	case err = <-c:
	default:
	}
	require.NoError(t, err, msgAndArgs...)
}

// RequireErrorIsAny asserts that err matches at least one of targets in terms of errors.Is.
// It is handy when several outcomes are valid, e.g. when two deadlines race.
func RequireErrorIsAny(t require.TestingT, err error, targets []error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	wanted := make([]string, 0, len(targets))
	for _, target := range targets {
		if errors.Is(err, target) {
			return
		}
		wanted = append(wanted, strconv.Quote(target.Error()))
	}
	require.FailNow(t, fmt.Sprintf("Error matches none of the targets:\n"+
		"targets:  [%s]\n"+
		"chain:    %s", strings.Join(wanted, ", "), describeErrorChain(err)), msgAndArgs...)
}

func describeErrorChain(err error) string {
	if err == nil {
		return "<nil>"
	}
	var links []string
	for ; err != nil; err = errors.Unwrap(err) {
		links = append(links, strconv.Quote(err.Error()))
	}
	return strings.Join(links, " -> ")
}
