package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDateFlag accepts RFC3339, YYYY-MM-DD or natural phrases such as
// "tomorrow" or "next friday", relative to now. Empty input stays empty.
func parseDateFlag(flag, in string, now time.Time) (string, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		return "", nil
	}
	if _, err := time.Parse(time.RFC3339, in); err == nil {
		return in, nil
	}
	if _, err := time.Parse("2006-01-02", in); err == nil {
		return in, nil
	}
	r, err := dateParser.Parse(in, now)
	if err != nil {
		return "", fmt.Errorf("--%s: %w", flag, err)
	}
	if r == nil {
		return "", fmt.Errorf("--%s: unrecognized date %q", flag, in)
	}
	return r.Time.UTC().Format(time.RFC3339), nil
}
