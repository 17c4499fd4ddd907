package datetimehelper

import (
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/helperd/helperd/internal/modules"
)

var naturalLanguageParser = newNaturalLanguageParser()

func newNaturalLanguageParser() *when.Parser {
	w := when.New(nil)
	w.Add(common.All...)
	w.Add(en.All...)
	return w
}

// parseNaturalLanguage resolves a human-entered phrase ("tomorrow at 9am",
// "in 3 days", "next monday") relative to base.
func parseNaturalLanguage(text string, base time.Time) (time.Time, error) {
	result, err := naturalLanguageParser.Parse(text, base)
	if err != nil {
		return time.Time{}, modules.Wrap(modules.KindInvalidParams, err)
	}
	if result == nil {
		return time.Time{}, modules.NewError(modules.KindInvalidParams, "%q does not resolve to a date/time", text)
	}
	return result.Time, nil
}
