package availability

import "strings"

const (
	defaultServiceMinutes = 45
	defaultAddonMinutes   = 15
)

type durationRule struct {
	keywords []string
	minutes  int
}

// Ordered; the first matching rule wins.
var serviceRules = []durationRule{
	{keywords: []string{"royal", "premium"}, minutes: 60},
	{keywords: []string{"kids"}, minutes: 30},
	{keywords: []string{"home"}, minutes: 90},
}

var addonRules = []durationRule{
	{keywords: []string{"dye"}, minutes: 30},
	{keywords: []string{"texturizing"}, minutes: 45},
}

// EstimateDuration guesses how long a service plus add-ons keeps a chair busy
// from their free-text names. It is a best-effort fallback for records that
// carry no duration and must never replace a stored value.
func EstimateDuration(serviceName string, addonNames []string) int {
	total := match(serviceRules, serviceName, defaultServiceMinutes)
	for _, addon := range addonNames {
		total += match(addonRules, addon, defaultAddonMinutes)
	}
	return total
}

func match(rules []durationRule, name string, fallback int) int {
	lower := strings.ToLower(name)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.minutes
			}
		}
	}
	return fallback
}

// ResolveDuration returns the booking's stored duration when it has one,
// otherwise the estimate. With estimate off an unknown duration is zero.
func ResolveDuration(authoritative int, serviceName string, addonNames []string, estimate bool) int {
	if authoritative > 0 {
		return authoritative
	}
	if !estimate {
		return 0
	}
	return EstimateDuration(serviceName, addonNames)
}
