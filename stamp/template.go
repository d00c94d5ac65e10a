package stamp

import "regexp"

var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Expand substitutes the template variables in a stamp text. Unknown
// variables stay in place so a typo shows up on the stamp instead of
// vanishing silently.
func Expand(text string, vars Vars) string {
	return variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		switch variablePattern.FindStringSubmatch(match)[1] {
		case "Name":
			return vars.Name
		case "Reason":
			return vars.Reason
		case "Location":
			return vars.Location
		case "Date":
			if vars.Date.IsZero() {
				return ""
			}
			return vars.Date.Format("2006-01-02")
		}
		return match
	})
}
