package domain

import "strings"

// Message template variables. Unknown {{...}} sequences are left verbatim so
// a cosmetic typo never blocks a send; missing values for recognized
// variables render as the empty string.
const (
	VarName         = "{{name}}"
	VarFirstName    = "{{first_name}}"
	VarPeriod       = "{{period}}"
	VarOrganization = "{{organization}}"
)

// TemplateContext carries the values substituted into a message template.
type TemplateContext struct {
	FullName     string
	PeriodLabel  string
	Organization string
}

// RenderTemplate substitutes the recognized variables of tmpl. It cannot
// fail; validation at submission time only confirms the result is non-empty.
func RenderTemplate(tmpl string, ctx TemplateContext) string {
	r := strings.NewReplacer(
		VarName, ctx.FullName,
		VarFirstName, FirstName(ctx.FullName),
		VarPeriod, ctx.PeriodLabel,
		VarOrganization, ctx.Organization,
	)
	return r.Replace(tmpl)
}

// FirstName returns the first whitespace-delimited token of a full name.
func FirstName(fullName string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// PeriodLabel turns a filename period tag into its human-readable form,
// e.g. "junho_2025" -> "junho 2025".
func PeriodLabel(tag string) string {
	return strings.ReplaceAll(tag, "_", " ")
}
