package consol

import (
	"fmt"
	"strings"
)

// Render formats the report the way it is shown to accountants.
func (r MappingReport) Render() string {
	if r.OK() {
		return "Checks ok !"
	}
	var b strings.Builder
	b.WriteString("Invalid account mapping\n")
	for _, sub := range r.Subsidiaries {
		fmt.Fprintf(&b, "\n%s\n", sub.Company.Name)
		for _, acc := range sub.Accounts {
			fmt.Fprintf(&b, "  %s (%s) : %s\n", acc.Account.Code, acc.Account.Name, strings.Join(acc.Defects, ", "))
		}
	}
	return b.String()
}
