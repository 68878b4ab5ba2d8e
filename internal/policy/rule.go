// Package policy manages the RBAC policy document: an ordered list of
// permission and group-binding rules persisted as line-oriented CSV.
package policy

import (
	"fmt"
	"strings"
)

// Rule kinds. A "p" rule grants a role a verb on a resource; a "g" rule
// binds a principal to a role.
const (
	KindPermission = "p"
	KindBinding    = "g"
)

// AdminRole is the baseline administrator role that must never be lost when
// the managed document is fully regenerated.
const (
	AdminRole      = "role:admin"
	AdminPrincipal = "admin"
)

// Rule is one line of the policy document.
type Rule struct {
	Kind string

	// Permission fields (Kind == "p")
	Role     string
	Resource string
	Verb     string
	Object   string

	// Binding fields (Kind == "g"): Principal bound to Role.
	Principal string
}

// String renders the rule in document form.
func (r Rule) String() string {
	switch r.Kind {
	case KindPermission:
		return fmt.Sprintf("p, %s, %s, %s, %s", r.Role, r.Resource, r.Verb, r.Object)
	case KindBinding:
		return fmt.Sprintf("g, %s, %s", r.Principal, r.Role)
	default:
		return ""
	}
}

// Equal reports structural equality, so formatting differences between two
// renderings of the same rule never produce duplicates.
func (r Rule) Equal(o Rule) bool {
	if r.Kind != o.Kind {
		return false
	}
	switch r.Kind {
	case KindPermission:
		return r.Role == o.Role && r.Resource == o.Resource && r.Verb == o.Verb && r.Object == o.Object
	case KindBinding:
		return r.Principal == o.Principal && r.Role == o.Role
	}
	return false
}

// ParseLine parses one document line. Blank lines and comments return a zero
// Rule with ok=false.
func ParseLine(line string) (Rule, bool, error) {
	s := strings.TrimSpace(line)
	if s == "" || strings.HasPrefix(s, "#") {
		return Rule{}, false, nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch parts[0] {
	case KindPermission:
		if len(parts) < 5 {
			return Rule{}, false, fmt.Errorf("permission rule needs 5 fields, got %d: %q", len(parts), line)
		}
		return Rule{Kind: KindPermission, Role: parts[1], Resource: parts[2], Verb: parts[3], Object: parts[4]}, true, nil
	case KindBinding:
		if len(parts) < 3 {
			return Rule{}, false, fmt.Errorf("binding rule needs 3 fields, got %d: %q", len(parts), line)
		}
		return Rule{Kind: KindBinding, Principal: parts[1], Role: parts[2]}, true, nil
	default:
		return Rule{}, false, fmt.Errorf("unrecognized rule prefix %q: %q", parts[0], line)
	}
}

// Parse parses a whole document, skipping blanks and comments.
func Parse(content string) ([]Rule, error) {
	var rules []Rule
	for i, line := range strings.Split(content, "\n") {
		r, ok, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if ok {
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// Serialize renders rules back to document form with a trailing newline.
func Serialize(rules []Rule) string {
	if len(rules) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range rules {
		b.WriteString(r.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// TenantRole returns the role name owned by a tenant user.
func TenantRole(username string) string {
	return "role:" + username
}

// TenantRules builds the rule set granting a tenant user full control of the
// database resources inside its namespace.
func TenantRules(username, namespace string) []Rule {
	role := TenantRole(username)
	perm := func(resource, verb, object string) Rule {
		return Rule{Kind: KindPermission, Role: role, Resource: resource, Verb: verb, Object: object}
	}
	scoped := namespace + "/*"
	return []Rule{
		perm("namespaces", "read", namespace),
		perm("database-engines", "read", scoped),
		perm("database-clusters", "read", scoped),
		perm("database-clusters", "update", scoped),
		perm("database-clusters", "create", scoped),
		perm("database-clusters", "delete", scoped),
		perm("database-cluster-credentials", "read", scoped),
		{Kind: KindBinding, Principal: username, Role: role},
	}
}

// TenantMatcher matches every rule owned by the tenant: permission rules on
// its role scoped to the namespace, and its role binding.
func TenantMatcher(username, namespace string) func(Rule) bool {
	role := TenantRole(username)
	return func(r Rule) bool {
		switch r.Kind {
		case KindPermission:
			return r.Role == role && (r.Object == namespace || strings.HasPrefix(r.Object, namespace+"/"))
		case KindBinding:
			return r.Principal == username && r.Role == role
		}
		return false
	}
}

// EnsureAdminBaseline prepends the minimal administrator permission and
// binding when absent. Applied on full document regeneration so a tenant
// operation can never lock out administrative access.
func EnsureAdminBaseline(rules []Rule) []Rule {
	adminPerm := Rule{Kind: KindPermission, Role: AdminRole, Resource: "*", Verb: "*", Object: "*"}
	adminBind := Rule{Kind: KindBinding, Principal: AdminPrincipal, Role: AdminRole}

	hasPerm, hasBind := false, false
	for _, r := range rules {
		if r.Equal(adminPerm) {
			hasPerm = true
		}
		if r.Equal(adminBind) {
			hasBind = true
		}
	}

	var head []Rule
	if !hasPerm {
		head = append(head, adminPerm)
	}
	if !hasBind {
		head = append(head, adminBind)
	}
	return append(head, rules...)
}

func containsRule(rules []Rule, r Rule) bool {
	for _, have := range rules {
		if have.Equal(r) {
			return true
		}
	}
	return false
}
