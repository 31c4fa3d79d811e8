package policy

// GetBuiltinPolicies returns all built-in guard policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		protectedDomainPolicy(),
		bulkDeletePolicy(),
		displayNamePolicy(),
		defaultObjectPolicy(),
	}
}

// protectedDomainPolicy blocks deletion of domain containers. Deleting a
// domain cascades to everything scoped beneath it on the remote side.
func protectedDomainPolicy() Policy {
	return Policy{
		Name:        "protected-domain",
		Description: "Blocks deletion of Domain containers",
		Severity:    SeverityCritical,
		Enabled:     true,
		Source:      "builtin",
		Rego: `package policydelta.guard.domains

import rego.v1

deny contains violation if {
	some obj in input.objects
	obj.action == "delete"
	obj.object_type == "Domain"
	violation := {
		"message": sprintf("Delta would delete domain %s", [obj.key]),
		"severity": "critical",
		"object_key": obj.key,
	}
}
`,
	}
}

// bulkDeletePolicy flags deltas whose delete count suggests a bad export or
// a wrong domain scope rather than an intended change.
func bulkDeletePolicy() Policy {
	return Policy{
		Name:        "bulk-delete-limit",
		Description: "Blocks deltas deleting more than 10 objects at once",
		Severity:    SeverityError,
		Enabled:     true,
		Source:      "builtin",
		Rego: `package policydelta.guard.bulk

import rego.v1

deny contains violation if {
	input.summary.deletes > 10
	violation := {
		"message": sprintf("Delta deletes %d objects, above the bulk limit of 10", [input.summary.deletes]),
		"severity": "error",
	}
}
`,
	}
}

// displayNamePolicy warns about created objects missing a display name.
func displayNamePolicy() Policy {
	return Policy{
		Name:        "display-name",
		Description: "Warns when created objects carry no display_name",
		Severity:    SeverityWarning,
		Enabled:     true,
		Source:      "builtin",
		Rego: `package policydelta.guard.naming

import rego.v1

deny contains violation if {
	some obj in input.objects
	obj.action == "create"
	not obj.object.display_name
	violation := {
		"message": sprintf("Created object %s has no display_name", [obj.key]),
		"severity": "warning",
		"object_key": obj.key,
	}
}
`,
	}
}

// defaultObjectPolicy blocks mutation of platform default objects that
// slipped past filtering.
func defaultObjectPolicy() Policy {
	return Policy{
		Name:        "default-objects",
		Description: "Blocks updates to objects whose id starts with 'default'",
		Severity:    SeverityError,
		Enabled:     true,
		Source:      "builtin",
		Rego: `package policydelta.guard.defaults

import rego.v1

deny contains violation if {
	some obj in input.objects
	obj.action == "update"
	startswith(obj.object.id, "default")
	violation := {
		"message": sprintf("Delta would modify platform default object %s", [obj.key]),
		"severity": "error",
		"object_key": obj.key,
	}
}
`,
	}
}
