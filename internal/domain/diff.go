package domain

import "sort"

// trackedFields is the fixed emission order for diff results. The sequence
// mirrors the matter schema, so diff lists stay stable and comparable across
// calls regardless of which field was mutated first.
var trackedFields = []string{
	"display_number",
	"title",
	"description",
	"status",
	"practice_area",
	"location",
	"responsible_attorney",
	"assignee_ids",
	"client_id",
	"open_date",
	"close_date",
	"pending_date",
	"billing_method",
	"billable",
	"custom_fields",
}

// assigneeField is the one multi-valued relationship field tracked. Its
// values compare as a set: member reordering alone is never a change.
const assigneeField = "assignee_ids"

// TrackedFields returns the schema-defined field sequence diffs are emitted in.
func TrackedFields() []string {
	out := make([]string, len(trackedFields))
	copy(out, trackedFields)
	return out
}

// ChangedFields compares two snapshots field by field and returns the names
// of the tracked fields that differ, in the fixed schema order. Pure and
// deterministic; it never fails for well-formed snapshots. A composite value
// that cannot be canonicalized counts as changed.
func ChangedFields(before, after Snapshot) []string {
	changed := make([]string, 0, 4)
	for _, field := range trackedFields {
		if !fieldsEquivalent(field, before[field], after[field]) {
			changed = append(changed, field)
		}
	}
	return changed
}

// fieldsEquivalent applies the equivalence rules in priority order: unset and
// empty are interchangeable, the assignee field compares as a set, everything
// else compares by canonical structural form.
func fieldsEquivalent(field string, before, after any) bool {
	beforeEmpty := isEmptyValue(before)
	afterEmpty := isEmptyValue(after)
	if beforeEmpty || afterEmpty {
		return beforeEmpty && afterEmpty
	}

	if field == assigneeField {
		before = sortedMembers(before)
		after = sortedMembers(after)
	}

	beforeCanonical, beforeErr := canonicalValue(before)
	afterCanonical, afterErr := canonicalValue(after)
	if beforeErr != nil || afterErr != nil {
		// Fail safe: report a change rather than silently dropping one.
		return false
	}

	return beforeCanonical == afterCanonical
}

// isEmptyValue reports whether a value counts as unset: nil (which also
// covers a missing key) and the empty string are mutually equivalent.
func isEmptyValue(value any) bool {
	if value == nil {
		return true
	}
	str, ok := value.(string)
	return ok && str == ""
}

// sortedMembers normalizes a multi-valued field to a slice ordered by each
// member's canonical form. Non-slice values pass through untouched.
func sortedMembers(value any) any {
	items, ok := value.([]any)
	if !ok {
		return value
	}

	type member struct {
		key  string
		item any
	}
	members := make([]member, len(items))
	for idx, item := range items {
		key, err := canonicalValue(item)
		if err != nil {
			return value
		}
		members[idx] = member{key: key, item: item}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].key < members[j].key })

	sorted := make([]any, len(members))
	for idx, m := range members {
		sorted[idx] = m.item
	}
	return sorted
}
