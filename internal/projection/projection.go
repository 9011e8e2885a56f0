// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package projection derives role-appropriate views over the shared lead and
// employee collections. Administrators see everything; restricted users see
// only what is assigned to them.
package projection

import (
	"strings"

	"github.com/fieldcrm/leadsync/internal/models"
)

// ProjectLeads returns the leads visible to identity. The input is returned
// unchanged for administrators.
func ProjectLeads(leads []models.Lead, identity models.Identity) []models.Lead {
	if identity.IsAdmin() {
		return leads
	}

	self := normalizeID(identity.ID)
	out := make([]models.Lead, 0, len(leads))
	if self == "" {
		return out
	}
	for _, l := range leads {
		if AssigneeID(l) == self {
			out = append(out, l)
		}
	}
	return out
}

// AssigneeID is the normalized identifier of the lead's assignee, or "" when
// unassigned. Nested assignment objects are resolved during decoding: direct
// identifier first, then the nested account identifier.
func AssigneeID(l models.Lead) string {
	return normalizeID(l.AssignedTo.ID)
}

// ProjectEmployeesForAssignment returns the employee-picker entries for
// identity. Administrators, and anyone editing an existing lead, get every
// active or administrator employee. A restricted user creating a lead may
// only assign it to themselves.
func ProjectEmployeesForAssignment(employees []models.Employee, identity models.Identity, isEditing bool) []models.Employee {
	if identity.IsAdmin() || isEditing {
		out := make([]models.Employee, 0, len(employees))
		for _, e := range employees {
			if e.Active || e.IsAdmin() {
				out = append(out, e)
			}
		}
		return out
	}

	self := normalizeID(identity.ID)
	for _, e := range employees {
		if normalizeID(e.ID) == self && self != "" {
			return []models.Employee{e}
		}
	}

	// Cold cache: the employee list may not contain us yet.
	return []models.Employee{identity.AsEmployee()}
}

// normalizeID compares identifiers as trimmed, case-sensitive strings.
func normalizeID(id string) string {
	return strings.TrimSpace(id)
}
