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

package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the two-valued access level of an employee or identity.
type Role int

const (
	RoleRestricted Role = iota
	RoleAdmin
)

func (r Role) String() string {
	if r == RoleAdmin {
		return "admin"
	}
	return "restricted"
}

// ParseRole accepts every encoding the backend uses for the admin flag:
// booleans, numeric codes (1 = admin) and strings.
func ParseRole(raw json.RawMessage) Role {
	text, ok := rawText(raw)
	if !ok {
		return RoleRestricted
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true", "1", "admin", "administrator":
		return RoleAdmin
	}
	return RoleRestricted
}

// MarshalJSON encodes the role as the boolean admin flag.
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r == RoleAdmin)
}

// UnmarshalJSON accepts any encoding ParseRole does.
func (r *Role) UnmarshalJSON(data []byte) error {
	*r = ParseRole(data)
	return nil
}

// Employee is a CRM user that leads can be assigned to.
type Employee struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Active    bool   `json:"active"`
	Role      Role   `json:"isAdmin"`
}

// IsAdmin reports whether the employee has the administrator role.
func (e Employee) IsAdmin() bool { return e.Role == RoleAdmin }

// DisplayName joins the name parts, falling back to the email.
func (e Employee) DisplayName() string {
	name := strings.TrimSpace(e.FirstName + " " + e.LastName)
	if name == "" {
		return e.Email
	}
	return name
}

// UnmarshalJSON tolerates the aliases different backend versions use.
func (e *Employee) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode employee: %w", err)
	}
	if obj == nil {
		return fmt.Errorf("decode employee: not an object")
	}

	*e = Employee{Active: true}
	e.ID = objectID(obj)
	e.FirstName = textField(obj, "firstName")
	e.LastName = textField(obj, "lastName")
	e.Email = textField(obj, "email")

	for _, key := range []string{"active", "isActive"} {
		if v, ok := obj[key]; ok {
			text, _ := rawText(v)
			e.Active = !strings.EqualFold(text, "false") && text != "0"
			break
		}
	}

	for _, key := range []string{"isAdmin", "admin", "role"} {
		if v, ok := obj[key]; ok {
			e.Role = ParseRole(v)
			break
		}
	}

	return nil
}
