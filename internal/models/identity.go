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

import "encoding/json"

// Identity is the signed-in user's own profile. It is established by the
// authentication layer and only read here.
type Identity struct {
	Employee
}

// IsAdmin reports whether the identity may see every lead.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// AsEmployee returns the identity as an employee-picker entry.
func (i Identity) AsEmployee() Employee {
	e := i.Employee
	e.Active = true
	return e
}

// UnmarshalJSON decodes the stored profile with the same tolerance as Employee.
func (i *Identity) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &i.Employee)
}
