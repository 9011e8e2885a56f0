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

package remote

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Credentials describes how requests identify the session to the backend.
// Client credentials take precedence over a static session token.
type Credentials struct {
	SessionToken string

	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// NewHTTPClient returns an http.Client that attaches credentials to every
// request. With no credentials configured it returns a plain client.
func NewHTTPClient(ctx context.Context, creds Credentials) *http.Client {
	switch {
	case creds.ClientID != "" && creds.ClientSecret != "" && creds.TokenURL != "":
		cc := &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			Scopes:       creds.Scopes,
		}
		return cc.Client(ctx)
	case creds.SessionToken != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: creds.SessionToken,
			TokenType:   "Bearer",
		})
		return oauth2.NewClient(ctx, ts)
	}
	return &http.Client{}
}
