package notion

import (
	"strings"

	"golang.org/x/oauth2"

	"github.com/bryan-buckman/ncv/internal/model"
)

// OAuthConfig returns the OAuth 2.0 configuration for a public Notion
// integration. baseURL is the API root, e.g. DefaultBaseURL.
func OAuthConfig(baseURL, clientID, clientSecret, redirectURL string) *oauth2.Config {
	base := strings.TrimRight(baseURL, "/")
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/oauth/authorize",
			TokenURL:  base + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// AuthCodeOptions are the extra authorize parameters Notion expects.
var AuthCodeOptions = []oauth2.AuthCodeOption{
	oauth2.SetAuthURLParam("owner", "user"),
}

// TokenOwner extracts the authorizing user and workspace name from the extra
// fields of a Notion token response.
func TokenOwner(tok *oauth2.Token) (model.UserRef, string) {
	var user model.UserRef
	workspace, _ := tok.Extra("workspace_name").(string)
	owner, ok := tok.Extra("owner").(map[string]interface{})
	if !ok {
		return user, workspace
	}
	u, ok := owner["user"].(map[string]interface{})
	if !ok {
		return user, workspace
	}
	user.ID, _ = u["id"].(string)
	user.Name, _ = u["name"].(string)
	return user, workspace
}
