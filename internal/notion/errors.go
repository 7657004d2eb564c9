package notion

import (
	"errors"
	"fmt"
	"strings"
)

// SharePhrase is the fixed text the API appends when a node exists but has not
// been shared with the integration.
const SharePhrase = "Make sure the relevant pages and databases are shared with your integration"

const codeRestrictedResource = "restricted_resource"

// RemoteError is an error response from the Notion API.
type RemoteError struct {
	Op      string `json:"-"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notion %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("notion %s: %s (%d): %s", e.Op, e.Code, e.Status, e.Message)
}

// IsAccessDenied reports whether err means the integration may not read the
// node.
func IsAccessDenied(err error) bool {
	if err == nil {
		return false
	}
	var re *RemoteError
	if errors.As(err, &re) && re.Code == codeRestrictedResource {
		return true
	}
	return strings.Contains(err.Error(), SharePhrase)
}
