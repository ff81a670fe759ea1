package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildOptOutURL assembles the opt-out link carried in every compliance
// footer. The receiving endpoint verifies the token and records the
// suppression; it is external to this engine.
func BuildOptOutURL(baseURL, email, campaignID, token string) string {
	params := url.Values{}
	params.Set("email", email)
	params.Set("campaign", campaignID)
	params.Set("token", token)
	return fmt.Sprintf("%s?%s", strings.TrimRight(baseURL, "/"), params.Encode())
}
