package opds

import (
	"bytes"
	"encoding/json"
	"net/url"
	"time"
)

// BearerToken is a Library Simplified bearer token document.
type BearerToken struct {
	AccessToken string
	ExpiresIn   time.Duration
	// Location is where the content is downloaded with the token.
	Location string
}

type jsonBearerToken struct {
	AccessToken *string `json:"access_token"`
	ExpiresIn   *int64  `json:"expires_in"`
	Location    *string `json:"location"`
}

// ParseBearerToken parses a bearer token document.
func ParseBearerToken(source string, data []byte) (BearerToken, error) {
	c := &collector{source: source}

	var jt jsonBearerToken
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&jt); err != nil {
		c.fail("invalid JSON: %s", err)
		return BearerToken{}, c.err()
	}

	var t BearerToken
	if jt.AccessToken == nil || *jt.AccessToken == "" {
		c.fail("missing access_token")
	} else {
		t.AccessToken = *jt.AccessToken
	}
	if jt.ExpiresIn == nil {
		c.fail("missing expires_in")
	} else {
		t.ExpiresIn = time.Duration(*jt.ExpiresIn) * time.Second
	}
	if jt.Location == nil {
		c.fail("missing location")
	} else if u, err := url.Parse(*jt.Location); err != nil || !u.IsAbs() {
		c.fail("invalid location %q", *jt.Location)
	} else {
		t.Location = *jt.Location
	}

	if err := c.err(); err != nil {
		return BearerToken{}, err
	}
	return t, nil
}
