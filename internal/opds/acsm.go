package opds

import (
	"encoding/xml"
	"strings"
)

// ACSM is a parsed Adobe Content Server Message fulfillment token.
type ACSM struct {
	OperatorURI string
	Resource    string
	Title       string
	// ContentType is the type of the content the token fulfills.
	ContentType string
	// Data is the raw token, handed as is to the DRM connector.
	Data []byte
}

type xmlACSM struct {
	XMLName     xml.Name `xml:"http://ns.adobe.com/adept fulfillmentToken"`
	OperatorURL string   `xml:"http://ns.adobe.com/adept operatorURL"`
	Resource    struct {
		Resource string `xml:"http://ns.adobe.com/adept resource"`
		Metadata struct {
			Title  string `xml:"http://purl.org/dc/elements/1.1/ title"`
			Format string `xml:"http://purl.org/dc/elements/1.1/ format"`
		} `xml:"http://ns.adobe.com/adept metadata"`
	} `xml:"http://ns.adobe.com/adept resourceItemInfo"`
}

// ParseACSM parses an ACSM file.
func ParseACSM(source string, data []byte) (ACSM, error) {
	c := &collector{source: source}

	var xa xmlACSM
	if err := decodeXML(c, data, &xa); err != nil {
		return ACSM{}, err
	}

	a := ACSM{
		OperatorURI: strings.TrimSpace(xa.OperatorURL),
		Resource:    strings.TrimSpace(xa.Resource.Resource),
		Title:       strings.TrimSpace(xa.Resource.Metadata.Title),
		ContentType: strings.TrimSpace(xa.Resource.Metadata.Format),
		Data:        data,
	}
	if a.OperatorURI == "" {
		c.fail("missing operatorURL")
	}
	if a.ContentType == "" {
		c.fail("missing resource format")
	}
	if err := c.err(); err != nil {
		return ACSM{}, err
	}

	return a, nil
}
