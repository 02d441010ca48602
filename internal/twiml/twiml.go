// Package twiml renders the provider's messaging response envelope.
package twiml

import "encoding/xml"

const ContentType = "text/xml; charset=UTF-8"

type response struct {
	XMLName xml.Name `xml:"Response"`
	Message *string  `xml:"Message,omitempty"`
}

// Render wraps text in a <Response><Message> envelope. Empty text yields an
// empty <Response/> so the provider sends nothing back.
func Render(text string) []byte {
	r := response{}
	if text != "" {
		r.Message = &text
	}
	b, err := xml.Marshal(r)
	if err != nil {
		// a string field cannot fail to marshal
		panic(err)
	}
	return append([]byte(xml.Header), b...)
}
