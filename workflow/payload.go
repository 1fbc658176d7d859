package workflow

import (
	"encoding/xml"
	"fmt"
)

// PayloadNamespace is the XML namespace of the request document.
const PayloadNamespace = "http://schema.bpel.mgt.workflow.carbon.wso2.org"

type payloadDocument struct {
	XMLName    xml.Name           `xml:"ProcessRequest"`
	Namespace  string             `xml:"xmlns,attr"`
	UUID       string             `xml:"uuid"`
	EventType  string             `xml:"eventType,omitempty"`
	Parameters []payloadParameter `xml:"parameters>parameter"`
}

type payloadParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// BuildPayload renders req as an XML document. Parameters are emitted in
// sorted key order so identical requests produce identical bodies.
func BuildPayload(req *Request) ([]byte, error) {
	doc := payloadDocument{
		Namespace: PayloadNamespace,
		UUID:      req.ID(),
		EventType: req.EventType(),
	}

	for _, key := range req.Keys() {
		value, _ := req.Param(key)
		doc.Parameters = append(doc.Parameters, payloadParameter{
			Name:  key,
			Value: formatValue(value),
		})
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
