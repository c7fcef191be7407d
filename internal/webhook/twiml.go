package webhook

import (
	"encoding/xml"
	"net/http"
)

const contentTypeXML = "application/xml"

type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Message *twimlMessage `xml:"Message,omitempty"`
}

type twimlMessage struct {
	Body string `xml:",chardata"`
}

// TwiML renders the provider reply; an empty reply yields <Response></Response>.
func TwiML(reply string) []byte {
	resp := twimlResponse{}
	if reply != "" {
		resp.Message = &twimlMessage{Body: reply}
	}
	b, err := xml.Marshal(resp)
	if err != nil {
		return []byte(xml.Header + "<Response></Response>")
	}
	return append([]byte(xml.Header), b...)
}

func writeTwiML(w http.ResponseWriter, reply string) {
	w.Header().Set("Content-Type", contentTypeXML)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(TwiML(reply))
}
