package telephony

import (
	"bytes"
	"encoding/xml"
	"strconv"
)

// TwiML is a minimal Twilio Markup Language response builder.
// Only the verbs the voicemail flow uses are modeled.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type twimlRecord struct {
	XMLName    xml.Name `xml:"Record"`
	Action     string   `xml:"action,attr,omitempty"`
	MaxLength  int      `xml:"maxLength,attr,omitempty"`
	Timeout    int      `xml:"timeout,attr,omitempty"`
	PlayBeep   string   `xml:"playBeep,attr,omitempty"`
	Transcribe string   `xml:"transcribe,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// VoicemailPrompt configures the greeting, recording and goodbye of an inbound call.
type VoicemailPrompt struct {
	Greeting       string
	Goodbye        string
	Voice          string
	Language       string
	RecordAction   string
	MaxLengthSec   int
	SilenceTimeout int
}

// DefaultVoicemailPrompt is the prompt played to every inbound caller.
var DefaultVoicemailPrompt = VoicemailPrompt{
	Greeting:       "Thank you for calling. Please leave a message after the tone.",
	Goodbye:        "Thank you for your message. Goodbye.",
	Voice:          "alice",
	Language:       "en-US",
	RecordAction:   "/api/calls/recording-status",
	MaxLengthSec:   120,
	SilenceTimeout: 5,
}

// RenderVoicemail greets the caller, records one message and says goodbye.
// Transcription is left to our pipeline, so Twilio's own transcription stays off.
func RenderVoicemail(p VoicemailPrompt) (string, error) {
	r := twimlResponse{Verbs: []any{
		twimlSay{Voice: p.Voice, Language: p.Language, Text: p.Greeting},
		twimlRecord{
			Action:     p.RecordAction,
			MaxLength:  p.MaxLengthSec,
			Timeout:    p.SilenceTimeout,
			PlayBeep:   strconv.FormatBool(true),
			Transcribe: strconv.FormatBool(false),
		},
		twimlSay{Voice: p.Voice, Language: p.Language, Text: p.Goodbye},
	}}
	return encode(r)
}

func RenderHangup() (string, error) {
	return encode(twimlResponse{Verbs: []any{twimlHangup{}}})
}

func encode(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
