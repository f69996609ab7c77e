package telephony

import (
	"net/http"
	"strconv"
	"strings"
)

// TwilioInboundForm captures the subset of voice webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml
type TwilioInboundForm struct {
	CallSid       string
	AccountSid    string
	From          string
	To            string
	Direction     string
	CallStatus    string
	CallerName    string
	FromCity      string
	FromState     string
	FromCountry   string
	ToCountry     string
	ForwardedFrom string
}

func ParseTwilioInboundCall(r *http.Request) (TwilioInboundForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioInboundForm{}, err
	}
	f := TwilioInboundForm{
		CallSid:       strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid:    r.PostFormValue("AccountSid"),
		From:          normalizePhone(r.PostFormValue("From")),
		To:            normalizePhone(r.PostFormValue("To")),
		Direction:     r.PostFormValue("Direction"),
		CallStatus:    r.PostFormValue("CallStatus"),
		CallerName:    r.PostFormValue("CallerName"),
		FromCity:      r.PostFormValue("FromCity"),
		FromState:     r.PostFormValue("FromState"),
		FromCountry:   r.PostFormValue("FromCountry"),
		ToCountry:     r.PostFormValue("ToCountry"),
		ForwardedFrom: normalizePhone(r.PostFormValue("ForwardedFrom")),
	}
	return f, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}

// Metadata returns the non-empty provider fields worth keeping on the call.
func (f TwilioInboundForm) Metadata() map[string]any {
	m := map[string]any{"provider": "twilio"}
	add := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	add("direction", f.Direction)
	add("callerName", f.CallerName)
	add("fromCity", f.FromCity)
	add("fromState", f.FromState)
	add("fromCountry", f.FromCountry)
	add("toCountry", f.ToCountry)
	add("forwardedFrom", f.ForwardedFrom)
	return m
}

// TwilioRecordingForm is the payload of the <Record action> callback.
type TwilioRecordingForm struct {
	CallSid         string
	AccountSid      string
	From            string
	To              string
	RecordingSid    string
	RecordingURL    string
	RecordingStatus string
	// RecordingDuration is in seconds; 0 when absent or unparseable.
	RecordingDuration int
}

func ParseTwilioRecording(r *http.Request) (TwilioRecordingForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioRecordingForm{}, err
	}
	dur, _ := strconv.Atoi(strings.TrimSpace(r.PostFormValue("RecordingDuration")))
	return TwilioRecordingForm{
		CallSid:           strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid:        r.PostFormValue("AccountSid"),
		From:              normalizePhone(r.PostFormValue("From")),
		To:                normalizePhone(r.PostFormValue("To")),
		RecordingSid:      r.PostFormValue("RecordingSid"),
		RecordingURL:      strings.TrimSpace(r.PostFormValue("RecordingUrl")),
		RecordingStatus:   r.PostFormValue("RecordingStatus"),
		RecordingDuration: dur,
	}, nil
}
