package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"call-insights/internal/calls"
)

func TestParseTwilioInboundCall(t *testing.T) {
	body := strings.NewReader("CallSid=CA123&From=%2B15551234567&To=%2B15557654321&Direction=inbound&FromCity=Austin")
	r := httptest.NewRequest(http.MethodPost, "/api/calls/incoming", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := ParseTwilioInboundCall(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.CallSid != "CA123" {
		t.Fatalf("expected CallSid")
	}
	if form.From != "+15551234567" || form.To != "+15557654321" {
		t.Fatalf("unexpected from/to: %q %q", form.From, form.To)
	}
	m := form.Metadata()
	if m["fromCity"] != "Austin" || m["direction"] != "inbound" {
		t.Fatalf("unexpected metadata: %v", m)
	}
	if _, ok := m["callerName"]; ok {
		t.Fatalf("expected empty fields skipped")
	}
}

func TestParseTwilioRecording(t *testing.T) {
	body := strings.NewReader("CallSid=CA1&RecordingUrl=https%3A%2F%2Fapi.twilio.com%2Frec%2FRE1&RecordingDuration=17&RecordingSid=RE1")
	r := httptest.NewRequest(http.MethodPost, "/api/calls/recording-status", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := ParseTwilioRecording(r)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if form.RecordingURL != "https://api.twilio.com/rec/RE1" || form.RecordingDuration != 17 {
		t.Fatalf("unexpected form: %+v", form)
	}
}

type fakeRegistrar struct {
	inbound  []string
	attached []string
	err      error
}

func (f *fakeRegistrar) RegisterInbound(ctx context.Context, callSID, from, to string, metadata map[string]any) (calls.Call, error) {
	f.inbound = append(f.inbound, callSID)
	return calls.Call{ID: "c-" + callSID, CallSID: callSID}, f.err
}

func (f *fakeRegistrar) AttachRecording(ctx context.Context, callSID, from, to, recordingURL string, duration int) (calls.Call, error) {
	f.attached = append(f.attached, callSID+"|"+recordingURL)
	return calls.Call{ID: "c-" + callSID}, f.err
}

func newWebhookRouter(reg CallRegistrar) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := TwilioWebhookHandler{Calls: reg}
	r.POST("/api/calls/incoming", h.HandleInboundCall)
	r.POST("/api/calls/recording-status", h.HandleRecordingStatus)
	return r
}

func postForm(r http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleInboundCall_ReturnsVoicemailTwiML(t *testing.T) {
	reg := &fakeRegistrar{}
	r := newWebhookRouter(reg)

	w := postForm(r, "/api/calls/incoming", url.Values{"CallSid": {"CA1"}, "From": {"+1"}, "To": {"+2"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/xml") {
		t.Fatalf("unexpected content type %q", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), `<Record action="/api/calls/recording-status"`) {
		t.Fatalf("expected record verb: %s", w.Body.String())
	}
	if len(reg.inbound) != 1 || reg.inbound[0] != "CA1" {
		t.Fatalf("expected call registered, got %v", reg.inbound)
	}
}

func TestHandleInboundCall_StoreFailureStillAnswers(t *testing.T) {
	r := newWebhookRouter(&fakeRegistrar{err: errors.New("db down")})
	w := postForm(r, "/api/calls/incoming", url.Values{"CallSid": {"CA1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHandleInboundCall_MissingCallSid(t *testing.T) {
	r := newWebhookRouter(&fakeRegistrar{})
	w := postForm(r, "/api/calls/incoming", url.Values{"From": {"+1"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleRecordingStatus(t *testing.T) {
	reg := &fakeRegistrar{}
	r := newWebhookRouter(reg)

	w := postForm(r, "/api/calls/recording-status", url.Values{
		"CallSid": {"CA1"}, "RecordingUrl": {"https://api.twilio.com/rec/RE1"}, "RecordingDuration": {"9"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "<Hangup>") {
		t.Fatalf("expected hangup: %s", w.Body.String())
	}
	if len(reg.attached) != 1 || reg.attached[0] != "CA1|https://api.twilio.com/rec/RE1" {
		t.Fatalf("unexpected attach: %v", reg.attached)
	}

	w = postForm(r, "/api/calls/recording-status", url.Values{"CallSid": {"CA1"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without recording url, got %d", w.Code)
	}
}

func TestHandleRecordingStatus_StoreFailure(t *testing.T) {
	r := newWebhookRouter(&fakeRegistrar{err: errors.New("db down")})
	w := postForm(r, "/api/calls/recording-status", url.Values{"CallSid": {"CA1"}, "RecordingUrl": {"https://x/RE1"}})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
