package telephony

import (
	"strings"
	"testing"
)

func TestRenderVoicemail(t *testing.T) {
	xml, err := RenderVoicemail(DefaultVoicemailPrompt)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{
		`<Say voice="alice" language="en-US">Thank you for calling. Please leave a message after the tone.</Say>`,
		`maxLength="120"`,
		`timeout="5"`,
		`playBeep="true"`,
		`transcribe="false"`,
		`Thank you for your message. Goodbye.`,
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("expected %q in xml: %s", want, xml)
		}
	}
	if strings.Index(xml, "<Record") > strings.LastIndex(xml, "<Say") {
		t.Fatalf("expected record between the two prompts: %s", xml)
	}
}

func TestRenderHangup(t *testing.T) {
	xml, err := RenderHangup()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Hangup></Hangup>") {
		t.Fatalf("unexpected xml: %s", xml)
	}
}
