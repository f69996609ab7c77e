package calls

import "testing"

func TestCallStatus_Valid(t *testing.T) {
	for _, s := range AllStatuses {
		if !s.Valid() {
			t.Fatalf("expected %q valid", s)
		}
	}
	if CallStatus("queued").Valid() {
		t.Fatalf("expected unknown status invalid")
	}
}

func TestCallStatus_TerminalAndProcessable(t *testing.T) {
	cases := []struct {
		s           CallStatus
		terminal    bool
		processable bool
	}{
		{StatusPendingTranscription, false, true},
		{StatusTranscriptionInProgress, false, false},
		{StatusTranscriptionComplete, true, false},
		{StatusTranscriptionFailed, true, true},
		{StatusTranscriptionDeleted, true, true},
	}
	for _, tc := range cases {
		if got := tc.s.Terminal(); got != tc.terminal {
			t.Fatalf("%s: Terminal()=%v", tc.s, got)
		}
		if got := tc.s.Processable(); got != tc.processable {
			t.Fatalf("%s: Processable()=%v", tc.s, got)
		}
	}
}

func TestCallUpdate_FailedClearsTranscription(t *testing.T) {
	failed := StatusTranscriptionFailed
	tid := "t1"
	u := CallUpdate{Status: &failed, TranscriptionID: &tid}.normalized()
	if u.TranscriptionID == nil || *u.TranscriptionID != "" {
		t.Fatalf("expected transcription reference cleared")
	}

	complete := StatusTranscriptionComplete
	u = CallUpdate{Status: &complete, TranscriptionID: &tid}.normalized()
	if *u.TranscriptionID != "t1" {
		t.Fatalf("expected reference kept for complete")
	}
}

func TestWrapStoreErr(t *testing.T) {
	if WrapStoreErr("op", nil) != nil {
		t.Fatalf("expected nil")
	}
	if err := WrapStoreErr("op", ErrNotFound); err != ErrNotFound {
		t.Fatalf("expected sentinel passed through, got %v", err)
	}
	err := WrapStoreErr("get call", errBoom)
	pe, ok := err.(*PersistenceError)
	if !ok {
		t.Fatalf("expected *PersistenceError, got %T", err)
	}
	if pe.Op != "get call" || pe.Err != errBoom {
		t.Fatalf("unexpected wrap: %+v", pe)
	}
	if again := WrapStoreErr("other", err); again != err {
		t.Fatalf("expected no double wrap")
	}
}
