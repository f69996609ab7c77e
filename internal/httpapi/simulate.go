package httpapi

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"call-insights/internal/calls"
	"call-insights/internal/metrics"
	"call-insights/pkg/logger"
)

const (
	defaultUploadMaxBytes = 10 << 20
	defaultFromNumber     = "+15551234567"
	// multipart framing and the text fields ride on top of the file itself
	formOverheadBytes = 1 << 20
)

var errNotAudio = errors.New("only audio files are allowed")

// SimulateCall accepts an uploaded recording and runs it through the pipeline
// as if it had arrived from the telephony provider.
func (h Handlers) SimulateCall(c *gin.Context) {
	log := logger.FromGin(c)
	maxBytes := h.Upload.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultUploadMaxBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+formOverheadBytes)

	fh, err := c.FormFile("audioFile")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.rejectUpload(c, http.StatusBadRequest, "Audio file too large", fmt.Sprintf("limit is %d bytes", maxBytes))
			return
		}
		h.rejectUpload(c, http.StatusBadRequest, "No audio file provided", err.Error())
		return
	}
	if fh.Size > maxBytes {
		h.rejectUpload(c, http.StatusBadRequest, "Audio file too large", fmt.Sprintf("limit is %d bytes", maxBytes))
		return
	}

	ext, err := audioExtension(fh)
	if err != nil {
		h.rejectUpload(c, http.StatusBadRequest, "Invalid audio file", err.Error())
		return
	}

	dir := h.Upload.Dir
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		respondError(c, "Failed to simulate call", err)
		return
	}
	dest, err := filepath.Abs(filepath.Join(dir, "call-"+uuid.NewString()+ext))
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		respondError(c, "Failed to simulate call", err)
		return
	}
	if err := c.SaveUploadedFile(fh, dest); err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		respondError(c, "Failed to simulate call", err)
		return
	}

	from := strings.TrimSpace(c.PostForm("from"))
	if from == "" {
		from = h.Upload.DefaultFrom
	}
	if from == "" {
		from = defaultFromNumber
	}
	to := h.Upload.To
	if to == "" {
		to = defaultFromNumber
	}

	call, err := h.Calls.CreateCall(c.Request.Context(), calls.CreateCallInput{
		CallSID:      "test-" + uuid.NewString(),
		From:         from,
		To:           to,
		RecordingURL: dest,
		Metadata:     map[string]any{"source": "upload", "originalFilename": fh.Filename},
	})
	if err != nil {
		_ = os.Remove(dest)
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		respondError(c, "Failed to simulate call", err)
		return
	}

	metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	log.Info("simulated call created", "call_id", call.ID, "file", filepath.Base(dest), "bytes", fh.Size)
	c.JSON(http.StatusCreated, gin.H{
		"message": "Call simulation started",
		"callId":  call.ID,
		"status":  "processing",
	})
}

func (h Handlers) rejectUpload(c *gin.Context, status int, message, detail string) {
	metrics.UploadsTotal.WithLabelValues("rejected").Inc()
	c.AbortWithStatusJSON(status, gin.H{"message": message, "error": detail})
}

// audioExtension accepts a declared audio/* type, or sniffs the content when the
// client sent no specific type. It returns the extension to store the file under.
func audioExtension(fh *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	declared := strings.TrimSpace(fh.Header.Get("Content-Type"))

	if strings.HasPrefix(declared, "audio/") && ext != "" {
		return ext, nil
	}
	if declared != "" && declared != "application/octet-stream" && !strings.HasPrefix(declared, "audio/") {
		return "", errNotAudio
	}

	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") {
			if ext == "" {
				ext = mt.Extension()
			}
			return ext, nil
		}
	}
	if strings.HasPrefix(declared, "audio/") {
		// declared audio without an extension and no recognizable signature
		return ".mp3", nil
	}
	return "", errNotAudio
}

// TestListCalls lists every call with its transcript text and summary, newest first.
func (h Handlers) TestListCalls(c *gin.Context) {
	out, err := h.Calls.ListCallSummaries(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to list calls", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// TestCallStatus returns the polling projection of one call.
func (h Handlers) TestCallStatus(c *gin.Context) {
	v, err := h.Calls.GetCallStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get call status", err)
		return
	}
	c.JSON(http.StatusOK, v)
}
