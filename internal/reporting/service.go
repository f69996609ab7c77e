package reporting

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"call-insights/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. calls.Repository satisfies it.
type Repository interface {
	ListCallDetails(ctx context.Context) ([]calls.CallDetail, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	r := req.Range
	if !r.From.IsZero() && !r.To.IsZero() && !r.To.After(r.From) {
		return Summary{}, ErrInvalidRequest
	}
	if req.TopN < 0 {
		return Summary{}, ErrInvalidRequest
	}
	if req.TopN == 0 {
		req.TopN = 10
	}
	if s.repo == nil {
		return Summary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCallDetails(ctx)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{Range: r, ByStatus: map[calls.CallStatus]int{}}
	for _, st := range calls.AllStatuses {
		out.ByStatus[st] = 0
	}
	categories := map[string]int{}
	tags := map[string]int{}

	for _, d := range rows {
		c := d.Call
		if !r.From.IsZero() && c.CreatedAt.Before(r.From) {
			continue
		}
		if !r.To.IsZero() && !c.CreatedAt.Before(r.To) {
			continue
		}

		out.TotalCalls++
		out.ByStatus[c.Status]++
		out.TotalDurationSeconds += c.Duration
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		if d.Transcription == nil {
			continue
		}
		out.TranscribedCalls++
		if d.Transcription.Summary != "" {
			out.AnalyzedCalls++
		}
		for _, v := range d.Transcription.Categories {
			categories[normalizeLabel(v)]++
		}
		for _, v := range d.Transcription.Tags {
			tags[normalizeLabel(v)]++
		}
	}

	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	complete := out.ByStatus[calls.StatusTranscriptionComplete]
	if finished := complete + out.ByStatus[calls.StatusTranscriptionFailed]; finished > 0 {
		out.SuccessRate = float64(complete) / float64(finished)
	}
	out.TopCategories = rank(categories, req.TopN)
	out.TopTags = rank(tags, req.TopN)
	return out, nil
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// rank orders labels by count, ties broken alphabetically.
func rank(counts map[string]int, n int) []LabelCount {
	out := make([]LabelCount, 0, len(counts))
	for label, c := range counts {
		if label == "" {
			continue
		}
		out = append(out, LabelCount{Label: label, Count: c})
	}
	slices.SortFunc(out, func(a, b LabelCount) int {
		if a.Count != b.Count {
			return cmp.Compare(b.Count, a.Count)
		}
		return cmp.Compare(a.Label, b.Label)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
