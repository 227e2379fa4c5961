package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"resume-search/internal/storage"
	"resume-search/pkg/httpclient"
)

// RemoteStructurer delegates fact extraction to an external NLP collaborator
// over HTTP. The collaborator receives {"text": ...} and answers with a
// Facts document.
type RemoteStructurer struct {
	url    string
	client *httpclient.Client
	logger zerolog.Logger
}

var _ FactExtractor = (*RemoteStructurer)(nil)

func NewRemoteStructurer(url string, timeout time.Duration, logger zerolog.Logger) *RemoteStructurer {
	return &RemoteStructurer{
		url:    url,
		client: httpclient.NewClient(timeout),
		logger: logger,
	}
}

func (s *RemoteStructurer) Structure(ctx context.Context, rawText string) (Facts, error) {
	facts := Facts{
		Skills:          []string{},
		Education:       []storage.EducationEntry{},
		WorkExperiences: []WorkStint{},
	}
	if rawText == "" {
		return facts, nil
	}

	payload, err := json.Marshal(map[string]string{"text": rawText})
	if err != nil {
		return facts, fmt.Errorf("marshal extraction request: %w", err)
	}

	resp, err := s.client.Post(ctx, s.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return facts, fmt.Errorf("extraction collaborator unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return facts, fmt.Errorf("extraction collaborator returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&facts); err != nil {
		return facts, fmt.Errorf("decode extraction response: %w", err)
	}

	// Never hand back nil containers.
	if facts.Skills == nil {
		facts.Skills = []string{}
	}
	if facts.Education == nil {
		facts.Education = []storage.EducationEntry{}
	}
	if facts.WorkExperiences == nil {
		facts.WorkExperiences = []WorkStint{}
	}

	s.logger.Debug().Int("skills", len(facts.Skills)).
		Int("work_experiences", len(facts.WorkExperiences)).
		Msg("remote extraction complete")
	return facts, nil
}
