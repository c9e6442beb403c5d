// Package ingest discovers vendor transcript files, parses them, and applies
// new/updated/unchanged delta detection against what's already stored. It
// never calls an LLM and is meant to run synchronously before every query.
package ingest

import (
	"time"

	"tactical/internal/entities"
	"tactical/internal/logging"
	"tactical/internal/model"
	"tactical/internal/parse"
	"tactical/internal/store"
)

// Source binds one vendor's parser to the base paths it should scan.
type Source struct {
	Name   string
	Parser parse.Parser
	Paths  []string
}

// Ingestor runs the fast ingest pass across a set of configured sources.
type Ingestor struct {
	store   *store.Store
	sources []Source
}

// New returns an Ingestor backed by s, scanning sources in the given order.
func New(s *store.Store, sources []Source) *Ingestor {
	return &Ingestor{store: s, sources: sources}
}

// Stats summarizes one Ingest call.
type Stats struct {
	Sessions          int
	Messages          int
	NewSessionIDs     []string
	UpdatedSessionIDs []string
}

// delta classifies a freshly parsed session against its stored row.
type delta int

const (
	deltaUnchanged delta = iota
	deltaNew
	deltaUpdated
)

func classify(existing *model.Session, parsed *parse.ParsedSession) delta {
	if existing == nil {
		return deltaNew
	}
	if existing.MessageCount != parsed.MessageCount ||
		existing.UserMessageCount != parsed.UserMessageCount ||
		existing.LastMessageAt != parsed.LastMessageAt {
		return deltaUpdated
	}
	return deltaUnchanged
}

func toSession(p *parse.ParsedSession) *model.Session {
	return &model.Session{
		ID:               p.ID,
		Source:           p.Source,
		ProjectPath:      p.ProjectPath,
		ProjectName:      p.ProjectName,
		CWD:              p.CWD,
		Model:            p.Model,
		GitBranch:        p.GitBranch,
		FirstMessageAt:   p.FirstMessageAt,
		LastMessageAt:    p.LastMessageAt,
		MessageCount:     p.MessageCount,
		UserMessageCount: p.UserMessageCount,
		TotalTokens:      p.TotalTokens,
		CompactionCount:  p.CompactionCount,
		ToolsUsed:        p.SortedTools(),
		RawPath:          p.RawPath,
		IngestedAt:       time.Now().Unix(),
		Title:            p.Title,
		Tier:             model.TierL3,
	}
}

func toMessages(p *parse.ParsedSession) []*model.Message {
	out := make([]*model.Message, 0, len(p.Messages))
	for _, m := range p.Messages {
		out = append(out, &model.Message{
			SessionID:   p.ID,
			Ordinal:     m.Ordinal,
			Role:        m.Role,
			ContentType: m.ContentType,
			ContentText: m.ContentText,
			ContentJSON: m.ContentJSON,
			ToolName:    m.ToolName,
			TokenCount:  m.TokenCount,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out
}

// Ingest scans every configured source, persisting new and updated sessions.
// A single file that fails to parse is logged and skipped; it never aborts
// the batch.
func (ing *Ingestor) Ingest() (*Stats, error) {
	timer := logging.StartTimer(logging.CategoryIngest, "ingest.Ingest")
	defer timer.Stop()
	log := logging.Get(logging.CategoryIngest)

	stats := &Stats{}

	for _, src := range ing.sources {
		files, err := src.Parser.DiscoverFiles(src.Paths)
		if err != nil {
			if log != nil {
				log.Warn("discover files failed for source %s: %v", src.Name, err)
			}
			continue
		}

		for _, fpath := range files {
			parsed, err := src.Parser.Parse(fpath)
			if err != nil {
				if log != nil {
					log.Warn("parse failed for %s: %v", fpath, err)
				}
				continue
			}
			if parsed == nil || parsed.UserMessageCount == 0 {
				continue
			}

			existing, err := ing.store.GetSession(parsed.ID)
			if err != nil {
				if log != nil {
					log.Warn("lookup failed for session %s: %v", parsed.ID, err)
				}
				continue
			}

			switch classify(existing, parsed) {
			case deltaUnchanged:
				continue
			case deltaNew, deltaUpdated:
				if err := ing.persist(parsed); err != nil {
					if log != nil {
						log.Warn("persist failed for session %s: %v", parsed.ID, err)
					}
					continue
				}
				stats.Sessions++
				stats.Messages += len(parsed.Messages)
				if existing == nil {
					stats.NewSessionIDs = append(stats.NewSessionIDs, parsed.ID)
				} else {
					stats.UpdatedSessionIDs = append(stats.UpdatedSessionIDs, parsed.ID)
				}
			}
		}
	}

	return stats, nil
}

func (ing *Ingestor) persist(p *parse.ParsedSession) error {
	if err := ing.store.UpsertSession(toSession(p)); err != nil {
		return err
	}
	if err := ing.store.InsertMessages(toMessages(p)); err != nil {
		return err
	}
	if _, err := entities.ExtractForSession(ing.store, p.ID); err != nil {
		return err
	}
	return nil
}
