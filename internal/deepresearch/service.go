package deepresearch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/quartoworks/shelfmark/pkg/constants"
	"github.com/quartoworks/shelfmark/pkg/errors"
	"github.com/quartoworks/shelfmark/pkg/logging"
	"github.com/quartoworks/shelfmark/pkg/zotero"
)

// reportPrompt is the instruction sent to the research agent. The report
// body is Spanish because that is the library's language; section names
// stay English for the agent's benefit.
const reportPrompt = `Research the book '%s'%s.

Format the output as a comprehensive literary analysis in SPANISH using Markdown with the following structure:
1. Plot Summary (or Executive Summary for non-fiction)
2. Key Themes and Motifs
3. Character Analysis (if applicable)
4. Narrative Style and Structure
5. Historical and Literary Context
6. Critical Reception and Impact

IMPORTANT:
- The entire report must be written in Spanish.
- If comprehensive information is NOT available for all sections, report whatever information IS found rather than failing.
- Clearly state any missing information in the relevant sections.`

// ReportPrompt composes the research prompt for one book.
func ReportPrompt(title, author string) string {
	byline := ""
	if author != "" {
		byline = " by " + author
	}
	return fmt.Sprintf(reportPrompt, title, byline)
}

// Service runs the research commands: starting jobs, reattaching to
// recorded ones, and landing finished reports as notes.
type Service struct {
	zot   *zotero.Client
	api   *Client
	state *State

	// reconnectDelay is the pause before stream reattach attempts.
	reconnectDelay time.Duration
}

// NewService wires the library client, the interactions client, and the
// job state together.
func NewService(zot *zotero.Client, api *Client, state *State) *Service {
	return &Service{
		zot:            zot,
		api:            api,
		state:          state,
		reconnectDelay: constants.StreamReconnectDelay,
	}
}

// Options select which items the report run touches and how fast it runs.
type Options struct {
	// Collection restricts the run to one collection key, descending into
	// subcollections; empty means the whole library.
	Collection string

	// ItemType is the target item type; empty means book.
	ItemType string

	// Delay is the pause between items.
	Delay time.Duration
}

// ResumeOptions control how recorded jobs are collected.
type ResumeOptions struct {
	// Key restricts the run to one recorded job.
	Key string

	// Item is an explicit item key for saving, bypassing the title
	// search. Only meaningful together with Key.
	Item string

	// Restart relaunches failed jobs instead of dropping them.
	Restart bool

	// Delay is the pause between jobs.
	Delay time.Duration
}

// Stats counts what a research run did.
type Stats struct {
	Processed        int
	Skipped          int
	Started          int
	Saved            int
	StillRunning     int
	Failed           int
	NotFound         int
	SkippedAmbiguous int
	Purged           int
	Errors           int
}

// Report generates a research report for every selected item that does not
// already have one. Items with a recorded job reattach to it instead of
// starting over.
func (s *Service) Report(ctx context.Context, opts Options) (*Stats, error) {
	itemType := opts.ItemType
	if itemType == "" {
		itemType = "book"
	}

	var (
		items []zotero.Item
		err   error
	)
	if opts.Collection != "" {
		items, err = s.zot.CollectionItems(ctx, opts.Collection, zotero.ItemQuery{ItemType: itemType}, true)
	} else {
		items, err = s.zot.Items(ctx, zotero.ItemQuery{ItemType: itemType})
	}
	if err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().
		Int("items", len(items)).
		Str("item_type", itemType).
		Str("agent", s.api.Agent()).
		Msg("Starting research run")

	stats := &Stats{}
	for i := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		item := &items[i]
		stats.Processed++

		title := item.Data.Title
		if title == "" {
			title = "Untitled"
		}
		author := item.Data.FirstAuthor()
		logger := logging.WithItem(ctx, item.Key)

		hasNote, err := s.hasReportNote(logger, item.Key)
		if err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Listing child notes failed")
			stats.Errors++
			continue
		}
		if hasNote {
			logging.Ctx(logger).Debug().Str("title", title).Msg("Report note already present")
			stats.Skipped++
			continue
		}

		report, err := s.runJob(logger, title, author, stats)
		if err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Research failed")
			stats.Failed++
			continue
		}

		if err := s.saveReport(logger, item.Key, title, author, report); err != nil {
			logging.Ctx(logger).Warn().Err(err).Str("title", title).Msg("Saving report failed")
			stats.Errors++
			continue
		}
		logging.Ctx(logger).Info().Str("title", title).Int("chars", len(report)).Msg("Report saved")
		stats.Saved++

		if i < len(items)-1 {
			if err := pause(ctx, opts.Delay); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

// Resume walks the recorded jobs and finishes the ones that can be
// finished: done jobs get their report saved, failed jobs are dropped (or
// relaunched with Restart), running jobs are left alone.
func (s *Service) Resume(ctx context.Context, opts ResumeOptions) (*Stats, error) {
	keys := s.state.Keys()
	if opts.Key != "" {
		if _, ok := s.state.Get(opts.Key); !ok {
			return nil, &errors.NotFoundError{Resource: "research job", ID: opts.Key}
		}
		keys = []string{opts.Key}
	}

	stats := &Stats{}
	if len(keys) == 0 {
		logging.Ctx(ctx).Info().Msg("No recorded research jobs")
		return stats, nil
	}

	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		entry, ok := s.state.Get(key)
		if !ok {
			continue
		}
		stats.Processed++
		title, author := entry.Describe(key)
		logger := logging.WithField(ctx, "job", key)

		interaction, err := s.api.Get(logger, entry.InteractionID)
		if err != nil {
			logging.Ctx(logger).Warn().Err(err).Msg("Fetching job status failed")
			stats.Errors++
			continue
		}

		switch {
		case interaction.Done():
			report := interaction.ReportText()
			if report == "" {
				logging.Ctx(logger).Warn().Msg("Job finished without content")
				stats.Errors++
				break
			}
			s.saveMatched(logger, opts.Item, key, title, author, report, stats)

		case interaction.Failed():
			stats.Failed++
			if opts.Restart {
				logging.Ctx(logger).Info().Msg("Relaunching failed job")
				report, err := s.runJob(logger, title, author, stats)
				if err != nil {
					logging.Ctx(logger).Warn().Err(err).Msg("Relaunch failed")
					break
				}
				s.saveMatched(logger, opts.Item, key, title, author, report, stats)
				break
			}
			reason := "unknown error"
			if interaction.Error != nil {
				reason = interaction.Error.Message
			}
			logging.Ctx(logger).Warn().Str("reason", reason).Msg("Dropping failed job")
			s.state.Delete(key)
			if err := s.state.Save(); err != nil {
				return stats, err
			}

		default:
			logging.Ctx(logger).Info().Str("status", interaction.Status).Msg("Job still running")
			stats.StillRunning++
		}

		if i < len(keys)-1 {
			if err := pause(ctx, opts.Delay); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

// SessionStatus is one row of the research status table.
type SessionStatus struct {
	Key           string
	Title         string
	Author        string
	InteractionID string
	Status        string
	StartedAt     time.Time
}

// Status reports every recorded job with its live interaction status.
// Unreachable interactions are reported, not dropped.
func (s *Service) Status(ctx context.Context) ([]SessionStatus, error) {
	sessions := make([]SessionStatus, 0, s.state.Len())
	for _, key := range s.state.Keys() {
		if err := ctx.Err(); err != nil {
			return sessions, err
		}
		entry, ok := s.state.Get(key)
		if !ok {
			continue
		}
		title, author := entry.Describe(key)

		status := "unreachable"
		if interaction, err := s.api.Get(ctx, entry.InteractionID); err == nil {
			status = interaction.Status
		}

		sessions = append(sessions, SessionStatus{
			Key:           key,
			Title:         title,
			Author:        author,
			InteractionID: entry.InteractionID,
			Status:        status,
			StartedAt:     entry.StartedAt,
		})
	}
	return sessions, nil
}

// FollowUpOptions address one recorded job with a question.
type FollowUpOptions struct {
	// Key selects the recorded job.
	Key string

	// Item is an explicit item key for saving, bypassing the title
	// search.
	Item string

	// Question is the follow-up to ask.
	Question string

	// Save appends the exchange to the item's report note.
	Save bool
}

// FollowUp asks one question in the context of a recorded job and returns
// the answer. With Save set the exchange is appended to the report note;
// the answer is returned even when saving fails, so the caller can still
// show it.
func (s *Service) FollowUp(ctx context.Context, opts FollowUpOptions) (string, error) {
	entry, ok := s.state.Get(opts.Key)
	if !ok {
		return "", &errors.NotFoundError{Resource: "research job", ID: opts.Key}
	}

	answer, err := s.api.FollowUp(ctx, entry.InteractionID, opts.Question)
	if err != nil {
		return "", err
	}
	if !opts.Save {
		return answer, nil
	}

	title, author := entry.Describe(opts.Key)
	item, err := s.matchItem(ctx, opts.Item, title, author)
	if err != nil {
		return answer, err
	}
	note, err := s.zot.FindChildNote(ctx, item.Key, constants.ResearchNoteTitle)
	if err != nil {
		return answer, err
	}
	if note == nil {
		return answer, &errors.NotFoundError{Resource: "report note", ID: item.Key}
	}
	updated, err := AppendFollowUp(note.Data.Note, opts.Question, answer)
	if err != nil {
		return answer, err
	}
	if err := s.zot.UpdateNote(ctx, note, updated); err != nil {
		return answer, err
	}
	return answer, nil
}

// Purge drops recorded jobs whose library item no longer exists. Jobs with
// ambiguous title matches are kept; absence cannot be proven for them.
func (s *Service) Purge(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	for _, key := range s.state.Keys() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		entry, ok := s.state.Get(key)
		if !ok {
			continue
		}
		stats.Processed++
		title, author := entry.Describe(key)

		_, err := s.zot.MatchItem(ctx, title, author, "")
		switch {
		case err == nil:
			// Item still present, job stays.
		case errors.IsNotFound(err):
			logging.Ctx(ctx).Info().Str("job", key).Msg("Dropping orphaned job")
			s.state.Delete(key)
			stats.Purged++
		case errors.IsAmbiguous(err):
			stats.SkippedAmbiguous++
		default:
			logging.Ctx(ctx).Warn().Err(err).Str("job", key).Msg("Checking job item failed")
			stats.Errors++
		}
	}
	if stats.Purged > 0 {
		if err := s.state.Save(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// jobRun accumulates one job's streaming progress.
type jobRun struct {
	key           string
	title         string
	author        string
	interactionID string
	lastEventID   string
	startedAt     time.Time
	complete      bool
	failure       *StatusError
	text          strings.Builder
}

// runJob produces the report text for one book and is the only place jobs
// are started. A recorded interaction is reattached first: finished jobs
// yield their output immediately, failed ones are restarted from scratch,
// running ones resume their stream.
func (s *Service) runJob(ctx context.Context, title, author string, stats *Stats) (string, error) {
	job := &jobRun{key: StateKey(title, author), title: title, author: author}

	if entry, ok := s.state.Get(job.key); ok {
		job.interactionID = entry.InteractionID
		job.lastEventID = entry.LastEventID
		job.startedAt = entry.StartedAt

		logging.Ctx(ctx).Info().Str("interaction_id", job.interactionID).Msg("Reattaching to recorded job")
		if done, err := s.reattach(ctx, job); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Reattach failed, starting fresh")
			job.reset()
		} else if done {
			return s.finishJob(ctx, job)
		}
	}

	if job.interactionID == "" {
		stats.Started++
		stream, err := s.api.Start(ctx, ReportPrompt(title, author))
		if err != nil {
			return "", err
		}
		if err := s.consume(ctx, job, stream); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Initial stream dropped")
		}
	}

	if err := s.reconnectLoop(ctx, job); err != nil {
		return "", err
	}
	return s.finishJob(ctx, job)
}

// reattach checks a recorded interaction and either collects it, resumes
// its stream, or resets the job for a fresh start. It returns true when
// the job reached a terminal state.
func (s *Service) reattach(ctx context.Context, job *jobRun) (bool, error) {
	interaction, err := s.api.Get(ctx, job.interactionID)
	if err != nil {
		return false, err
	}

	switch {
	case interaction.Done():
		job.complete = true
		job.text.Reset()
		job.text.WriteString(interaction.ReportText())
		return true, nil
	case interaction.Failed():
		logging.Ctx(ctx).Warn().Msg("Recorded job failed, starting fresh")
		job.reset()
		return false, nil
	default:
		stream, err := s.api.Resume(ctx, job.interactionID, job.lastEventID)
		if err != nil {
			return false, err
		}
		if err := s.consume(ctx, job, stream); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Resumed stream dropped")
		}
		return job.complete, nil
	}
}

// reconnectLoop drives a job to a terminal state, reattaching after stream
// drops. Each attempt re-fetches the interaction first so a job that
// finished while disconnected is collected without another stream. The
// reconnect budget is only refunded when a stream makes progress.
func (s *Service) reconnectLoop(ctx context.Context, job *jobRun) error {
	retries := 0
	for !job.complete && job.interactionID != "" {
		if retries >= constants.MaxStreamReconnects {
			return &errors.StreamError{
				Service:     "gemini",
				SessionID:   job.interactionID,
				LastEventID: job.lastEventID,
				Attempts:    retries,
				Err:         errors.ErrTimeout,
			}
		}
		if err := pause(ctx, s.reconnectDelay); err != nil {
			return err
		}

		if interaction, err := s.api.Get(ctx, job.interactionID); err == nil {
			if interaction.Done() {
				job.complete = true
				// The snapshot holds the full output; streamed text may
				// be missing whatever followed the drop.
				if text := interaction.ReportText(); text != "" {
					job.text.Reset()
					job.text.WriteString(text)
				}
				break
			}
			if interaction.Failed() {
				job.complete = true
				job.failure = interaction.Error
				if job.failure == nil {
					job.failure = &StatusError{Message: "job failed"}
				}
				break
			}
		}

		logging.Ctx(ctx).Info().
			Str("last_event_id", job.lastEventID).
			Int("attempt", retries+1).
			Msg("Reconnecting to stream")

		stream, err := s.api.Resume(ctx, job.interactionID, job.lastEventID)
		if err != nil {
			retries++
			continue
		}
		before := job.lastEventID
		if err := s.consume(ctx, job, stream); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Stream dropped")
		}
		if job.lastEventID == before {
			retries++
		} else {
			retries = 0
		}
	}
	return nil
}

// finishJob turns a completed run into report text. Streams can close
// without delivering the text that the interaction already holds, so an
// empty accumulation is retried against the snapshot before giving up. The
// state entry survives failures for a later resume --restart.
func (s *Service) finishJob(ctx context.Context, job *jobRun) (string, error) {
	if job.failure != nil {
		return "", &errors.APIError{Service: "gemini", Message: "research job failed: " + job.failure.Message}
	}
	if !job.complete {
		return "", &errors.StreamError{
			Service:     "gemini",
			SessionID:   job.interactionID,
			LastEventID: job.lastEventID,
			Attempts:    constants.MaxStreamReconnects,
			Err:         errors.ErrServiceUnavailable,
		}
	}

	text := job.text.String()
	if text == "" {
		logging.Ctx(ctx).Info().Msg("Stream carried no text, fetching final result")
		interaction, err := s.api.Get(ctx, job.interactionID)
		if err != nil {
			return "", err
		}
		text = interaction.ReportText()
	}
	if text == "" {
		return "", &errors.APIError{Service: "gemini", Message: "job completed without output"}
	}
	return text, nil
}

// consume drains a stream into the run. The interaction id is persisted
// the moment it is known, before any further event is consumed, so a
// crash cannot orphan a started job. The stream is always closed.
func (s *Service) consume(ctx context.Context, job *jobRun, stream *Stream) error {
	defer func() { _ = stream.Close() }()

	for {
		event, err := stream.Next()
		if err != nil {
			if err == io.EOF {
				return s.persistJob(job)
			}
			if persistErr := s.persistJob(job); persistErr != nil {
				return persistErr
			}
			return err
		}

		if event.EventID != "" {
			job.lastEventID = event.EventID
		}

		switch event.EventType {
		case EventInteractionStart:
			if event.Interaction != nil && event.Interaction.ID != "" {
				job.interactionID = event.Interaction.ID
				if job.startedAt.IsZero() {
					job.startedAt = time.Now().UTC()
				}
				if err := s.persistJob(job); err != nil {
					return err
				}
				logging.Ctx(ctx).Info().Str("interaction_id", job.interactionID).Msg("Job started")
			}

		case EventContentDelta:
			if event.Delta == nil {
				break
			}
			switch event.Delta.Type {
			case DeltaText:
				job.text.WriteString(event.Delta.Text)
			case DeltaThoughtSummary:
				logging.Ctx(ctx).Debug().Str("thought", snippet(event.Delta.Summary())).Msg("Agent progress")
			}

		case EventInteractionComplete:
			job.complete = true

		case EventError:
			job.complete = true
			job.failure = event.Error
			if job.failure == nil {
				job.failure = &StatusError{Message: "stream reported an error"}
			}
		}

		if job.complete {
			return s.persistJob(job)
		}
	}
}

// persistJob records the job in the state file. No-op until the
// interaction id is known.
func (s *Service) persistJob(job *jobRun) error {
	if job.interactionID == "" {
		return nil
	}
	s.state.Put(job.key, Entry{
		InteractionID: job.interactionID,
		Title:         job.title,
		Author:        job.author,
		StartedAt:     job.startedAt,
		LastEventID:   job.lastEventID,
	})
	return s.state.Save()
}

// saveReport writes the report note and only then releases the job from
// the state file, so an interrupted save leaves the job collectable.
func (s *Service) saveReport(ctx context.Context, itemKey, title, author, report string) error {
	noteHTML, err := NoteHTML(report)
	if err != nil {
		return err
	}
	if _, err := s.zot.CreateNote(ctx, itemKey, noteHTML, ResearchTag); err != nil {
		return err
	}
	s.state.Delete(StateKey(title, author))
	return s.state.Save()
}

// saveMatched resolves the library item for a finished job and saves its
// report, bumping the stats for every outcome. Ambiguous matches keep the
// job so the caller can address the item explicitly.
func (s *Service) saveMatched(ctx context.Context, itemKey, key, title, author, report string, stats *Stats) {
	item, err := s.matchItem(ctx, itemKey, title, author)
	switch {
	case err == nil:
	case errors.IsAmbiguous(err):
		logging.Ctx(ctx).Warn().Err(err).Msg("Multiple items match, skipping; use an explicit item key")
		stats.SkippedAmbiguous++
		return
	case errors.IsNotFound(err):
		logging.Ctx(ctx).Warn().Str("title", title).Msg("No library item matches the job")
		stats.NotFound++
		return
	default:
		logging.Ctx(ctx).Warn().Err(err).Msg("Item lookup failed")
		stats.Errors++
		return
	}

	if err := s.saveReport(ctx, item.Key, title, author, report); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Saving report failed")
		stats.Errors++
		return
	}
	logging.Ctx(ctx).Info().Str("item_key", item.Key).Int("chars", len(report)).Msg("Report saved")
	stats.Saved++
}

// matchItem resolves the target item either by explicit key or by unique
// title/author match.
func (s *Service) matchItem(ctx context.Context, itemKey, title, author string) (*zotero.Item, error) {
	if itemKey != "" {
		return s.zot.Item(ctx, itemKey)
	}
	return s.zot.MatchItem(ctx, title, author, "")
}

func (s *Service) hasReportNote(ctx context.Context, itemKey string) (bool, error) {
	notes, err := s.zot.Children(ctx, itemKey, "note")
	if err != nil {
		return false, err
	}
	for i := range notes {
		if IsReportNote(&notes[i]) {
			return true, nil
		}
	}
	return false, nil
}

// reset clears a job back to unstarted; the fresh start overwrites the
// recorded entry under the same key.
func (j *jobRun) reset() {
	j.interactionID = ""
	j.lastEventID = ""
	j.startedAt = time.Time{}
	j.complete = false
	j.failure = nil
	j.text.Reset()
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "…"
	}
	return s
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
