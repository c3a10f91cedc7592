// Package agent turns one user utterance into a model call, a parsed action
// set and a single transactional reconciliation against the store.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Joseda-hg/taskflow/internal/db"
	"github.com/Joseda-hg/taskflow/internal/llm"
	"github.com/Joseda-hg/taskflow/internal/load"
	"github.com/Joseda-hg/taskflow/internal/model"
	"github.com/Joseda-hg/taskflow/internal/transcribe"
)

const DefaultHistoryLimit = 20

const (
	backendFailureMessage = "Sorry, I could not reach the assistant right now. Please try again in a moment."
	storageFailureMessage = "Sorry, something went wrong while saving your changes. Nothing was changed."
	voiceFailureMessage   = "Sorry, I could not understand the voice message. Please try again or type it."
	voicePlaceholder      = "[voice message]"

	correctiveInstruction = "Your previous answer was not valid JSON. Reply again with only the JSON object in the required format, with no other text."
)

var ErrNoTranscriber = errors.New("agent: speech-to-text is not configured")

type Request struct {
	Owner int64
	Text  string
	Kind  model.MessageKind

	// Utterance is what the user said in their own words. It drives the
	// delete-all and relative-day checks. Empty means Text, except for file
	// turns, whose Text wraps a document the user did not say.
	Utterance string
}

func (r Request) utterance() string {
	if r.Utterance != "" || r.Kind == model.KindFile {
		return r.Utterance
	}
	return r.Text
}

// Reply is what the transport hands back to the client.
type Reply struct {
	Message             string          `json:"message"`
	TasksCreated        []model.TaskRef `json:"tasks_created"`
	TasksUpdated        []model.TaskRef `json:"tasks_updated"`
	TasksDeleted        []model.TaskRef `json:"tasks_deleted"`
	MemoriesSaved       []string        `json:"memories_saved"`
	ClarifyingQuestions []string        `json:"clarifying_questions"`
	Tips                []string        `json:"tips"`
	LoadWarning         *string         `json:"load_warning"`
	Transcript          string          `json:"transcript,omitempty"`
	Filename            string          `json:"filename,omitempty"`
	Error               string          `json:"error,omitempty"`
	TurnID              string          `json:"turn_id"`
}

func emptyReply(turn, message string) Reply {
	return Reply{
		Message:             message,
		TasksCreated:        []model.TaskRef{},
		TasksUpdated:        []model.TaskRef{},
		TasksDeleted:        []model.TaskRef{},
		MemoriesSaved:       []string{},
		ClarifyingQuestions: []string{},
		Tips:                []string{},
		TurnID:              turn,
	}
}

type Options struct {
	HistoryLimit     int
	ActiveTaskLimit  int
	DefaultStartHour int
	Location         *time.Location
	Transcriber      transcribe.Transcriber
}

type Agent struct {
	store        *db.Store
	backend      llm.Backend
	transcriber  transcribe.Transcriber
	builder      *Builder
	reconciler   *Reconciler
	analyzer     *load.Analyzer
	logger       *zap.Logger
	historyLimit int
}

func New(store *db.Store, backend llm.Backend, logger *zap.Logger, opts Options) *Agent {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	logger = logger.Named("agent")
	return &Agent{
		store:        store,
		backend:      backend,
		transcriber:  opts.Transcriber,
		builder:      NewBuilder(store, logger, opts.Location, opts.ActiveTaskLimit),
		reconciler:   NewReconciler(logger, opts.DefaultStartHour),
		analyzer:     load.NewAnalyzer(store, logger, opts.Location),
		logger:       logger,
		historyLimit: opts.HistoryLimit,
	}
}

// Handle runs one orchestration pass. A backend failure is answered with a
// conversational error and a nil error; only storage failures are returned.
func (a *Agent) Handle(ctx context.Context, req Request) (Reply, error) {
	turn := uuid.NewString()
	log := a.logger.With(zap.String("turn", turn), zap.Int64("owner", req.Owner))
	if req.Kind == "" {
		req.Kind = model.KindText
	}

	history, err := a.store.RecentMessages(ctx, req.Owner, a.historyLimit)
	if err != nil {
		log.Error("load history", zap.Error(err))
		return emptyReply(turn, storageFailureMessage), fmt.Errorf("load history: %w", err)
	}
	if _, err := a.store.AppendMessage(ctx, req.Owner, model.RoleUser, req.Text, req.Kind, model.NoMeta()); err != nil {
		log.Error("save user turn", zap.Error(err))
		return emptyReply(turn, storageFailureMessage), fmt.Errorf("save user turn: %w", err)
	}
	if _, err := a.analyzer.Refresh(ctx, req.Owner); err != nil {
		log.Warn("refresh statuses", zap.Error(err))
	}

	system := a.builder.Build(ctx, req.Owner)
	turns := append(historyTurns(history), llm.Turn{Role: llm.RoleUser, Text: req.Text})

	raw, err := a.backend.Complete(ctx, system, turns)
	if err != nil {
		log.Warn("backend call failed", zap.String("backend", a.backend.Name()), zap.Error(err))
		reply := emptyReply(turn, backendFailureMessage)
		reply.Error = err.Error()
		return reply, nil
	}
	if !HasJSONMarkers(raw) {
		raw = a.retry(ctx, log, system, turns, raw)
	}
	actions := Parse(raw)

	loc := a.analyzer.Location(ctx, req.Owner)
	var result Result
	err = a.store.WithTx(ctx, func(tx *db.Store) error {
		var err error
		result, err = a.reconciler.With(log).Apply(ctx, tx, req.Owner, actions, req.utterance(), loc)
		if err != nil {
			return err
		}

		analyzer := a.analyzer.In(tx)
		dates := append(result.AffectedDates(loc), analyzer.Today(ctx, req.Owner))
		for _, date := range dates {
			if _, err := analyzer.UpdateDailyStats(ctx, req.Owner, date); err != nil {
				return fmt.Errorf("update daily stats: %w", err)
			}
		}

		message := assistantMessage(actions.Message)
		_, err = tx.AppendMessage(ctx, req.Owner, model.RoleAssistant, message, model.KindText,
			model.SummaryMeta(result.Summary(actions)))
		return err
	})
	if err != nil {
		log.Error("reconcile", zap.Error(err))
		reply := emptyReply(turn, storageFailureMessage)
		reply.Error = "storage failure"
		return reply, err
	}

	summary := result.Summary(actions)
	reply := emptyReply(turn, assistantMessage(actions.Message))
	reply.TasksCreated = summary.Created
	reply.TasksUpdated = summary.Updated
	reply.TasksDeleted = summary.Deleted
	reply.MemoriesSaved = summary.MemoriesSaved
	reply.ClarifyingQuestions = summary.ClarifyingQuestions
	reply.Tips = summary.Tips
	reply.LoadWarning = summary.LoadWarning

	log.Info("turn handled",
		zap.Int("created", len(reply.TasksCreated)),
		zap.Int("updated", len(reply.TasksUpdated)),
		zap.Int("deleted", len(reply.TasksDeleted)),
	)
	return reply, nil
}

// retry asks once for a JSON-only answer. The first answer is kept when the
// follow-up fails or still has no JSON in it.
func (a *Agent) retry(ctx context.Context, log *zap.Logger, system string, turns []llm.Turn, first string) string {
	followUp := append(append([]llm.Turn(nil), turns...),
		llm.Turn{Role: llm.RoleAssistant, Text: first},
		llm.Turn{Role: llm.RoleUser, Text: correctiveInstruction},
	)
	second, err := a.backend.Complete(ctx, system, followUp)
	if err != nil {
		log.Warn("corrective retry failed", zap.Error(err))
		return first
	}
	if !HasJSONMarkers(second) {
		log.Debug("corrective retry returned no JSON")
		return first
	}
	return second
}

// HandleVoice transcribes audio and handles the transcript as a voice turn.
func (a *Agent) HandleVoice(ctx context.Context, owner int64, audio []byte, filename string) (Reply, error) {
	transcript, err := a.transcribe(ctx, audio, filename)
	if err != nil {
		a.logger.Warn("transcription failed", zap.Int64("owner", owner), zap.Error(err))
		if _, saveErr := a.store.AppendMessage(ctx, owner, model.RoleUser, voicePlaceholder, model.KindVoice,
			model.ErrorMeta(err.Error())); saveErr != nil {
			return emptyReply("", storageFailureMessage), fmt.Errorf("save voice turn: %w", saveErr)
		}
		reply := emptyReply("", voiceFailureMessage)
		reply.Error = err.Error()
		return reply, nil
	}

	reply, err := a.Handle(ctx, Request{Owner: owner, Text: transcript, Kind: model.KindVoice})
	reply.Transcript = transcript
	return reply, err
}

func (a *Agent) transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if a.transcriber == nil {
		return "", ErrNoTranscriber
	}
	transcript, err := a.transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(transcript) == "" {
		return "", errors.New("empty transcript")
	}
	return transcript, nil
}

func historyTurns(history []model.ConversationMessage) []llm.Turn {
	turns := make([]llm.Turn, 0, len(history)+1)
	for _, msg := range history {
		role := llm.RoleUser
		if msg.Role == model.RoleAssistant {
			role = llm.RoleAssistant
		}
		turns = append(turns, llm.Turn{Role: role, Text: msg.Content})
	}
	return turns
}

func assistantMessage(message string) string {
	if strings.TrimSpace(message) == "" {
		return "Done."
	}
	return message
}
