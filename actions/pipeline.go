package actions

import (
	"context"

	"github.com/charmbracelet/log"

	"voxjam/etc"
	"voxjam/session"
)

// Store archives executed actions; nil disables archiving.
type Store interface {
	SaveAction(
		ctx context.Context,
		sessionID, actionID, actionType, description, externalRef string,
	) error
}

type PipelineConfig struct {
	QueueSize     int
	MinConfidence float64
}

type job struct {
	sess     *session.Session
	sentence string
}

// Pipeline is the bounded handoff between the connection loop and
// action processing. Dispatch never blocks; when the queue is full the
// utterance is dropped and the caller told so.
type Pipeline struct {
	extractor Extractor
	executor  *Executor
	store     Store
	cfg       PipelineConfig
	jobs      chan job
	logger    *log.Logger
}

func NewPipeline(
	extractor Extractor,
	executor *Executor,
	store Store,
	cfg PipelineConfig,
	logger *log.Logger,
) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		executor:  executor,
		store:     store,
		cfg:       cfg,
		jobs:      make(chan job, cfg.QueueSize),
		logger:    logger,
	}
}

// Dispatch queues one finalized utterance. Reports false on a full
// queue so the caller can log the drop.
func (p *Pipeline) Dispatch(sess *session.Session, sentence string) bool {
	select {
	case p.jobs <- job{sess: sess, sentence: sentence}:
		return true
	default:
		return false
	}
}

// Start runs the worker until ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case j := <-p.jobs:
				p.process(ctx, j)
			}
		}
	}()
}

func (p *Pipeline) process(ctx context.Context, j job) {
	logger := p.logger.With("session_id", j.sess.ID())

	acts, err := p.extractor.ExtractActions(ctx, j.sentence)
	if err != nil {
		logger.Error("action extraction failed", "error", err)
		return
	}

	for _, act := range acts {
		if act.Confidence < p.cfg.MinConfidence {
			logger.Debug(
				"skipping low-confidence action",
				"type", act.Type,
				"confidence", act.Confidence,
			)
			continue
		}

		exec, err := p.executor.Execute(ctx, act)
		if err != nil {
			logger.Warn(
				"action execution failed",
				"type", act.Type,
				"error", err,
			)
			continue
		}

		id := etc.NewFreshID()
		j.sess.RecordExecutedAction(id, act.Type, act.Description, exec.ExternalRef)
		logger.Info(
			"action executed",
			"action_id", id,
			"type", act.Type,
			"status", exec.Status,
		)

		if p.store != nil {
			if err := p.store.SaveAction(
				ctx, j.sess.ID(), id, act.Type, act.Description, exec.ExternalRef,
			); err != nil {
				logger.Warn("archiving action failed", "error", err)
			}
		}
	}
}
