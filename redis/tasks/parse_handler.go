package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/blobstore"
	"github.com/Vector/vector-docparse/bus"
	"github.com/Vector/vector-docparse/tlmt"
)

// Progress milestones on a 0-100 scale. Parser progress is mapped into the
// range between parseStart and parseEnd.
const (
	progressTotal = 100
	parseStart    = 10
	parseEnd      = 90
)

func (h *Handler) processParseTask(ctx context.Context, task *asynq.Task) (err error) {
	payload, err := DecodeParsePayload(task.Payload())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if err := payload.Validate(); err != nil {
		return fmt.Errorf("invalid parse payload: %v: %w", err, asynq.SkipRetry)
	}

	log := h.log.With(
		zap.String("job_id", payload.JobID),
		zap.Int64("file_id", payload.FileID),
	)

	h.publish(ctx, log, bus.Event{Type: bus.EventStarted}, payload)

	defer func() {
		if err == nil {
			return
		}

		log.Warn("parse failed", zap.Error(err))
		h.publish(context.WithoutCancel(ctx), log, bus.Event{Type: bus.EventFailed, Error: err.Error()}, payload)
		h.track(ctx, tlmt.EventParseFailed, payload, nil)
	}()

	result, err := h.parse(ctx, log, payload)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("parse interrupted: %v: %w", ctxErr, asynq.SkipRetry)
		}

		return err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal parse result: %w", err)
	}

	if w := task.ResultWriter(); w != nil {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write parse result: %w", err)
		}
	}

	if err := h.progress.Clear(ctx, payload.JobID); err != nil {
		log.Debug("failed to clear progress", zap.Error(err))
	}

	log.Info("parse complete",
		zap.Int("content_length", result.ContentLength),
		zap.Int("sections", result.Sections),
	)

	h.publish(ctx, log, bus.Event{Type: bus.EventSucceeded, ContentLength: result.ContentLength}, payload)
	h.track(ctx, tlmt.EventParseCompleted, payload, map[string]any{
		"content_length": result.ContentLength,
		"sections":       result.Sections,
	})

	return nil
}

func (h *Handler) parse(ctx context.Context, log *zap.Logger, payload ParsePayload) (*ParseResult, error) {
	parser, err := h.registry.For(payload.Filename)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", payload.Filename, err, asynq.SkipRetry)
	}

	h.report(ctx, log, payload.JobID, 0, "opening file")

	obj, err := h.blobs.Open(ctx, payload.StorageKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("source file missing: %v: %w", err, asynq.SkipRetry)
		}

		return nil, fmt.Errorf("failed to open source file: %w", err)
	}

	defer obj.Body.Close()

	h.report(ctx, log, payload.JobID, parseStart, "parsing")

	doc, err := parser.Parse(ctx, obj.Body, func(current, total int) {
		h.report(ctx, log, payload.JobID, scale(current, total), "parsing")
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}

		return nil, fmt.Errorf("failed to parse %s: %v: %w", payload.Filename, err, asynq.SkipRetry)
	}

	h.report(ctx, log, payload.JobID, parseEnd, "storing text")

	key := TextKey(payload.FileID, payload.JobID)

	err = h.blobs.Put(ctx, key, strings.NewReader(doc.Text), int64(len(doc.Text)), "text/plain; charset=utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to store extracted text: %w", err)
	}

	h.report(ctx, log, payload.JobID, progressTotal, "parse complete")

	return &ParseResult{
		ContentLength: len(doc.Text),
		Sections:      doc.Sections,
		TextKey:       key,
	}, nil
}

func scale(current, total int) int {
	if total <= 0 {
		return parseStart
	}

	if current > total {
		current = total
	}

	return parseStart + (parseEnd-parseStart)*current/total
}

// report is best effort; a progress store outage must not fail the parse.
func (h *Handler) report(ctx context.Context, log *zap.Logger, jobID string, current int, status string) {
	if err := h.progress.Report(ctx, jobID, current, progressTotal, status); err != nil {
		log.Debug("failed to report progress", zap.Error(err))
	}
}

func (h *Handler) publish(ctx context.Context, log *zap.Logger, evt bus.Event, payload ParsePayload) {
	evt.JobID = payload.JobID
	evt.FileID = payload.FileID
	evt.RequesterID = payload.RequesterID
	evt.At = h.now().UTC()

	if err := h.events.Publish(ctx, evt); err != nil {
		log.Warn("failed to publish job event", zap.String("type", evt.Type), zap.Error(err))
	}
}

func (h *Handler) track(ctx context.Context, name string, payload ParsePayload, props map[string]any) {
	if props == nil {
		props = make(map[string]any)
	}

	props["format"] = strings.ToLower(fileExt(payload.Filename))

	_ = h.telemetry.Send(ctx, tlmt.NewEvent(name, props))
}

func fileExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}

	return ""
}
