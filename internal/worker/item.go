package worker

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/social-harvester/internal/crawler"
	"github.com/JakeFAU/social-harvester/internal/eligibility"
	"github.com/JakeFAU/social-harvester/internal/message"
	"github.com/JakeFAU/social-harvester/internal/metrics"
)

// Optional fields a Page Source may not expose for every candidate.
const (
	FieldLanguage  = "language"
	FieldApplyFlag = "apply_flag"
)

type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeSkip
	outcomeDuplicate
	outcomeIgnored
	outcomeUndelivered
	outcomeAbort
)

func (k outcomeKind) String() string {
	switch k {
	case outcomeOK:
		return "notified"
	case outcomeSkip:
		return "skipped"
	case outcomeDuplicate:
		return "duplicate"
	case outcomeIgnored:
		return "ignored"
	case outcomeUndelivered:
		return "undelivered"
	case outcomeAbort:
		return "aborted"
	default:
		return "unknown"
	}
}

// itemOutcome is the tagged result of processing one candidate.
type itemOutcome struct {
	kind   outcomeKind
	reason string
	err    error
}

func skip(reason string, err error) itemOutcome {
	return itemOutcome{kind: outcomeSkip, reason: reason, err: err}
}

// failure maps a Page Source error onto Skip or Abort.
func failure(reason string, err error) itemOutcome {
	if crawler.Classify(err) == crawler.ClassPageAbort {
		return itemOutcome{kind: outcomeAbort, reason: reason, err: err}
	}
	return skip(reason, err)
}

func (w *Worker) processItem(ctx context.Context, run *taskRun, handle crawler.ItemHandle) itemOutcome {
	id, err := handle.Identifier(ctx)
	if err != nil {
		return failure("identifier", err)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return skip("empty identifier", nil)
	}

	if !run.req.ForceRepeat {
		seen, err := w.deps.Dedup.Exists(ctx, id)
		if err != nil {
			return skip("dedup lookup", err)
		}
		if seen {
			return itemOutcome{kind: outcomeDuplicate}
		}
	}
	if err := w.deps.Dedup.Mark(ctx, id, w.cfg.DedupTTL); err != nil {
		return skip("dedup mark", err)
	}

	candidate, out, ok := w.extract(ctx, run, handle, id)
	if !ok {
		return out
	}

	decision := eligibility.Evaluate(candidate, eligibility.CriteriaFor(run.target, w.cfg.BlockedKeywords))
	now := w.deps.Clock.Now()
	if !decision.Eligible {
		ignored := crawler.IgnoredRecord{
			ChannelID:  run.target.ID,
			Identifier: id,
			Fields:     candidate.Fields,
			Reason:     decision.Reason,
			CreatedAt:  now,
		}
		if err := w.deps.Records.CreateIgnored(ctx, ignored); err != nil {
			run.logger.Warn("store ignored record failed", zap.String("identifier", id), zap.Error(err))
		}
		return itemOutcome{kind: outcomeIgnored, reason: decision.Reason}
	}

	body := message.Render(run.target.MessageTemplate, candidate)
	record := crawler.Record{
		ChannelID:  run.target.ID,
		Identifier: id,
		Body:       body,
		Metadata:   candidate.Fields,
		CreatedAt:  now,
	}
	if err := w.deps.Records.Create(ctx, record); err != nil {
		run.logger.Warn("store record failed", zap.String("identifier", id), zap.Error(err))
	}

	if err := w.deps.Notifier.Send(ctx, body, run.target.OutputDestination); err != nil {
		metrics.ObserveNotification("error")
		run.logger.Warn("notify failed",
			zap.String("identifier", id),
			zap.String("class", crawler.ClassTransient.String()),
			zap.Error(fmt.Errorf("%w: %v", crawler.ErrNotifierFailed, err)),
		)
		return itemOutcome{kind: outcomeUndelivered, err: err}
	}
	metrics.ObserveNotification("ok")
	return itemOutcome{kind: outcomeOK}
}

// extract reads the configured fields plus the optional language and apply
// flag. A missing configured field skips the candidate.
func (w *Worker) extract(
	ctx context.Context,
	run *taskRun,
	handle crawler.ItemHandle,
	id string,
) (crawler.CandidateItem, itemOutcome, bool) {
	candidate := crawler.CandidateItem{Identifier: id, Fields: make(map[string]string, len(run.platform.Fields))}
	for _, name := range run.platform.Fields {
		text, err := handle.Field(ctx, name)
		if err != nil {
			return candidate, failure("field "+name, err), false
		}
		candidate.Fields[name] = strings.TrimSpace(text)
	}

	lang, err := optionalField(ctx, handle, FieldLanguage)
	if err != nil {
		return candidate, failure("field "+FieldLanguage, err), false
	}
	candidate.Language = lang

	flag, err := optionalField(ctx, handle, FieldApplyFlag)
	if err != nil {
		return candidate, failure("field "+FieldApplyFlag, err), false
	}
	candidate.ApplyFlag = truthy(flag)
	return candidate, itemOutcome{}, true
}

func optionalField(ctx context.Context, handle crawler.ItemHandle, name string) (string, error) {
	text, err := handle.Field(ctx, name)
	if err != nil {
		if crawler.Classify(err) == crawler.ClassPerItem {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func truthy(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "", "0", "false", "no":
		return false
	default:
		return true
	}
}
