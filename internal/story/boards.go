package story

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"cycletrack/internal/event"
)

// Field reference names read from and written to work items.
const (
	FieldArea        = "System.AreaLevel3"
	FieldIteration   = "System.IterationLevel3"
	FieldState       = "System.State"
	FieldType        = "System.WorkItemType"
	FieldTitle       = "System.Title"
	FieldPoints      = "Microsoft.VSTS.Scheduling.StoryPoints"
	FieldColumn      = "System.BoardColumn"
	FieldTags        = "System.Tags"
	FieldDescription = "System.Description"
)

// workItem is the subset of `az boards work-item show` output we decode.
type workItem struct {
	ID     json.Number `json:"id"`
	URL    string      `json:"url"`
	Fields struct {
		Area        string              `json:"System.AreaLevel3"`
		Iteration   string              `json:"System.IterationLevel3"`
		State       string              `json:"System.State"`
		Type        string              `json:"System.WorkItemType"`
		Title       string              `json:"System.Title"`
		Points      decimal.NullDecimal `json:"Microsoft.VSTS.Scheduling.StoryPoints"`
		Column      string              `json:"System.BoardColumn"`
		Tags        string              `json:"System.Tags"`
		Description string              `json:"System.Description"`
	} `json:"fields"`
}

// AzureBoards reads and updates work items through the az CLI.
//
// It implements [Lookup]. Mutating methods keep the board in step with the
// event log: see [AzureBoards.Apply].
type AzureBoards struct {
	runner Runner
	log    *logrus.Entry
}

// NewAzureBoards creates an [AzureBoards] that executes az through runner.
func NewAzureBoards(runner Runner, log *logrus.Entry) *AzureBoards {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &AzureBoards{runner: runner, log: log.WithField("cmp", "boards")}
}

// Fetch loads a work item. A missing or deleted item yields [ErrNotFound].
func (b *AzureBoards) Fetch(ctx context.Context, trackerID string) (Detail, error) {
	out, err := b.runner.Run(ctx, "boards", "work-item", "show", "--id", trackerID, "--output", "json")
	if err != nil {
		if missingWorkItem(err) {
			return Detail{}, fmt.Errorf("%w: %s: %v", ErrNotFound, trackerID, err)
		}
		return Detail{}, fmt.Errorf("show work item %s: %w", trackerID, err)
	}
	return decodeWorkItem(trackerID, out)
}

// az reports an unknown id as TF401232 on stderr, which [CommandRunner]
// folds into the error text.
func missingWorkItem(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "tf401232") || strings.Contains(msg, "does not exist")
}

func decodeWorkItem(trackerID string, out []byte) (Detail, error) {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" || trimmed == "null" {
		return Detail{}, fmt.Errorf("%w: %s", ErrNotFound, trackerID)
	}

	var wi workItem
	if err := json.Unmarshal([]byte(trimmed), &wi); err != nil {
		return Detail{}, fmt.Errorf("decode work item %s: %w", trackerID, err)
	}

	id := wi.ID.String()
	if id == "" {
		id = trackerID
	}
	tags := SplitTags(wi.Fields.Tags)
	d := Detail{
		ID:          id,
		URL:         wi.URL,
		Type:        wi.Fields.Type,
		Title:       wi.Fields.Title,
		Area:        wi.Fields.Area,
		Iteration:   wi.Fields.Iteration,
		State:       wi.Fields.State,
		Column:      wi.Fields.Column,
		Description: wi.Fields.Description,
		Points:      wi.Fields.Points,
		Tags:        tags,
	}
	d.Blocked = d.HasTag(TagBlocked)
	d.Stopped = d.HasTag(TagStopped)
	return d, nil
}

// SplitTags parses the board's "a; b; c" tag string.
func SplitTags(s string) []string {
	var tags []string
	for _, part := range strings.Split(s, ";") {
		if t := strings.TrimSpace(part); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// JoinTags is the inverse of [SplitTags].
func JoinTags(tags []string) string {
	return strings.Join(tags, "; ")
}

// Apply mirrors a recorded event onto the work item.
//
//	start, restart, resume  -> state Active (resume also clears pause tags)
//	finish                  -> state Resolved
//	block, stop             -> add Blocked / Stopped tag
//	reject, qa_*            -> comment only
//
// comment, when non-empty, is added to the discussion.
func (b *AzureBoards) Apply(ctx context.Context, trackerID string, kind event.Kind, comment string) error {
	log := b.log.WithFields(logrus.Fields{"id": trackerID, "event": kind})

	switch kind {
	case event.KindStart, event.KindRestart:
		if err := b.setState(ctx, trackerID, StateActive); err != nil {
			return err
		}
	case event.KindFinish:
		if err := b.setState(ctx, trackerID, StateResolved); err != nil {
			return err
		}
	case event.KindBlock:
		if err := b.addTag(ctx, trackerID, TagBlocked); err != nil {
			return err
		}
	case event.KindStop:
		if err := b.addTag(ctx, trackerID, TagStopped); err != nil {
			return err
		}
	case event.KindResume:
		if err := b.removeTags(ctx, trackerID, TagBlocked, TagStopped); err != nil {
			return err
		}
	}

	if strings.TrimSpace(comment) != "" {
		if err := b.AddComment(ctx, trackerID, comment); err != nil {
			return err
		}
	}
	log.Debug("board updated")
	return nil
}

// AddComment posts text to the work item's discussion.
func (b *AzureBoards) AddComment(ctx context.Context, trackerID, text string) error {
	return b.update(ctx, trackerID, "--discussion", text)
}

// SetPoints sets the story point estimate.
func (b *AzureBoards) SetPoints(ctx context.Context, trackerID string, points decimal.Decimal) error {
	return b.update(ctx, trackerID, "--fields", FieldPoints+"="+points.String())
}

// Open shows the work item in the browser.
func (b *AzureBoards) Open(ctx context.Context, trackerID string) error {
	if _, err := b.runner.Run(ctx, "boards", "work-item", "show", "--id", trackerID, "--open"); err != nil {
		return fmt.Errorf("open work item %s: %w", trackerID, err)
	}
	return nil
}

func (b *AzureBoards) setState(ctx context.Context, trackerID, state string) error {
	return b.update(ctx, trackerID, "--state", state)
}

func (b *AzureBoards) addTag(ctx context.Context, trackerID, tag string) error {
	d, err := b.Fetch(ctx, trackerID)
	if err != nil {
		return err
	}
	if d.HasTag(tag) {
		return nil
	}
	return b.update(ctx, trackerID, "--fields", FieldTags+"="+JoinTags(append(d.Tags, tag)))
}

func (b *AzureBoards) removeTags(ctx context.Context, trackerID string, remove ...string) error {
	d, err := b.Fetch(ctx, trackerID)
	if err != nil {
		return err
	}

	kept := make([]string, 0, len(d.Tags))
	changed := false
	for _, t := range d.Tags {
		drop := false
		for _, r := range remove {
			if strings.EqualFold(t, r) {
				drop = true
				break
			}
		}
		if drop {
			changed = true
			continue
		}
		kept = append(kept, t)
	}
	if !changed {
		return nil
	}
	return b.update(ctx, trackerID, "--fields", FieldTags+"="+JoinTags(kept))
}

func (b *AzureBoards) update(ctx context.Context, trackerID string, args ...string) error {
	full := append([]string{"boards", "work-item", "update", "--id", trackerID}, args...)
	if _, err := b.runner.Run(ctx, full...); err != nil {
		return fmt.Errorf("update work item %s: %w", trackerID, err)
	}
	return nil
}
