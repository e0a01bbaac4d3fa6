package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ebarkov/veriflow/pkg/models"
	"github.com/ebarkov/veriflow/pkg/otelhelper"
)

// importBundleSchema validates an import payload before any entry is
// materialized. Bundles come from external systems, so every structural
// rule is enforced here rather than deep in the creation path.
const importBundleSchema = `{
	"type": "object",
	"required": ["documents"],
	"properties": {
		"documents": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["title", "recipient_id", "stages"],
				"properties": {
					"title": {"type": "string", "minLength": 1},
					"body": {"type": "string"},
					"recipient_id": {"type": "integer", "minimum": 1},
					"responsible_id": {"type": "integer", "minimum": 1},
					"watchers": {
						"type": "array",
						"items": {"type": "integer", "minimum": 1}
					},
					"stages": {
						"type": "array",
						"minItems": 1,
						"items": {
							"type": "object",
							"required": ["assignee_id", "action"],
							"properties": {
								"assignee_id": {"type": "integer", "minimum": 1},
								"action": {"enum": ["approve", "sign", "review"]},
								"instruction": {"type": "string"},
								"can_skip": {"type": "boolean"},
								"comment_required": {"type": "boolean"}
							}
						}
					}
				}
			}
		}
	}
}`

// ImportRequest carries a raw document bundle from an external system.
type ImportRequest struct {
	ActorID int64
	Payload []byte
}

type importBundle struct {
	Documents []importDocument `json:"documents"`
}

type importDocument struct {
	Title         string        `json:"title"`
	Body          string        `json:"body"`
	RecipientID   int64         `json:"recipient_id"`
	ResponsibleID *int64        `json:"responsible_id"`
	Watchers      []int64       `json:"watchers"`
	Stages        []importStage `json:"stages"`
}

// referencedUserIDs collects every user id named anywhere in the bundle,
// deduplicated, for one set-difference existence check.
func (b *importBundle) referencedUserIDs() []int64 {
	seen := make(map[int64]bool)
	ids := make([]int64, 0)

	add := func(id int64) {
		if id == 0 || seen[id] {
			return
		}

		seen[id] = true
		ids = append(ids, id)
	}

	for _, entry := range b.Documents {
		add(entry.RecipientID)

		if entry.ResponsibleID != nil {
			add(*entry.ResponsibleID)
		}

		for _, watcher := range entry.Watchers {
			add(watcher)
		}

		for _, stage := range entry.Stages {
			add(stage.AssigneeID)
		}
	}

	return ids
}

type importStage struct {
	AssigneeID      int64             `json:"assignee_id"`
	Action          models.TaskAction `json:"action"`
	Instruction     string            `json:"instruction"`
	CanSkip         bool              `json:"can_skip"`
	CommentRequired bool              `json:"comment_required"`
}

// Import materializes a bundle of externally-sourced documents through
// the regular creation path. It is an audit-sensitive operation: the
// guard runs before anything else, so an active audit session vetoes the
// whole bundle regardless of the caller's role.
func (d *Document) Import(ctx context.Context, req ImportRequest) ([]*models.Document, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "document.import",
		attribute.Int64(otelhelper.ActorIDKey, req.ActorID))
	defer span.End()

	err := d.audit.Guard(ctx, "document.import")
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	actor, err := d.persistence.Users().GetByID(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}

	if !actor.IsPrivileged() {
		return nil, ErrNotAuthorized
	}

	bundle, err := d.parseBundle(req.Payload)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	// Documents are never deleted, so a half-imported bundle cannot be
	// rolled back. Validate every reference across the whole bundle
	// before the first entry is materialized.
	missing, err := d.persistence.Users().MissingIDs(ctx, bundle.referencedUserIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to validate bundle references: %w", err)
	}

	if len(missing) > 0 {
		err = fmt.Errorf("%w: %v", ErrUnknownUsers, missing)
		otelhelper.SetError(span, err)

		return nil, err
	}

	docs := make([]*models.Document, 0, len(bundle.Documents))

	for i, entry := range bundle.Documents {
		stages := make([]StageDefinition, 0, len(entry.Stages))
		for _, stage := range entry.Stages {
			stages = append(stages, StageDefinition{
				AssigneeID:      stage.AssigneeID,
				Action:          stage.Action,
				Instruction:     stage.Instruction,
				CanSkip:         stage.CanSkip,
				CommentRequired: stage.CommentRequired,
			})
		}

		doc, err := d.Create(ctx, CreateDocumentRequest{
			ActorID:       req.ActorID,
			Title:         entry.Title,
			Body:          entry.Body,
			RecipientID:   entry.RecipientID,
			ResponsibleID: entry.ResponsibleID,
			Stages:        stages,
			Watchers:      entry.Watchers,
		})
		if err != nil {
			otelhelper.SetError(span, err)

			return nil, fmt.Errorf("bundle entry %d: %w", i, err)
		}

		docs = append(docs, doc)
	}

	d.logger.InfoContext(ctx, "document bundle imported",
		"count", len(docs), "actor_id", req.ActorID)

	return docs, nil
}

// parseBundle validates the payload against the bundle schema, then
// decodes it.
func (d *Document) parseBundle(payload []byte) (*importBundle, error) {
	schemaLoader := gojsonschema.NewStringLoader(importBundleSchema)
	dataLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidImport, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidImport, strings.Join(details, "; "))
	}

	var bundle importBundle

	err = json.Unmarshal(payload, &bundle)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidImport, err)
	}

	return &bundle, nil
}
