// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tasks

import (
	"context"
	"slices"

	"github.com/bureau-foundation/rlm/lib/gateway"
	"github.com/bureau-foundation/rlm/lib/task"
)

const (
	entityChunkSize = 2000
	entityOverlap   = 100
	maxEntityChunks = 5
)

// Entities groups extracted names by kind, deduplicated in order of
// first appearance.
type Entities struct {
	People        []string `json:"people"`
	Organizations []string `json:"organizations"`
	Locations     []string `json:"locations"`
	Dates         []string `json:"dates"`
}

func (entities *Entities) merge(other Entities) {
	entities.People = appendUnique(entities.People, other.People)
	entities.Organizations = appendUnique(entities.Organizations, other.Organizations)
	entities.Locations = appendUnique(entities.Locations, other.Locations)
	entities.Dates = appendUnique(entities.Dates, other.Dates)
}

func appendUnique(existing, additions []string) []string {
	for _, addition := range additions {
		if addition != "" && !slices.Contains(existing, addition) {
			existing = append(existing, addition)
		}
	}
	return existing
}

// EntityExtraction is the result of ExtractEntities.
type EntityExtraction struct {
	Entities Entities       `json:"entities"`
	Metadata EntityMetadata `json:"metadata"`
}

type EntityMetadata struct {
	ChunksProcessed int `json:"chunks_processed"`
	DocumentLength  int `json:"document_length"`
}

func (extraction EntityExtraction) snapshot() EntityExtraction {
	extraction.Entities = Entities{
		People:        slices.Clone(extraction.Entities.People),
		Organizations: slices.Clone(extraction.Entities.Organizations),
		Locations:     slices.Clone(extraction.Entities.Locations),
		Dates:         slices.Clone(extraction.Entities.Dates),
	}
	return extraction
}

// ExtractEntities walks the first five overlapping 2000-character
// windows and merges the entities the model names in each.
func ExtractEntities(ctx context.Context, session *task.Session) (any, error) {
	navigator := session.Navigator()
	extraction := EntityExtraction{
		Entities: Entities{People: []string{}, Organizations: []string{}, Locations: []string{}, Dates: []string{}},
		Metadata: EntityMetadata{DocumentLength: navigator.Len()},
	}

	for chunk := range navigator.Chunks(entityChunkSize, entityChunkSize-entityOverlap) {
		if extraction.Metadata.ChunksProcessed >= maxEntityChunks {
			break
		}
		found, err := gateway.InvokeJSONAs(ctx, session.Gateway(),
			`Extract named entities from this text. Return JSON: `+
				`{"people": [...], "organizations": [...], `+
				`"locations": [...], "dates": [...]}`,
			chunk.Text, Entities{})
		if err != nil {
			return nil, err
		}
		extraction.Entities.merge(found)
		extraction.Metadata.ChunksProcessed++
		session.Checkpoint(extraction.snapshot())
	}

	return extraction.snapshot(), nil
}
