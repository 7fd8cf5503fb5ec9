// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tasks

import (
	"context"
	"slices"
	"strings"

	"github.com/bureau-foundation/rlm/lib/gateway"
	"github.com/bureau-foundation/rlm/lib/task"
)

const (
	sectionPattern = `(abstract|introduction|summary|conclusion|results|discussion)`
	claimPattern   = `(conclude|finding|result|important|significant|key|critical)`

	headLength     = 500
	tailLength     = 1500
	maxSections    = 10
	maxClaims      = 5
	maxKeyPoints   = 3
	abstractBefore = 50
	abstractAfter  = 1000
	claimBefore    = 100
	claimAfter     = 200
)

// DocumentTypes are the labels analyze_document classifies into.
var DocumentTypes = []string{"research_paper", "report", "article", "documentation", "other"}

// DocumentAnalysis is the result of AnalyzeDocument.
type DocumentAnalysis struct {
	Analysis DocumentFindings `json:"analysis"`
	Metadata DocumentMetadata `json:"metadata"`
}

// DocumentFindings holds what the model extracted. Fields not yet
// reached when a budget stops the task are empty.
type DocumentFindings struct {
	DocumentLength int        `json:"document_length"`
	Title          string     `json:"title,omitempty"`
	DocumentType   string     `json:"document_type,omitempty"`
	Abstract       string     `json:"abstract,omitempty"`
	KeyPoints      []KeyPoint `json:"key_points"`
	Conclusion     string     `json:"conclusion,omitempty"`
}

// KeyPoint is one claim found near a keyword match.
type KeyPoint struct {
	Position   int    `json:"position"`
	Line       int    `json:"line"`
	Claim      string `json:"claim"`
	Confidence string `json:"confidence"`
}

type DocumentMetadata struct {
	SectionsFound  int  `json:"sections_found"`
	ClaimsAnalyzed int  `json:"claims_analyzed"`
	HasAbstract    bool `json:"has_abstract"`
}

func (analysis DocumentAnalysis) snapshot() DocumentAnalysis {
	analysis.Analysis.KeyPoints = slices.Clone(analysis.Analysis.KeyPoints)
	analysis.Metadata.ClaimsAnalyzed = len(analysis.Analysis.KeyPoints)
	analysis.Metadata.HasAbstract = analysis.Analysis.Abstract != ""
	return analysis
}

// AnalyzeDocument reads the title and type from the head, the abstract
// around its heading, up to three key claims around keyword matches, and
// the conclusion from the tail.
func AnalyzeDocument(ctx context.Context, session *task.Session) (any, error) {
	navigator := session.Navigator()
	calls := session.Gateway()

	analysis := DocumentAnalysis{
		Analysis: DocumentFindings{DocumentLength: navigator.Len(), KeyPoints: []KeyPoint{}},
	}

	head := navigator.Head(headLength)
	sections, err := navigator.Search(sectionPattern, maxSections)
	if err != nil {
		return nil, err
	}
	claims, err := navigator.Search(claimPattern, maxClaims)
	if err != nil {
		return nil, err
	}
	analysis.Metadata.SectionsFound = len(sections)
	session.Checkpoint(analysis.snapshot())

	title, err := calls.Invoke(ctx,
		"Extract the document title or main heading from this text. "+
			"Return ONLY the title text, nothing else. "+
			"If no clear title exists, return 'Untitled Document'.",
		head)
	if err != nil {
		return nil, err
	}
	analysis.Analysis.Title = strings.TrimSpace(title)
	session.Checkpoint(analysis.snapshot())

	analysis.Analysis.DocumentType, err = calls.InvokeChoice(ctx,
		"What type of document is this based on the opening?",
		head, DocumentTypes, "other")
	if err != nil {
		return nil, err
	}
	session.Checkpoint(analysis.snapshot())

	for _, section := range sections {
		if !strings.Contains(strings.ToLower(section.Text), "abstract") {
			continue
		}
		abstract, err := calls.Invoke(ctx,
			"Extract the abstract or summary section from this text. "+
				"Return only the abstract content, not the heading.",
			navigator.Around(section, abstractBefore, abstractAfter))
		if err != nil {
			return nil, err
		}
		analysis.Analysis.Abstract = strings.TrimSpace(abstract)
		session.Checkpoint(analysis.snapshot())
		break
	}

	type claimReply struct {
		Claim      string `json:"claim"`
		Confidence string `json:"confidence"`
	}
	for _, match := range claims[:min(len(claims), maxKeyPoints)] {
		reply, err := gateway.InvokeJSONAs(ctx, calls,
			`Extract the key claim or finding from this text. `+
				`Return JSON: {"claim": "the main claim", "confidence": "high|medium|low"}`,
			navigator.Around(match, claimBefore, claimAfter),
			claimReply{Claim: "Unable to extract", Confidence: "low"})
		if err != nil {
			return nil, err
		}
		analysis.Analysis.KeyPoints = append(analysis.Analysis.KeyPoints, KeyPoint{
			Position:   match.Start,
			Line:       match.Line,
			Claim:      reply.Claim,
			Confidence: reply.Confidence,
		})
		session.Checkpoint(analysis.snapshot())
	}

	conclusion, err := calls.Invoke(ctx,
		"Extract the main conclusion or final takeaway from this text. "+
			"Summarize in 1-2 sentences. If no clear conclusion, state that.",
		navigator.Tail(tailLength))
	if err != nil {
		return nil, err
	}
	analysis.Analysis.Conclusion = strings.TrimSpace(conclusion)

	return analysis.snapshot(), nil
}
