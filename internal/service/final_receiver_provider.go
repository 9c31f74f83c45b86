package service

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fundflow/be-fund-requests/internal/repository"
)

// FinalReceiverProvider computes the audience of users who receive a request
// once it reaches terminal approval. Final receivers are a notification
// audience, so the merge is deliberately broad: three independent channels,
// each an OR of scoping paths, unioned and de-duplicated.
type FinalReceiverProvider struct {
	workflows WorkflowStore
	directory ReceiverDirectory
	log       zerolog.Logger
}

// NewFinalReceiverProvider creates a provider.
func NewFinalReceiverProvider(workflows WorkflowStore, directory ReceiverDirectory, log zerolog.Logger) *FinalReceiverProvider {
	return &FinalReceiverProvider{workflows: workflows, directory: directory, log: log}
}

// GetFinalReceivers returns the distinct users who must receive the finished
// request, ordered by name then id. An empty audience is not an error.
//
// Channels, merged first-occurrence-wins by user id:
//  1. users holding a designation id carried by a final-flagged step
//  2. users whose designation name matches a final-flagged step's name or a
//     legacy per-workflow receiver name
//  3. users explicitly listed by id on legacy receiver rows
//
// Each channel is scoped independently by department (exact) and project
// (legacy direct column OR email membership).
func (p *FinalReceiverProvider) GetFinalReceivers(
	ctx context.Context,
	workflowID int64,
	projectID, departmentID *int64,
) ([]*repository.User, error) {
	wf, err := p.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	var designationIDs []int64
	var names []string
	var explicitIDs []int64

	for _, step := range wf.Steps {
		if !step.IsFinalReceiver {
			continue
		}
		if step.DesignationID != nil {
			designationIDs = append(designationIDs, *step.DesignationID)
		}
		if name := strings.TrimSpace(step.Name); name != "" {
			names = append(names, name)
		}
	}
	for _, recv := range wf.FinalReceivers {
		if recv.ReceiverName != nil && strings.TrimSpace(*recv.ReceiverName) != "" {
			names = append(names, strings.TrimSpace(*recv.ReceiverName))
		}
		if recv.UserID != nil {
			explicitIDs = append(explicitIDs, *recv.UserID)
		}
	}

	scope := repository.ReceiverScope{DepartmentID: departmentID}
	if projectID != nil && *projectID > 0 {
		scope.ProjectID = projectID
	}

	byDesignation, err := p.directory.FinalReceiversByDesignationIDs(ctx, designationIDs, scope)
	if err != nil {
		return nil, err
	}
	byName, err := p.directory.FinalReceiversByNames(ctx, names, scope)
	if err != nil {
		return nil, err
	}
	byID, err := p.directory.FinalReceiversByIDs(ctx, explicitIDs, scope)
	if err != nil {
		return nil, err
	}

	receivers := distinctByID(byDesignation, byName, byID)
	sort.Slice(receivers, func(i, j int) bool {
		if receivers[i].Name != receivers[j].Name {
			return receivers[i].Name < receivers[j].Name
		}
		return receivers[i].ID < receivers[j].ID
	})

	p.log.Debug().
		Int64("workflow_id", workflowID).
		Int("receivers", len(receivers)).
		Msg("Final receivers computed")

	return receivers, nil
}

// distinctByID merges channels keeping the first occurrence of each user id.
func distinctByID(channels ...[]*repository.User) []*repository.User {
	seen := make(map[int64]bool)
	merged := make([]*repository.User, 0)
	for _, channel := range channels {
		for _, u := range channel {
			if seen[u.ID] {
				continue
			}
			seen[u.ID] = true
			merged = append(merged, u)
		}
	}
	return merged
}
