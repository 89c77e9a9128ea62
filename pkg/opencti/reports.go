package opencti

import (
	"context"
	"fmt"

	"github.com/samvad-hq/report-enhancer/internal/domain"
)

const (
	aboutQuery = `query About { about { version } }`

	reportsQuery = `query Reports($first: Int, $after: ID) {
  reports(first: $first, after: $after, orderBy: created, orderMode: desc) {
    edges {
      node {
        id
        name
        description
        report_types
        objectLabel { id value color }
        externalReferences { edges { node { url } } }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

	fieldPatchMutation = `mutation ReportFieldPatch($id: ID!, $input: [EditInput]!) {
  stixDomainObjectEdit(id: $id) { fieldPatch(input: $input) { id } }
}`

	labelAddMutation = `mutation LabelAdd($input: LabelAddInput!) {
  labelAdd(input: $input) { id }
}`

	relationAddMutation = `mutation ReportAddLabel($id: ID!, $input: StixRefRelationshipAddInput!) {
  stixDomainObjectEdit(id: $id) { relationAdd(input: $input) { id } }
}`

	importPushMutation = `mutation ImportPush($id: ID!, $file: Upload!) {
  stixDomainObjectEdit(id: $id) { importPush(file: $file) { id name } }
}`
)

type reportNode struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	ReportTypes        []string       `json:"report_types"`
	ObjectLabel        []domain.Label `json:"objectLabel"`
	ExternalReferences struct {
		Edges []struct {
			Node struct {
				URL string `json:"url"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"externalReferences"`
}

type reportsPage struct {
	Reports struct {
		Edges []struct {
			Node reportNode `json:"node"`
		} `json:"edges"`
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
	} `json:"reports"`
}

func (n reportNode) toDomain() domain.Report {
	r := domain.Report{
		ID:          n.ID,
		Name:        n.Name,
		Description: n.Description,
		ReportTypes: n.ReportTypes,
		Labels:      n.ObjectLabel,
	}
	for _, e := range n.ExternalReferences.Edges {
		if e.Node.URL != "" {
			r.ExternalURLs = append(r.ExternalURLs, e.Node.URL)
		}
	}
	return r
}

func (c *Client) reportsPage(ctx context.Context, first int, after string) (reportsPage, error) {
	vars := map[string]any{"first": first}
	if after != "" {
		vars["after"] = after
	}
	var page reportsPage
	if err := c.Query(ctx, reportsQuery, vars, &page); err != nil {
		return reportsPage{}, fmt.Errorf("list reports: %w", err)
	}
	return page, nil
}

// LatestReports returns the most recently created reports, newest first.
func (c *Client) LatestReports(ctx context.Context, first int) ([]domain.Report, error) {
	page, err := c.reportsPage(ctx, first, "")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Report, 0, len(page.Reports.Edges))
	for _, e := range page.Reports.Edges {
		out = append(out, e.Node.toDomain())
	}
	return out, nil
}

// AllReports pages through every report in batches. limit bounds the total
// returned; zero means no bound.
func (c *Client) AllReports(ctx context.Context, batch, limit int) ([]domain.Report, error) {
	if batch <= 0 {
		batch = 100
	}
	var (
		out   []domain.Report
		after string
	)
	for {
		page, err := c.reportsPage(ctx, batch, after)
		if err != nil {
			return out, err
		}
		for _, e := range page.Reports.Edges {
			out = append(out, e.Node.toDomain())
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		info := page.Reports.PageInfo
		if !info.HasNextPage || info.EndCursor == "" || len(page.Reports.Edges) == 0 {
			return out, nil
		}
		after = info.EndCursor
		c.log.DebugObj("report page fetched", "opencti_paging", map[string]any{
			"fetched": len(out),
			"cursor":  after,
		})
	}
}
