package fabric

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// DAXResult is the first result table of an executeQueries call, with
// stable column order.
type DAXResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// ExecuteDAX runs a DAX query against a semantic model through the
// Power BI executeQueries endpoint.
func (c *Client) ExecuteDAX(ctx context.Context, datasetID, query string) (DAXResult, error) {
	if datasetID == "" {
		return DAXResult{}, fmt.Errorf("dataset id is required")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return DAXResult{}, fmt.Errorf("query is required")
	}

	body := map[string]any{
		"queries":            []map[string]string{{"query": query}},
		"serializerSettings": map[string]bool{"includeNulls": true},
	}
	var payload struct {
		Results []struct {
			Tables []struct {
				Rows []map[string]any `json:"rows"`
			} `json:"tables"`
			Error *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		} `json:"results"`
	}
	target := c.powerBIURL("/datasets/" + url.PathEscape(datasetID) + "/executeQueries")
	if err := c.do(ctx, http.MethodPost, target, body, &payload); err != nil {
		return DAXResult{}, categorizeDAXError(err)
	}
	if len(payload.Results) == 0 {
		return DAXResult{}, fmt.Errorf("query returned no results")
	}
	result := payload.Results[0]
	if result.Error != nil {
		return DAXResult{}, fmt.Errorf("DAX query failed (%s): %s", result.Error.Code, result.Error.Message)
	}
	if len(result.Tables) == 0 {
		return DAXResult{}, nil
	}

	rows := result.Tables[0].Rows
	columns := columnOrder(rows)
	return DAXResult{Columns: columns, Rows: rows}, nil
}

// columnOrder gives deterministic column names across rows. The service
// keys rows by bracketed column names with no order guarantee.
func columnOrder(rows []map[string]any) []string {
	seen := map[string]struct{}{}
	var columns []string
	for _, row := range rows {
		for column := range row {
			if _, ok := seen[column]; !ok {
				seen[column] = struct{}{}
				columns = append(columns, column)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

// categorizeDAXError attaches guidance to the common failure modes of
// executeQueries.
func categorizeDAXError(err error) error {
	apiErr, ok := err.(*APIError)
	if !ok {
		return err
	}
	switch {
	case apiErr.IsAuth():
		return fmt.Errorf("%w (the caller needs Build permission on the dataset)", apiErr)
	case apiErr.IsNotFound():
		return fmt.Errorf("%w (dataset not found, or not reachable through the Power BI API)", apiErr)
	case apiErr.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w (check the DAX syntax; EVALUATE is required)", apiErr)
	default:
		return apiErr
	}
}
