package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/herd/internal/account"
	"github.com/hpungsan/herd/internal/campaign"
	"github.com/hpungsan/herd/internal/config"
	"github.com/hpungsan/herd/internal/errors"
	"github.com/hpungsan/herd/internal/ops"
	"github.com/hpungsan/herd/internal/remote"
	"github.com/hpungsan/herd/internal/sink"
)

// Deps are the long-lived services the tools drive.
type Deps struct {
	Manager *campaign.Manager
	Board   *sink.Board // holds progress messages of campaigns started here
	Client  *remote.Client
}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db   *sql.DB
	cfg  *config.Config
	deps Deps
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, deps Deps) *Handlers {
	return &Handlers{db: db, cfg: cfg, deps: deps}
}

// Request types for each tool

// CampaignStartRequest represents the arguments for campaign_start.
type CampaignStartRequest struct {
	Owner         string `json:"owner,omitempty"`
	Feature       string `json:"feature"`
	Message       string `json:"message,omitempty"`
	SingleAccount bool   `json:"single_account,omitempty"`
}

// CampaignStopRequest represents the arguments for campaign_stop.
type CampaignStopRequest struct {
	ID      string `json:"id,omitempty"`
	Owner   string `json:"owner,omitempty"`
	Feature string `json:"feature,omitempty"`
}

// CampaignStatusRequest represents the arguments for campaign_status.
type CampaignStatusRequest struct {
	ID    string `json:"id"`
	Owner string `json:"owner,omitempty"`
}

// OwnerRequest represents the arguments of tools that only take an owner.
type OwnerRequest struct {
	Owner string `json:"owner,omitempty"`
}

// TokenAddRequest represents the arguments for token_add.
type TokenAddRequest struct {
	Owner string `json:"owner,omitempty"`
	Token string `json:"token"`
	Name  string `json:"name,omitempty"`
}

// TokenActivateRequest represents the arguments for token_activate.
type TokenActivateRequest struct {
	Owner  string `json:"owner,omitempty"`
	ID     string `json:"id"`
	Active *bool  `json:"active,omitempty"`
}

// TokenRefRequest represents the arguments of tools addressing one token.
type TokenRefRequest struct {
	Owner string `json:"owner,omitempty"`
	ID    string `json:"id"`
}

// FilterSetRequest represents the arguments for filter_set.
type FilterSetRequest struct {
	Owner           string `json:"owner,omitempty"`
	TokenID         string `json:"token_id,omitempty"`
	GenderType      int    `json:"gender_type,omitempty"`
	BirthYearFrom   int    `json:"birth_year_from,omitempty"`
	BirthYearTo     int    `json:"birth_year_to,omitempty"`
	Distance        int    `json:"distance,omitempty"`
	LanguageCodes   string `json:"language_codes,omitempty"`
	NationalityCode string `json:"nationality_code,omitempty"`
}

// FilterGetRequest represents the arguments for filter_get.
type FilterGetRequest struct {
	Owner   string `json:"owner,omitempty"`
	TokenID string `json:"token_id,omitempty"`
}

// LedgerClearRequest represents the arguments for ledger_clear.
type LedgerClearRequest struct {
	Owner    string `json:"owner,omitempty"`
	Category string `json:"category,omitempty"`
}

// CampaignStartResult is returned by campaign_start.
type CampaignStartResult struct {
	ID       string            `json:"id"`
	Owner    string            `json:"owner"`
	Feature  campaign.Feature  `json:"feature"`
	Workers  int               `json:"workers"`
	Snapshot campaign.Snapshot `json:"snapshot"`
}

// CampaignStatusResult is returned by campaign_status.
type CampaignStatusResult struct {
	campaign.Snapshot
	Progress string `json:"progress,omitempty"`
}

// CampaignListResult is returned by campaign_list.
type CampaignListResult struct {
	Items []campaign.Snapshot `json:"items"`
}

// Handler implementations

// HandleCampaignStart handles the campaign_start tool call.
func (h *Handlers) HandleCampaignStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CampaignStartRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if h.deps.Manager == nil {
		return errorResult(errors.NewInternal(fmt.Errorf("campaign manager is not configured"))), nil
	}

	handle, err := h.deps.Manager.Start(ctx, campaign.StartInput{
		Owner:         input.Owner,
		Feature:       campaign.Feature(input.Feature),
		Message:       input.Message,
		SingleAccount: input.SingleAccount,
	})
	if err != nil {
		return errorResult(err), nil
	}

	snap := handle.State().Snapshot()
	return successResult(CampaignStartResult{
		ID:       handle.ID(),
		Owner:    snap.Owner,
		Feature:  snap.Feature,
		Workers:  len(snap.Workers),
		Snapshot: snap,
	})
}

// HandleCampaignStop handles the campaign_stop tool call.
func (h *Handlers) HandleCampaignStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CampaignStopRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if h.deps.Manager == nil {
		return errorResult(errors.NewInternal(fmt.Errorf("campaign manager is not configured"))), nil
	}

	var handle *campaign.Handle
	switch {
	case input.ID != "":
		if _, err := h.ownedCampaign(input.ID, input.Owner); err != nil {
			return errorResult(err), nil
		}
		handle, err = h.deps.Manager.StopByID(input.ID)
	case input.Feature != "":
		f, perr := campaign.ParseFeature(input.Feature)
		if perr != nil {
			return errorResult(errors.NewInvalidRequest(perr.Error())), nil
		}
		handle, err = h.deps.Manager.Stop(input.Owner, f)
	default:
		return errorResult(errors.NewInvalidRequest("id or feature is required")), nil
	}
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(handle.State().Snapshot())
}

// HandleCampaignStatus handles the campaign_status tool call.
func (h *Handlers) HandleCampaignStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CampaignStatusRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ID == "" {
		return errorResult(errors.NewInvalidRequest("id is required")), nil
	}
	if h.deps.Manager == nil {
		return errorResult(errors.NewInternal(fmt.Errorf("campaign manager is not configured"))), nil
	}

	snap, err := h.ownedCampaign(input.ID, input.Owner)
	if err != nil {
		return errorResult(err), nil
	}

	result := CampaignStatusResult{Snapshot: snap}
	if h.deps.Board != nil && snap.MessageHandle != "" {
		if msg, ok := h.deps.Board.Get(snap.MessageHandle); ok {
			result.Progress = msg.Text
		}
	}
	return successResult(result)
}

// HandleCampaignList handles the campaign_list tool call.
func (h *Handlers) HandleCampaignList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[OwnerRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if h.deps.Manager == nil {
		return errorResult(errors.NewInternal(fmt.Errorf("campaign manager is not configured"))), nil
	}

	return successResult(CampaignListResult{Items: h.deps.Manager.List(input.Owner)})
}

// HandleTokenAdd handles the token_add tool call.
func (h *Handlers) HandleTokenAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TokenAddRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if h.deps.Client == nil {
		return errorResult(errors.NewInternal(fmt.Errorf("remote client is not configured"))), nil
	}

	result, err := ops.AddToken(ctx, h.db, h.deps.Client, ops.AddTokenInput{
		Owner:  input.Owner,
		Value:  input.Token,
		Name:   input.Name,
		Locale: h.cfg.Locale,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleTokenList handles the token_list tool call.
func (h *Handlers) HandleTokenList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[OwnerRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListTokens(ctx, h.db, input.Owner)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleTokenActivate handles the token_activate tool call.
func (h *Handlers) HandleTokenActivate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TokenActivateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}

	result, err := ops.SetActive(ctx, h.db, ops.SetActiveInput{
		Owner:  input.Owner,
		ID:     input.ID,
		Active: active,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleTokenDelete handles the token_delete tool call.
func (h *Handlers) HandleTokenDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TokenRefRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DeleteToken(ctx, h.db, input.Owner, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAccountSelect handles the account_select tool call.
func (h *Handlers) HandleAccountSelect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TokenRefRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SelectAccount(ctx, h.db, input.Owner, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFilterSet handles the filter_set tool call.
func (h *Handlers) HandleFilterSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FilterSetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SetFilter(ctx, h.db, ops.SetFilterInput{
		Owner:   input.Owner,
		TokenID: input.TokenID,
		Filter: remote.Filter{
			GenderType:      input.GenderType,
			BirthYearFrom:   input.BirthYearFrom,
			BirthYearTo:     input.BirthYearTo,
			Distance:        input.Distance,
			LanguageCodes:   input.LanguageCodes,
			NationalityCode: input.NationalityCode,
		},
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFilterGet handles the filter_get tool call.
func (h *Handlers) HandleFilterGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FilterGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetFilter(ctx, h.db, input.Owner, input.TokenID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleLedgerClear handles the ledger_clear tool call.
func (h *Handlers) HandleLedgerClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LedgerClearRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ClearLedger(ctx, h.db, input.Owner, input.Category)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleLedgerStats handles the ledger_stats tool call.
func (h *Handlers) HandleLedgerStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[OwnerRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.LedgerStats(ctx, h.db, input.Owner)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// ownedCampaign returns the campaign's snapshot. When owner is set, a
// campaign of another owner is reported as not found.
func (h *Handlers) ownedCampaign(id, owner string) (campaign.Snapshot, error) {
	snap, err := h.deps.Manager.Get(id)
	if err != nil {
		return campaign.Snapshot{}, err
	}
	if strings.TrimSpace(owner) != "" && snap.Owner != account.NormalizeOwner(owner) {
		return campaign.Snapshot{}, errors.NewNotFound("campaign", id)
	}
	return snap, nil
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed; they may carry SQL errors or paths.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if herdErr, ok := errors.As(err); ok {
		msg := herdErr.Message
		// Keep wrapper context such as "items[2]: ..." when the error was wrapped
		if err != error(herdErr) {
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    herdErr.Code,
			"message": msg,
			"status":  herdErr.Status,
		}
		if herdErr.Code != errors.ErrInternal && herdErr.Details != nil {
			errorObj["details"] = herdErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
