package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

const ownerDescription = "Owner whose tokens and ledger are used (default: \"default\")"

var campaignStartToolDef = mcp.NewTool("campaign_start",
	mcp.WithDescription("Start a bulk campaign on every active token of an owner. Progress is rendered to a pinned message that campaign_status returns."),
	mcp.WithString("feature",
		mcp.Required(),
		mcp.Enum("requests", "chatroom", "lounge", "unsubscribe", "countries"),
		mcp.Description("Campaign kind"),
	),
	mcp.WithString("owner", mcp.Description(ownerDescription)),
	mcp.WithString("message",
		mcp.Description("Message text for chatroom and lounge campaigns. Commas split it into separate messages."),
	),
	mcp.WithBoolean("single_account",
		mcp.Description("Run only on the owner's current account"),
	),
)

var campaignStopToolDef = mcp.NewTool("campaign_stop",
	mcp.WithDescription("Stop a running campaign by id, or by owner and feature. Returns immediately; workers finish their current step."),
	mcp.WithString("id", mcp.Description("Campaign id")),
	mcp.WithString("owner", mcp.Description(ownerDescription)),
	mcp.WithString("feature", mcp.Description("Campaign kind, used when id is not given")),
)

var campaignStatusToolDef = mcp.NewTool("campaign_status",
	mcp.WithDescription("Get a campaign's per-account status and its rendered progress message."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Campaign id")),
	mcp.WithString("owner", mcp.Description("When set, the campaign must belong to this owner")),
)

var campaignListToolDef = mcp.NewTool("campaign_list",
	mcp.WithDescription("List running and recently finished campaigns, newest first."),
	mcp.WithString("owner", mcp.Description("Only campaigns of this owner")),
)

var tokenAddToolDef = mcp.NewTool("token_add",
	mcp.WithDescription("Verify an access token against the platform and store it."),
	mcp.WithString("token", mcp.Required(), mcp.Description("Access token value")),
	mcp.WithString("owner", mcp.Description(ownerDescription)),
	mcp.WithString("name", mcp.Description("Display name (default: the account's profile name)")),
)

var tokenListToolDef = mcp.NewTool("token_list",
	mcp.WithDescription("List an owner's tokens with masked values."),
	mcp.WithString("owner", mcp.Description(ownerDescription)),
)

var tokenActivateToolDef = mcp.NewTool("token_activate",
	mcp.WithDescription("Activate or deactivate a token. Campaigns only run on active tokens."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Token id")),
	mcp.WithString("owner", mcp.Description(ownerDescription)),
	mcp.WithBoolean("active", mcp.Description("false deactivates (default: true)")),
)

var tokenDeleteToolDef = mcp.NewTool("token_delete",
	mcp.WithDescription("Delete a token with its filter, device identity and profile snapshot."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Token id")),
	mcp.WithString("owner", mcp.Description(ownerDescription)),
	mcp.WithDestructiveHintAnnotation(true),
)

var accountSelectToolDef = mcp.NewTool("account_select",
	mcp.WithDescription("Select the current account used by single-account campaigns."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Token id")),
	mcp.WithString("owner", mcp.Description(ownerDescription)),
)

var filterSetToolDef = mcp.NewTool("filter_set",
	mcp.WithDescription("Store the search filter applied at the start of requests campaigns."),
	mcp.WithString("owner", mcp.Description(ownerDescription)),
	mcp.WithString("token_id", mcp.Description("Token id (default: every token of the owner)")),
	mcp.WithNumber("gender_type", mcp.Description("Gender filter as the platform encodes it")),
	mcp.WithNumber("birth_year_from", mcp.Description("Oldest birth year")),
	mcp.WithNumber("birth_year_to", mcp.Description("Youngest birth year")),
	mcp.WithNumber("distance", mcp.Description("Maximum distance")),
	mcp.WithString("language_codes", mcp.Description("Comma separated language codes")),
	mcp.WithString("nationality_code", mcp.Description("Two-letter nationality code")),
)

var filterGetToolDef = mcp.NewTool("filter_get",
	mcp.WithDescription("Get a token's stored search filter."),
	mcp.WithString("owner", mcp.Description(ownerDescription)),
	mcp.WithString("token_id", mcp.Description("Token id (default: the current account)")),
)

var ledgerClearToolDef = mcp.NewTool("ledger_clear",
	mcp.WithDescription("Forget contacted targets so that later campaigns reach them again."),
	mcp.WithString("owner", mcp.Description(ownerDescription)),
	mcp.WithString("category",
		mcp.Enum("request", "chatroom", "lounge"),
		mcp.Description("Ledger category (default: every category)"),
	),
	mcp.WithDestructiveHintAnnotation(true),
)

var ledgerStatsToolDef = mcp.NewTool("ledger_stats",
	mcp.WithDescription("Count contacted targets per ledger category."),
	mcp.WithString("owner", mcp.Description(ownerDescription)),
)
