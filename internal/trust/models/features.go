package models

// FeatureKey names a trust-gated feature.
type FeatureKey string

const (
	FeatureTrustView        FeatureKey = "trust-view"
	FeatureTrustAward       FeatureKey = "trust-award"
	FeatureWealthView       FeatureKey = "wealth-view"
	FeatureWealthCreate     FeatureKey = "wealth-create"
	FeatureItemView         FeatureKey = "item-view"
	FeatureItemManage       FeatureKey = "item-manage"
	FeatureDisputeView      FeatureKey = "dispute-view"
	FeatureDisputeHandle    FeatureKey = "dispute-handle"
	FeaturePollView         FeatureKey = "poll-view"
	FeaturePollCreate       FeatureKey = "poll-create"
	FeaturePoolView         FeatureKey = "pool-view"
	FeaturePoolCreate       FeatureKey = "pool-create"
	FeatureCouncilView      FeatureKey = "council-view"
	FeatureCouncilCreate    FeatureKey = "council-create"
	FeatureForumView        FeatureKey = "forum-view"
	FeatureThreadCreate     FeatureKey = "thread-create"
	FeatureAttachmentUpload FeatureKey = "attachment-upload"
	FeatureContentFlag      FeatureKey = "content-flag"
	FeatureFlagReview       FeatureKey = "flag-review"
	FeatureForumModerate    FeatureKey = "forum-moderate"
	FeatureAnalyticsView    FeatureKey = "analytics-view"
)

// Feature describes one gated capability: where its requirement lives in the
// community configuration, which role grants it in the authorization oracle,
// and how it is labelled in the trust timeline.
type Feature struct {
	Key FeatureKey
	// ConfigField is the community configuration key holding the requirement.
	ConfigField string
	// Role is the admin-assignable role; TrustRole is its score-derived twin.
	Role       string
	TrustRole  string
	Permission string
	Label      string
}

// Features is the fixed, ordered set of gated features.
var Features = []Feature{
	{FeatureTrustView, "minTrustToViewTrust", "trust_viewer", "trust_trust_viewer", "can_view_trust", "View trust"},
	{FeatureTrustAward, "minTrustToAwardTrust", "trust_granter", "trust_trust_granter", "can_award_trust", "Award trust to others"},
	{FeatureWealthView, "minTrustToViewWealth", "wealth_viewer", "trust_wealth_viewer", "can_view_wealth", "View wealth"},
	{FeatureWealthCreate, "minTrustForWealth", "wealth_creator", "trust_wealth_creator", "can_create_wealth", "Publish wealth"},
	{FeatureItemView, "minTrustToViewItems", "item_viewer", "trust_item_viewer", "can_view_item", "View items"},
	{FeatureItemManage, "minTrustForItemManagement", "item_manager", "trust_item_manager", "can_manage_item", "Manage items"},
	{FeatureDisputeView, "minTrustToViewDisputes", "dispute_viewer", "trust_dispute_viewer", "can_view_dispute", "View disputes"},
	{FeatureDisputeHandle, "minTrustForDisputes", "dispute_handler", "trust_dispute_handler", "can_handle_dispute", "Handle disputes"},
	{FeaturePollView, "minTrustToViewPolls", "poll_viewer", "trust_poll_viewer", "can_view_poll", "View polls"},
	{FeaturePollCreate, "minTrustForPolls", "poll_creator", "trust_poll_creator", "can_create_poll", "Create polls"},
	{FeaturePoolView, "minTrustToViewPools", "pool_viewer", "trust_pool_viewer", "can_view_pool", "View pools"},
	{FeaturePoolCreate, "minTrustForPoolCreation", "pool_creator", "trust_pool_creator", "can_create_pool", "Create pools"},
	{FeatureCouncilView, "minTrustToViewCouncils", "council_viewer", "trust_council_viewer", "can_view_council", "View councils"},
	{FeatureCouncilCreate, "minTrustForCouncilCreation", "council_creator", "trust_council_creator", "can_create_council", "Create councils"},
	{FeatureForumView, "minTrustToViewForum", "forum_viewer", "trust_forum_viewer", "can_view_forum", "View forum"},
	{FeatureThreadCreate, "minTrustForThreadCreation", "thread_creator", "trust_thread_creator", "can_create_thread", "Create forum threads"},
	{FeatureAttachmentUpload, "minTrustForAttachments", "attachment_uploader", "trust_attachment_uploader", "can_upload_attachment", "Upload attachments"},
	{FeatureContentFlag, "minTrustForFlagging", "content_flagger", "trust_content_flagger", "can_flag_content", "Flag content"},
	{FeatureFlagReview, "minTrustForFlagReview", "flag_reviewer", "trust_flag_reviewer", "can_review_flag", "Review flagged content"},
	{FeatureForumModerate, "minTrustForForumModeration", "forum_manager", "trust_forum_manager", "can_manage_forum", "Moderate forum"},
	{FeatureAnalyticsView, "minTrustForHealthAnalytics", "analytics_viewer", "trust_analytics_viewer", "can_view_analytics", "View analytics"},
}

var featuresByKey = func() map[FeatureKey]Feature {
	m := make(map[FeatureKey]Feature, len(Features))
	for _, f := range Features {
		m[f.Key] = f
	}
	return m
}()

// LookupFeature returns the feature for key.
func LookupFeature(key FeatureKey) (Feature, bool) {
	f, ok := featuresByKey[key]
	return f, ok
}

// FeatureForPermission returns the feature gated by an oracle permission name.
func FeatureForPermission(permission string) (Feature, bool) {
	for _, f := range Features {
		if f.Permission == permission {
			return f, true
		}
	}
	return Feature{}, false
}
