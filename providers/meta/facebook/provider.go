package facebook

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	meta "github.com/goliatone/go-integrations/providers/meta/common"
)

const ProviderID = "meta_facebook"

const (
	OperationPages    = "pages"
	OperationPublish  = "publish"
	OperationInsights = "insights"
)

var defaultInsightMetrics = []string{"page_impressions", "page_post_engagements", "page_fans"}

type Config = meta.Config

func New(cfg Config) (core.ProviderDescriptor, error) {
	refresher, err := meta.NewRefresher(ProviderID, cfg)
	if err != nil {
		return core.ProviderDescriptor{}, err
	}
	client := meta.NewGraphClient(ProviderID, cfg)
	return core.ProviderDescriptor{
		Identifier: ProviderID,
		Capabilities: map[string]core.OperationFunc{
			OperationPages:    client.Operation(buildPages),
			OperationPublish:  client.Operation(buildPublish),
			OperationInsights: client.Operation(buildInsights),
		},
		Refresher: refresher,
	}, nil
}

func buildPages(params core.Params, _ string) (providers.RESTCall, error) {
	query := meta.Fields("id", "name", "picture{url}", "category")
	for key, value := range providers.OptionalParams(params, "limit", "after") {
		query[key] = value
	}
	return providers.RESTCall{Method: http.MethodGet, Path: "/me/accounts", Query: query}, nil
}

func buildPublish(params core.Params, internalID string) (providers.RESTCall, error) {
	pageID, err := providers.RequireInternalID(internalID)
	if err != nil {
		return providers.RESTCall{}, err
	}
	body := map[string]any{}
	if message := params.String("message"); message != "" {
		body["message"] = message
	}
	if link := params.String("link"); link != "" {
		body["link"] = link
	}
	if len(body) == 0 {
		return providers.RESTCall{}, errMessageOrLink
	}
	return providers.RESTCall{Method: http.MethodPost, Path: "/" + pageID + "/feed", Body: body}, nil
}

func buildInsights(params core.Params, internalID string) (providers.RESTCall, error) {
	pageID, err := providers.RequireInternalID(internalID)
	if err != nil {
		return providers.RESTCall{}, err
	}
	metrics := params.String("metric")
	if metrics == "" {
		metrics = strings.Join(defaultInsightMetrics, ",")
	}
	query := map[string]string{"metric": metrics, "period": "day"}
	for key, value := range providers.OptionalParams(params, "period", "since", "until") {
		query[key] = value
	}
	return providers.RESTCall{Method: http.MethodGet, Path: "/" + pageID + "/insights", Query: query}, nil
}
