// Package docs embeds the campaign API description served under /docs.
package docs

import _ "embed"

//go:embed campaign-api.openapi.yaml
var embeddedCampaignOpenAPI []byte

//go:embed swagger.html
var embeddedCampaignSwaggerHTML []byte

// CampaignOpenAPI is the OpenAPI document of the campaign API.
var CampaignOpenAPI = embeddedCampaignOpenAPI

// CampaignSwaggerHTML renders CampaignOpenAPI with Swagger UI.
var CampaignSwaggerHTML = embeddedCampaignSwaggerHTML
