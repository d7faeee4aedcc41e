package apiv1

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openAPIPath = "../../../public/docs/v1/openapi.yml"

func loadOpenAPI(t *testing.T) *openapi3.T {
	t.Helper()
	doc, err := openapi3.NewLoader().LoadFromFile(openAPIPath)
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))
	return doc
}

// fiber path params use :name, OpenAPI uses {name}
func toOpenAPIPath(route string) string {
	parts := strings.Split(route, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, ":") {
			parts[i] = "{" + strings.TrimPrefix(p, ":") + "}"
		}
	}
	return strings.Join(parts, "/")
}

func TestOpenAPIDocumentsEveryRoute(t *testing.T) {
	doc := loadOpenAPI(t)

	app := fiber.New()
	RegisterHandlers(app, &APIServer{})

	for _, r := range app.GetRoutes(true) {
		if r.Method == fiber.MethodHead {
			continue
		}
		item := doc.Paths.Find(toOpenAPIPath(r.Path))
		require.NotNil(t, item, "route %s %s missing from openapi.yml", r.Method, r.Path)
	}
}

func TestOpenAPICheckoutSchema(t *testing.T) {
	doc := loadOpenAPI(t)

	schema := doc.Components.Schemas["CheckoutRequest"].Value
	require.NotNil(t, schema)
	assert.ElementsMatch(t, []string{"price_id", "success_url", "cancel_url", "mode"}, schema.Required)

	valid := map[string]any{"price_id": "price_1", "success_url": "/ok", "cancel_url": "/no", "mode": "payment"}
	assert.NoError(t, schema.VisitJSON(valid))

	invalid := map[string]any{"price_id": "price_1", "success_url": "/ok", "cancel_url": "/no", "mode": "setup"}
	assert.Error(t, schema.VisitJSON(invalid))
}

func TestGetPing(t *testing.T) {
	app := fiber.New()
	RegisterHandlers(app, NewAPIServer(nil, nil))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestGetModuleAccessRejectsEmptySlug(t *testing.T) {
	wrapper := ServerInterfaceWrapper{Handler: &APIServer{}}
	app := fiber.New()
	app.Get("/modules/access", wrapper.GetModuleAccess)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/modules/access", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
