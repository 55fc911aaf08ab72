package signflow

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogFixture = `{
	"webpages": [
		{
			"title": "Petition A",
			"url": "https://a.example/form",
			"actions": [{"#cookie-accept": "click"}],
			"fields": [
				{"id": "name", "inputType": "text", "querySelector": "#name", "required": true},
				{"id": "state", "inputType": ["NY", "CA"], "querySelector": "select#state"}
			],
			"submit": "#submit"
		},
		{
			"title": "Petition B",
			"url": "https://b.example/form",
			"auto": "none",
			"submit": "#submit"
		}
	]
}`

func TestHTTPCatalogFetchesEntity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/individual.json", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("t"), "cache-busting param expected")
		fmt.Fprint(w, catalogFixture)
	}))
	defer srv.Close()

	c := &HTTPCatalog{BaseURL: srv.URL + "/"}
	tasks, err := c.Webpages(context.Background(), "individual")
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	a := tasks[0]
	assert.Equal(t, "Petition A", a.Title)
	require.Len(t, a.Actions, 1)
	assert.Equal(t, ActionClick, a.Actions[0].Kind)
	require.Len(t, a.Fields, 2)
	assert.Equal(t, FieldText, a.Fields[0].Kind)
	assert.Equal(t, FieldChoice, a.Fields[1].Kind)
	assert.Equal(t, ControlSelect, a.Fields[1].Control)

	assert.Equal(t, AutoNone, tasks[1].Auto)
}

func TestHTTPCatalogRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	c := &HTTPCatalog{BaseURL: srv.URL + "/"}
	_, err := c.Webpages(context.Background(), "individual")
	assert.ErrorContains(t, err, "unexpected status")
}

func TestHTTPCatalogRejectsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"webpages": [{"title": "X", "fields": [{"id":"f","querySelector":"#f"}]}]}`)
	}))
	defer srv.Close()

	c := &HTTPCatalog{BaseURL: srv.URL + "/"}
	_, err := c.Webpages(context.Background(), "individual")
	assert.ErrorContains(t, err, "missing inputType")
}
