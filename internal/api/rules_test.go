package api

import (
	"net/http"
	"testing"

	"github.com/nerrad567/smart-watering-core/internal/automation"
)

func TestRuleCRUD(t *testing.T) {
	env := testServer(t)
	env.createActuator(t, testOwner, "pump-1", "farm/pump/1")

	created := decode[automation.Rule](t, env.mustDo(t, http.MethodPost, "/api/v1/rules", testOwner,
		`{"device_id":"pump-1","condition_type":"moisture","threshold":30,"action":"on","time":"06:30","days":["WED","mon"]}`,
		http.StatusCreated))
	if !created.Enabled {
		t.Error("new rule should default to enabled")
	}
	if created.OwnerID != testOwner {
		t.Errorf("owner = %q", created.OwnerID)
	}
	if len(created.Days) != 2 || created.Days[0] != "mon" || created.Days[1] != "wed" {
		t.Errorf("days = %v, want [mon wed]", created.Days)
	}

	path := "/api/v1/rules/" + created.ID
	got := decode[automation.Rule](t, env.mustDo(t, http.MethodGet, path, testOwner, "", http.StatusOK))
	if got.TimeOfDay != "06:30" {
		t.Errorf("time = %q", got.TimeOfDay)
	}

	updated := decode[automation.Rule](t, env.mustDo(t, http.MethodPatch, path, testOwner,
		`{"threshold":25}`, http.StatusOK))
	if updated.Threshold != 25 || updated.Action != "on" || updated.ConditionType != automation.ConditionMoisture {
		t.Errorf("patch result = %+v", updated)
	}

	list := decode[map[string]any](t, env.mustDo(t, http.MethodGet, "/api/v1/rules?device_id=pump-1", testOwner, "", http.StatusOK))
	if list["count"].(float64) != 1 {
		t.Errorf("count = %v, want 1", list["count"])
	}

	env.mustDo(t, http.MethodDelete, path, testOwner, "", http.StatusNoContent)
	env.mustDo(t, http.MethodGet, path, testOwner, "", http.StatusNotFound)
}

func TestRule_CreateDisabled(t *testing.T) {
	env := testServer(t)
	env.createActuator(t, testOwner, "pump-1", "farm/pump/1")

	rule := decode[automation.Rule](t, env.mustDo(t, http.MethodPost, "/api/v1/rules", testOwner,
		`{"device_id":"pump-1","condition_type":"humidity","threshold":40,"action":"on","enabled":false}`,
		http.StatusCreated))
	if rule.Enabled {
		t.Error("explicit enabled=false was ignored")
	}
}

func TestToggleRule(t *testing.T) {
	env := testServer(t)
	env.createActuator(t, testOwner, "pump-1", "farm/pump/1")
	id := env.createRule(t, testOwner, `{"device_id":"pump-1","condition_type":"moisture","threshold":30,"action":"on"}`)
	path := "/api/v1/rules/" + id + "/toggle"

	first := decode[automation.Rule](t, env.mustDo(t, http.MethodPost, path, testOwner, "", http.StatusOK))
	if first.Enabled {
		t.Error("first toggle should disable")
	}
	second := decode[automation.Rule](t, env.mustDo(t, http.MethodPost, path, testOwner, "", http.StatusOK))
	if !second.Enabled {
		t.Error("second toggle should enable")
	}

	env.mustDo(t, http.MethodPost, path, otherOwner, "", http.StatusNotFound)
	env.mustDo(t, http.MethodPost, "/api/v1/rules/rule-missing/toggle", testOwner, "", http.StatusNotFound)
}

func TestRule_Validation(t *testing.T) {
	env := testServer(t)
	env.createActuator(t, testOwner, "pump-1", "farm/pump/1")
	env.createActuator(t, otherOwner, "pump-9", "farm/pump/9")
	env.mustDo(t, http.MethodPost, "/api/v1/devices", testOwner, `{"id":"soil-1","name":"Soil","type":"sensor"}`, http.StatusCreated)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing action", `{"device_id":"pump-1","condition_type":"moisture","threshold":30}`},
		{"unknown condition", `{"device_id":"pump-1","condition_type":"ph","threshold":6,"action":"on"}`},
		{"bad time", `{"device_id":"pump-1","action":"on","time":"25:00"}`},
		{"bad day", `{"device_id":"pump-1","action":"on","days":["someday"]}`},
		{"unknown device", `{"device_id":"ghost","condition_type":"moisture","threshold":30,"action":"on"}`},
		{"other owner's device", `{"device_id":"pump-9","condition_type":"moisture","threshold":30,"action":"on"}`},
		{"device without topic", `{"device_id":"soil-1","condition_type":"moisture","threshold":30,"action":"on"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.mustDo(t, http.MethodPost, "/api/v1/rules", testOwner, tt.body, http.StatusBadRequest)
		})
	}
}

func TestRule_OtherOwnerIsNotFound(t *testing.T) {
	env := testServer(t)
	env.createActuator(t, testOwner, "pump-1", "farm/pump/1")
	id := env.createRule(t, testOwner, `{"device_id":"pump-1","condition_type":"moisture","threshold":30,"action":"on"}`)
	path := "/api/v1/rules/" + id

	env.mustDo(t, http.MethodGet, path, otherOwner, "", http.StatusNotFound)
	env.mustDo(t, http.MethodPatch, path, otherOwner, `{"threshold":1}`, http.StatusNotFound)
	env.mustDo(t, http.MethodDelete, path, otherOwner, "", http.StatusNotFound)

	list := decode[map[string]any](t, env.mustDo(t, http.MethodGet, "/api/v1/rules", otherOwner, "", http.StatusOK))
	if list["count"].(float64) != 0 {
		t.Errorf("other owner sees %v rules", list["count"])
	}
}
