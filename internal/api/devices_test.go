package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/nerrad567/smart-watering-core/internal/automation"
	"github.com/nerrad567/smart-watering-core/internal/device"
	"github.com/nerrad567/smart-watering-core/internal/farm"
)

// ─── Device CRUD ──────────────────────────────────────────────────

func TestDeviceCRUD(t *testing.T) {
	env := testServer(t)

	created := decode[device.Device](t, env.mustDo(t, http.MethodPost, "/api/v1/devices", testOwner,
		`{"name":"Valve","type":"actuator","topic":"farm/valve/1","status":"on"}`, http.StatusCreated))
	if created.ID == "" || created.OwnerID != testOwner {
		t.Fatalf("created = %+v", created)
	}
	if created.Status != device.StatusOff {
		t.Errorf("status = %q, want %q", created.Status, device.StatusOff)
	}

	path := "/api/v1/devices/" + created.ID
	env.mustDo(t, http.MethodGet, path, testOwner, "", http.StatusOK)

	updated := decode[device.Device](t, env.mustDo(t, http.MethodPatch, path, testOwner,
		`{"name":"Main valve","status":"on"}`, http.StatusOK))
	if updated.Name != "Main valve" || updated.Topic != "farm/valve/1" {
		t.Errorf("patch result = %+v", updated)
	}
	if updated.Status != device.StatusOff {
		t.Errorf("patch changed status to %q", updated.Status)
	}

	env.mustDo(t, http.MethodDelete, path, testOwner, "", http.StatusNoContent)
	env.mustDo(t, http.MethodGet, path, testOwner, "", http.StatusNotFound)
}

func TestDevice_OtherOwnerIsNotFound(t *testing.T) {
	env := testServer(t)
	id := env.createActuator(t, testOwner, "pump-1", "farm/pump/1")
	path := "/api/v1/devices/" + id

	env.mustDo(t, http.MethodGet, path, otherOwner, "", http.StatusNotFound)
	env.mustDo(t, http.MethodPatch, path, otherOwner, `{"name":"x"}`, http.StatusNotFound)
	env.mustDo(t, http.MethodDelete, path, otherOwner, "", http.StatusNotFound)
	env.mustDo(t, http.MethodGet, path+"/readings", otherOwner, "", http.StatusNotFound)
}

func TestDevice_Validation(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"unknown type", `{"name":"Cam","type":"camera"}`, http.StatusBadRequest},
		{"actuator without topic", `{"name":"Pump","type":"actuator"}`, http.StatusBadRequest},
		{"wildcard topic", `{"name":"Pump","type":"actuator","topic":"farm/#"}`, http.StatusBadRequest},
		{"id with slash", `{"id":"a/b","name":"Soil sensor","type":"sensor"}`, http.StatusBadRequest},
		{"unknown farm", `{"name":"Soil sensor","type":"sensor","farm_id":"farm-missing"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.mustDo(t, http.MethodPost, "/api/v1/devices", testOwner, tt.body, tt.want)
		})
	}
}

func TestDevice_DuplicateIDConflicts(t *testing.T) {
	env := testServer(t)
	env.createActuator(t, testOwner, "pump-1", "farm/pump/1")
	env.mustDo(t, http.MethodPost, "/api/v1/devices", otherOwner,
		`{"id":"pump-1","name":"Pump","type":"actuator","topic":"x/y"}`, http.StatusConflict)
}

func TestDevice_FarmOfAnotherOwnerRejected(t *testing.T) {
	env := testServer(t)

	f := decode[farm.Farm](t, env.mustDo(t, http.MethodPost, "/api/v1/farms", otherOwner,
		`{"name":"Their field"}`, http.StatusCreated))
	env.mustDo(t, http.MethodPost, "/api/v1/devices", testOwner,
		`{"name":"Soil sensor","type":"sensor","farm_id":"`+f.ID+`"}`, http.StatusBadRequest)
}

func TestListDevices_Filters(t *testing.T) {
	env := testServer(t)

	f := decode[farm.Farm](t, env.mustDo(t, http.MethodPost, "/api/v1/farms", testOwner,
		`{"name":"North"}`, http.StatusCreated))
	env.mustDo(t, http.MethodPost, "/api/v1/devices", testOwner,
		`{"name":"Soil sensor","type":"sensor","farm_id":"`+f.ID+`"}`, http.StatusCreated)
	env.createActuator(t, testOwner, "pump-1", "farm/pump/1")
	env.createActuator(t, otherOwner, "pump-9", "farm/pump/9")

	tests := []struct {
		query string
		want  float64
	}{
		{"", 2},
		{"?type=sensor", 1},
		{"?type=actuator", 1},
		{"?farm_id=" + f.ID, 1},
	}
	for _, tt := range tests {
		resp := decode[map[string]any](t, env.mustDo(t, http.MethodGet, "/api/v1/devices"+tt.query, testOwner, "", http.StatusOK))
		if resp["count"].(float64) != tt.want {
			t.Errorf("GET /devices%s count = %v, want %v", tt.query, resp["count"], tt.want)
		}
	}

	env.mustDo(t, http.MethodGet, "/api/v1/devices?type=camera", testOwner, "", http.StatusBadRequest)
}

func TestDeleteDevice_RemovesRules(t *testing.T) {
	env := testServer(t)
	env.createActuator(t, testOwner, "pump-1", "farm/pump/1")
	ruleID := env.createRule(t, testOwner, `{"device_id":"pump-1","condition_type":"moisture","threshold":30,"action":"on"}`)

	env.mustDo(t, http.MethodDelete, "/api/v1/devices/pump-1", testOwner, "", http.StatusNoContent)

	env.mustDo(t, http.MethodGet, "/api/v1/rules/"+ruleID, testOwner, "", http.StatusNotFound)
	if n := env.rules.GetRuleCount(); n != 0 {
		t.Errorf("rule cache still holds %d rules", n)
	}
}

// ─── Manual Commands ──────────────────────────────────────────────

func TestDeviceCommand(t *testing.T) {
	env := testServer(t)
	env.createActuator(t, testOwner, "pump-1", "farm/pump/1")

	resp := decode[commandResponse](t, env.mustDo(t, http.MethodPost,
		"/api/v1/devices/pump-1/command/on", testOwner, "", http.StatusOK))
	if !resp.Success || resp.Warning != "" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Action == nil || resp.Action.Source != automation.SourceManual || resp.Action.RuleID != "" {
		t.Errorf("action = %+v, want manual action without rule", resp.Action)
	}

	if env.pub.count() != 1 {
		t.Fatalf("published %d messages, want 1", env.pub.count())
	}
	var msg map[string]any
	if err := json.Unmarshal(env.pub.published[0].payload, &msg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg["command"] != "on" || msg["triggered_by"] != "manual" || msg["device_id"] != "pump-1" {
		t.Errorf("payload = %v", msg)
	}
	if env.pub.published[0].topic != "farm/pump/1" {
		t.Errorf("topic = %q", env.pub.published[0].topic)
	}

	dev := decode[device.Device](t, env.mustDo(t, http.MethodGet, "/api/v1/devices/pump-1", testOwner, "", http.StatusOK))
	if dev.Status != "on" {
		t.Errorf("status = %q, want on", dev.Status)
	}

	actions := decode[struct {
		Actions []automation.TriggeredAction `json:"actions"`
	}](t, env.mustDo(t, http.MethodGet, "/api/v1/actions", testOwner, "", http.StatusOK))
	if len(actions.Actions) != 1 || actions.Actions[0].Source != automation.SourceManual {
		t.Errorf("actions = %+v", actions.Actions)
	}
}

func TestDeviceCommand_Errors(t *testing.T) {
	env := testServer(t)
	env.createActuator(t, testOwner, "pump-1", "farm/pump/1")
	env.createActuator(t, testOwner, "pump-2", "farm/pump/2")
	env.pub.fail["farm/pump/2"] = true

	env.mustDo(t, http.MethodPost, "/api/v1/devices/ghost/command/on", testOwner, "", http.StatusNotFound)
	env.mustDo(t, http.MethodPost, "/api/v1/devices/pump-1/command/on", otherOwner, "", http.StatusNotFound)
	env.mustDo(t, http.MethodPost, "/api/v1/devices/pump-1/command/o+n", testOwner, "", http.StatusBadRequest)
	env.mustDo(t, http.MethodPost, "/api/v1/devices/pump-2/command/on", testOwner, "", http.StatusBadGateway)

	dev := decode[device.Device](t, env.mustDo(t, http.MethodGet, "/api/v1/devices/pump-2", testOwner, "", http.StatusOK))
	if dev.Status != device.StatusOff {
		t.Errorf("refused command changed status to %q", dev.Status)
	}
}
