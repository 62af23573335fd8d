// Package contracts pins the wire shapes infographic depends on: the Graph API
// payloads it reads and the statistics envelope it publishes.
package contracts

import (
	"encoding/json"
	"fmt"
	"slices"
)

// GraphProfileContract is a /me?fields=id,name reply.
const GraphProfileContract = `{"id": "10153", "name": "Grace Gopher"}`

// GraphFeedContract is a /me/feed reply for the owner of GraphProfileContract.
const GraphFeedContract = `{
	"data": [
		{
			"id": "10153_1",
			"type": "status",
			"status_type": "mobile_status_update",
			"message": "Morning coffee with friends before the conference keynote",
			"created_time": "2016-01-04T08:30:00+0000",
			"from": {"id": "10153", "name": "Grace Gopher"},
			"likes": {"data": [
				{"id": "2", "name": "Alice"},
				{"id": "3", "name": "Bob"},
				{"id": "4", "name": "Carol"},
				{"id": "10153", "name": "Grace Gopher"}
			]}
		},
		{
			"id": "10153_2",
			"type": "photo",
			"status_type": "added_photos",
			"message": "Sunset over the harbour after sailing practice",
			"created_time": "2016-02-06T19:00:00+0000",
			"from": {"id": "10153", "name": "Grace Gopher"},
			"likes": {"data": [{"id": "2", "name": "Alice"}, {"id": "5", "name": "Dave"}]}
		},
		{
			"id": "10153_3",
			"type": "link",
			"status_type": "shared_story",
			"message": "Great article about gardens and community projects",
			"created_time": "2016-03-15T12:00:00+0000",
			"from": {"id": "10153", "name": "Grace Gopher"},
			"likes": {"data": [{"id": "6", "name": "Erin"}, {"id": "2", "name": "Alice"}]}
		},
		{
			"id": "10153_4",
			"type": "video",
			"message": "Coffee tasting video from the harbour market",
			"created_time": "2016-03-16T12:00:00+0000",
			"from": {"id": "10153", "name": "Grace Gopher"}
		},
		{
			"id": "2_9",
			"type": "status",
			"message": "Happy birthday Grace",
			"created_time": "2016-03-17T09:00:00+0000",
			"from": {"id": "2", "name": "Alice"},
			"likes": {"data": [{"id": "3", "name": "Bob"}]}
		}
	],
	"paging": {}
}`

// GraphTokenContract is a JSON reply from the OAuth access_token endpoint.
const GraphTokenContract = `{"access_token": "EAAB-contract", "token_type": "bearer", "expires_in": 5183944}`

// GraphTokenFormContract is the form-encoded reply older Graph API versions send.
const GraphTokenFormContract = `access_token=EAAB-contract&expires=5183944`

// EnvelopeFields lists, per envelope key, the fields each published object
// carries. Keys are in publication order.
var EnvelopeFields = []struct {
	Key    string
	List   string
	Fields []string
}{
	{"TOP_FRIENDS", "friends", []string{"imgSrc", "likes", "name", "color"}},
	{"POST_TYPES", "types", []string{"value", "description", "shortname", "color", "colorclass"}},
	{"DAILY_POST_FREQUENCY", "frequency", []string{"dayofweek", "count"}},
	{"MONTHLY_POST_FREQUENCY", "frequency", []string{"value", "x"}},
	{"TOP_WORDS", "", []string{"html", "topword"}},
}

// ValidateEnvelope checks a statistics envelope against EnvelopeFields. An
// empty object is valid; otherwise every key must be present, and each value
// is either an {"error": "..."} object or the published shape.
func ValidateEnvelope(data []byte) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("envelope is not a JSON object: %w", err)
	}
	if len(envelope) == 0 {
		return nil
	}
	if len(envelope) != len(EnvelopeFields) {
		return fmt.Errorf("envelope has %d keys, want %d", len(envelope), len(EnvelopeFields))
	}

	for _, want := range EnvelopeFields {
		raw, ok := envelope[want.Key]
		if !ok {
			return fmt.Errorf("envelope is missing %s", want.Key)
		}
		if err := validateValue(want.Key, want.List, want.Fields, raw); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(key, list string, fields []string, raw json.RawMessage) error {
	var value map[string]json.RawMessage
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("%s is not an object: %w", key, err)
	}
	if msg, ok := value["error"]; ok {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil || s == "" {
			return fmt.Errorf("%s error must be a non-empty string", key)
		}
		return nil
	}

	if list == "" {
		return requireFields(key, value, fields)
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(value[list], &items); err != nil {
		return fmt.Errorf("%s.%s is not a list of objects: %w", key, list, err)
	}
	if len(items) == 0 {
		return fmt.Errorf("%s.%s is empty", key, list)
	}
	for i, item := range items {
		if err := requireFields(fmt.Sprintf("%s.%s[%d]", key, list, i), item, fields); err != nil {
			return err
		}
	}
	return nil
}

func requireFields(path string, obj map[string]json.RawMessage, fields []string) error {
	for _, f := range fields {
		if _, ok := obj[f]; !ok {
			return fmt.Errorf("%s is missing %q", path, f)
		}
	}
	for f := range obj {
		if !slices.Contains(fields, f) {
			return fmt.Errorf("%s has unexpected field %q", path, f)
		}
	}
	return nil
}
