package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatJSONPayload(t *testing.T) {
	out := formatJSONPayload("count=3 ratio=2.5 name=sensor-a")

	var object map[string]interface{}
	assert.NoError(t, json.Unmarshal([]byte(out), &object))
	assert.Equal(t, float64(3), object["count"])
	assert.Equal(t, 2.5, object["ratio"])
	assert.Equal(t, "sensor-a", object["name"])
}

func TestFormatJSONPayloadSkipsMalformedPairs(t *testing.T) {
	out := formatJSONPayload("a=1 nonsense b=x")

	var object map[string]interface{}
	assert.NoError(t, json.Unmarshal([]byte(out), &object))
	assert.Len(t, object, 2)
	assert.Equal(t, "x", object["b"])
}
