package adapter

import (
	gojson "github.com/goccy/go-json"
)

// JSON encodes and decodes message payloads
//
//go:generate mockgen -source=json.go -destination=../mocks/json.go -package=mocks -mock_names=JSON=MockJSON
type JSON interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

type goJSON struct{}

// NewJSON returns a JSON codec compatible with encoding/json
func NewJSON() JSON {
	return &goJSON{}
}

func (j *goJSON) Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

func (j *goJSON) Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}
