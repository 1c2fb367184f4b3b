package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ppiankov/entrole/internal/extract/adapters"
	"github.com/ppiankov/entrole/internal/model"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// ErrDecode is returned when a payload is neither UTF-8 nor GBK text, or is
// not valid JSON once decoded
var ErrDecode = errors.New("undecodable NER payload")

// DecodeText converts raw service bytes to a string. UTF-8 (with or without a
// byte-order mark) is tried first, GBK second.
func DecodeText(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		out, err := unicode.UTF8BOM.NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return string(out), nil
	}

	out, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: gbk: %v", ErrDecode, err)
	}
	if !utf8.Valid(out) || bytes.ContainsRune(out, utf8.RuneError) {
		return "", fmt.Errorf("%w: not utf-8 or gbk", ErrDecode)
	}
	return string(out), nil
}

// DecodePayload parses raw NER service bytes. Empty input, a non-object
// document or a missing data field all yield an empty payload; only charset
// and JSON syntax failures are errors.
func DecodePayload(raw []byte) (*model.NerPayload, error) {
	return decodePayload(adapters.NewRegistry(), raw)
}

func decodePayload(registry *adapters.Registry, raw []byte) (*model.NerPayload, error) {
	text, err := DecodeText(raw)
	if err != nil {
		return nil, err
	}

	body := bytes.TrimSpace([]byte(text))
	if len(body) == 0 {
		return &model.NerPayload{}, nil
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrDecode)
	}

	var doc adapters.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return &model.NerPayload{}, nil
	}

	data, ok := registry.FindAdapter(doc).ExtractData(doc)
	if !ok {
		return &model.NerPayload{}, nil
	}

	var groups []model.NerGroup
	if err := json.Unmarshal(data, &groups); err != nil {
		return &model.NerPayload{}, nil
	}
	return &model.NerPayload{Data: groups}, nil
}
