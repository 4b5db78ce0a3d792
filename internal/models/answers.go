package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type AnswerKind string

const (
	AnswerString  AnswerKind = "string"
	AnswerNumber  AnswerKind = "number"
	AnswerBoolean AnswerKind = "boolean"
	AnswerDate    AnswerKind = "date"
)

// AnswerValue is one claimant-supplied evidence value. On the wire it is a
// plain JSON scalar; strings in RFC 3339 form are read as dates.
type AnswerValue struct {
	Kind AnswerKind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
}

func StringAnswer(s string) AnswerValue { return AnswerValue{Kind: AnswerString, Str: s} }
func NumberAnswer(n float64) AnswerValue { return AnswerValue{Kind: AnswerNumber, Num: n} }
func BooleanAnswer(b bool) AnswerValue { return AnswerValue{Kind: AnswerBoolean, Bool: b} }
func DateAnswer(t time.Time) AnswerValue { return AnswerValue{Kind: AnswerDate, Time: t.UTC()} }

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case AnswerString:
		return json.Marshal(v.Str)
	case AnswerNumber:
		return json.Marshal(v.Num)
	case AnswerBoolean:
		return json.Marshal(v.Bool)
	case AnswerDate:
		return json.Marshal(v.Time.Format(time.RFC3339))
	}
	return nil, fmt.Errorf("answer has no kind")
}

func (v *AnswerValue) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, x); err == nil {
			*v = DateAnswer(t)
			return nil
		}
		*v = StringAnswer(x)
	case float64:
		*v = NumberAnswer(x)
	case bool:
		*v = BooleanAnswer(x)
	default:
		return fmt.Errorf("unsupported answer value %s", string(b))
	}
	return nil
}

// Answers is the open-ended evidence bag attached to a claim. Keys are not
// fixed; lookups are tolerant of the value kind where a conversion is obvious.
type Answers map[string]AnswerValue

func (a Answers) String(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	switch v.Kind {
	case AnswerString:
		s := strings.TrimSpace(v.Str)
		return s, s != ""
	case AnswerNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64), true
	}
	return "", false
}

func (a Answers) Number(key string) (float64, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	switch v.Kind {
	case AnswerNumber:
		return v.Num, true
	case AnswerString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return n, err == nil
	}
	return 0, false
}

func (a Answers) Time(key string) (time.Time, bool) {
	v, ok := a[key]
	if !ok || v.Kind != AnswerDate {
		return time.Time{}, false
	}
	return v.Time, true
}
